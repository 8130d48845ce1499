// Package metrics registers the Prometheus collectors of the service.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GridBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermap_grid_builds_total",
		Help: "Total number of grid builds",
	}, []string{"project"})
	GridBuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powermap_grid_build_duration_ms",
		Help:    "Grid build duration in milliseconds, store reads included",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"project"})
	LogEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermap_log_entries_total",
		Help: "Itemized log entries produced by grid builds",
	}, []string{"project", "level"})
	ImportChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermap_import_changes_total",
		Help: "Revisions written by importers",
	}, []string{"collection", "action"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermap_cache_hits_total",
		Help: "Response cache hits",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powermap_cache_misses_total",
		Help: "Response cache misses",
	}, []string{"backend"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powermap_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(GridBuildsTotal)
	prometheus.MustRegister(GridBuildDurationMs)
	prometheus.MustRegister(LogEntriesTotal)
	prometheus.MustRegister(ImportChangesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// ObserveBuild records one grid build and the levels of its log entries.
func ObserveBuild(project string, d time.Duration, levels []slog.Level) {
	GridBuildsTotal.WithLabelValues(project).Inc()
	GridBuildDurationMs.WithLabelValues(project).Observe(float64(d.Milliseconds()))
	for _, l := range levels {
		LogEntriesTotal.WithLabelValues(project, l.String()).Inc()
	}
}

// ObserveImport records the outcome of one importer run.
func ObserveImport(collection string, added, deleted, changed, revisions int) {
	ImportChangesTotal.WithLabelValues(collection, "added").Add(float64(added))
	ImportChangesTotal.WithLabelValues(collection, "deleted").Add(float64(deleted))
	ImportChangesTotal.WithLabelValues(collection, "changed").Add(float64(changed))
	if other := revisions - added - deleted - changed; other > 0 {
		ImportChangesTotal.WithLabelValues(collection, "revision").Add(float64(other))
	}
}

// Handler exposes the registered collectors.
func Handler() http.Handler { return promhttp.Handler() }
