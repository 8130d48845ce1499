package metrics

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBuild(t *testing.T) {
	ObserveBuild("test-build", 12*time.Millisecond, []slog.Level{slog.LevelError, slog.LevelError, slog.LevelWarn})

	assert.Equal(t, 1.0, testutil.ToFloat64(GridBuildsTotal.WithLabelValues("test-build")))
	assert.Equal(t, 2.0, testutil.ToFloat64(LogEntriesTotal.WithLabelValues("test-build", "ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LogEntriesTotal.WithLabelValues("test-build", "WARN")))
}

func TestObserveImport(t *testing.T) {
	ObserveImport("test-import", 2, 1, 0, 3)
	ObserveImport("test-incremental", 0, 0, 0, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(ImportChangesTotal.WithLabelValues("test-import", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ImportChangesTotal.WithLabelValues("test-import", "deleted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ImportChangesTotal.WithLabelValues("test-import", "revision")))
	assert.Equal(t, 5.0, testutil.ToFloat64(ImportChangesTotal.WithLabelValues("test-incremental", "revision")))
}
