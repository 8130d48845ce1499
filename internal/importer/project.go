package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/metrics"
	"github.com/doet/powermap/internal/store"
)

// ForProject builds the importers of a project in configured order. Loader
// files are looked up in dataDir.
func ForProject(p *config.Project, dataDir string, st store.Store, logger *slog.Logger) ([]Importer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	loc := time.UTC
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
		loc = l
	}

	var out []Importer
	for _, ic := range p.Importers {
		lc := p.Loaders[ic.Loader]
		loader := LoadFromURLOrFile{URL: lc.URL, Filename: lc.Filename, Dir: dataDir, Offline: lc.Offline}
		geojson := GeoJSON{LoadFromURLOrFile: loader}
		placement := Placement{LoadFromURLOrFile: loader, IgnoredNames: lc.IgnoredNames, Location: loc}

		switch ic.Type {
		case config.ImporterGeoJSON:
			out = append(out, NewMatching(ic.Collection, geojson))
		case config.ImporterPowerAreas:
			out = append(out, NewMatching(ic.Collection, Areas{Source: geojson, Ignore: ic.Ignore}))
		case config.ImporterPowerGrid:
			out = append(out, NewMatching(ic.Collection, RawGrid{Source: geojson, Overrides: ic.Overrides, Logger: logger}))
		case config.ImporterPowerGridProcessed:
			opts, err := p.GridOptions()
			if err != nil {
				return nil, err
			}
			opts.Logger = logger
			out = append(out, NewMatching(ic.Collection, ProcessedGrid{
				Store:      st,
				Project:    p.Name,
				Collection: ic.Source,
				Options:    opts,
			}))
		case config.ImporterPlacementFull:
			out = append(out, NewMatching(ic.Collection, placement))
		case config.ImporterPlacementIncremental:
			out = append(out, NewIncremental(ic.Collection, placement))
		}
	}
	return out, nil
}

// Run executes importers in order. When only is not empty, importers whose
// collection is not listed are skipped. Run stops at the first failure.
func Run(ctx context.Context, ic Context, importers []Importer, only ...string) ([]Result, error) {
	var results []Result
	for _, imp := range importers {
		if len(only) > 0 && !contains(only, imp.Target()) {
			continue
		}
		res, err := imp.Import(ctx, ic)
		if err != nil {
			return results, fmt.Errorf("%s/%s: %w", ic.Project, imp.Target(), err)
		}
		metrics.ObserveImport(res.Collection, res.Added, res.Deleted, res.Changed, res.Revisions)
		results = append(results, res)
	}
	return results, nil
}
