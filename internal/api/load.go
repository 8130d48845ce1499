package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/metrics"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
)

// Builder builds grids from the store and keeps each result for ttl.
type Builder struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	grids map[string]builtGrid
	now   func() time.Time
}

type builtGrid struct {
	grid *powermap.Grid
	exp  time.Time
}

func NewBuilder(st store.Store, ttl time.Duration, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: st, ttl: ttl, logger: logger, grids: map[string]builtGrid{}, now: time.Now}
}

// Grid returns the grid of p as of timeEnd. A zero timeEnd means now.
func (b *Builder) Grid(ctx context.Context, p *config.Project, timeEnd time.Time) (*powermap.Grid, error) {
	key := p.Name
	if !timeEnd.IsZero() {
		key += "@" + timeEnd.UTC().Format(time.RFC3339Nano)
	}
	b.mu.Lock()
	if c, ok := b.grids[key]; ok && b.now().Before(c.exp) {
		b.mu.Unlock()
		return c.grid, nil
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do(key, func() (any, error) {
		g, err := b.Build(ctx, p, timeEnd)
		if err != nil {
			return nil, err
		}
		if b.ttl > 0 {
			b.mu.Lock()
			b.grids[key] = builtGrid{grid: g, exp: b.now().Add(b.ttl)}
			b.mu.Unlock()
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*powermap.Grid), nil
}

// Build reads the area, grid and placement collections of p and builds a
// fresh grid. Missing collections count as empty.
func (b *Builder) Build(ctx context.Context, p *config.Project, timeEnd time.Time) (*powermap.Grid, error) {
	start := time.Now()
	opts, err := p.GridOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = b.logger.With("project", p.Name)

	bounds := store.Bounds{End: timeEnd}
	var ts time.Time
	read := func(name string) ([]feature.Feature, error) {
		coll, err := b.store.Collection(ctx, p.Name, name, false)
		if errors.Is(err, store.ErrCollectionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if last, ok, err := coll.LastTimestamp(ctx); err != nil {
			return nil, err
		} else if ok && last.After(ts) {
			ts = last
		}
		return coll.AllLastValues(ctx, bounds)
	}

	areas, err := read(p.Collections.Areas)
	if err != nil {
		return nil, fmt.Errorf("read areas: %w", err)
	}
	items, err := read(p.Collections.Grid)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	placement, err := read(p.Collections.Placement)
	if err != nil {
		return nil, fmt.Errorf("read placement: %w", err)
	}
	if !timeEnd.IsZero() && timeEnd.Before(ts) {
		ts = timeEnd
	}
	opts.Timestamp = ts

	g := powermap.New(opts)
	if err := g.AddAreaFeatures(areas); err != nil {
		return nil, err
	}
	g.AddGridFeatures(items)
	g.AddPlacementFeatures(placement)
	g.Finalize()

	levels := make([]slog.Level, 0, g.Log.Len())
	for _, e := range g.Log.Entries() {
		levels = append(levels, e.Level)
	}
	metrics.ObserveBuild(p.Name, time.Since(start), levels)
	return g, nil
}
