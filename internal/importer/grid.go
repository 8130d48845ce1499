package importer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/paulmach/orb"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
)

var (
	nativePattern      = regexp.MustCompile(`(?i)native`)
	powerSourcePattern = regexp.MustCompile(`(?i)power_source`)
)

// RawGrid turns hand drawn grid features into typed PDUs and cables. Sizes
// come from the name or the description, the native and power source flags
// from keywords in the description, unless an override for the name says
// otherwise.
type RawGrid struct {
	Source    Source
	Overrides map[string]config.Override
	Logger    *slog.Logger
}

func (r RawGrid) Features(ctx context.Context) ([]feature.Feature, error) {
	if r.Source == nil {
		return nil, ErrNoSource
	}
	in, err := r.Source.Features(ctx)
	if err != nil {
		return nil, err
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	out := make([]feature.Feature, 0, len(in))
	for _, f := range in {
		name := strings.TrimSpace(f.Name())
		desc := f.Properties.String("description")
		ov := r.Overrides[name]
		var kind powermap.Kind
		switch f.Geometry.(type) {
		case orb.Point:
			kind = powermap.KindPDU
		case orb.LineString:
			kind = powermap.KindCable
		default:
			log.Debug("ignore feature", "name", name)
			continue
		}
		if ov.Ignore {
			log.Debug("ignore feature", "name", name)
			continue
		}
		if name == "" {
			log.Warn("feature doesn't have a name")
			continue
		}

		props := feature.Properties{
			"type":         kind.String(),
			"name":         name,
			"description":  desc,
			"power_size":   r.size(name, desc, ov, log).String(),
			"power_native": flag(ov.Native, nativePattern, desc),
		}
		if kind == powermap.KindPDU {
			props["power_source"] = flag(ov.PowerSource, powerSourcePattern, desc)
		}
		out = append(out, feature.Feature{ID: f.ID, Geometry: f.Geometry, Properties: props})
	}
	return out, nil
}

func (r RawGrid) size(name, desc string, ov config.Override, log *slog.Logger) powermap.Size {
	if ov.Size != nil && *ov.Size != powermap.SizeUnknown {
		return *ov.Size
	}
	if s, err := powermap.ParseSizeLabel(name); err == nil {
		return s
	}
	if s, err := powermap.ParseSizeLabel(desc); err == nil {
		return s
	}
	if desc != "" {
		log.Warn(fmt.Sprintf("can't determine item type: %s / %s", name, strings.ReplaceAll(desc, "\n", " ")))
	} else {
		log.Warn(fmt.Sprintf("can't determine item type: %s", name))
	}
	return powermap.SizeUnknown
}

func flag(override *bool, pattern *regexp.Regexp, text string) bool {
	if override != nil {
		return *override
	}
	return pattern.MatchString(text)
}

// Areas keeps the named polygons of Source that are not in Ignore.
type Areas struct {
	Source Source
	Ignore []string
}

func (a Areas) Features(ctx context.Context) ([]feature.Feature, error) {
	if a.Source == nil {
		return nil, ErrNoSource
	}
	in, err := a.Source.Features(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]feature.Feature, 0, len(in))
	for _, f := range in {
		if _, ok := f.Geometry.(orb.Polygon); !ok {
			continue
		}
		name := strings.TrimSpace(f.Name())
		if name == "" {
			slog.Warn("feature doesn't have a name")
			continue
		}
		if contains(a.Ignore, name) {
			continue
		}
		g := f.Clone()
		g.Properties["name"] = name
		out = append(out, g)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ProcessedGrid builds the grid from the latest values of a raw grid
// collection and yields the connected items.
type ProcessedGrid struct {
	Store      store.Store
	Project    string
	Collection string
	Options    powermap.Options
}

func (p ProcessedGrid) Features(ctx context.Context) ([]feature.Feature, error) {
	coll, err := p.Store.Collection(ctx, p.Project, p.Collection, false)
	if err != nil {
		return nil, fmt.Errorf("source collection %s: %w", p.Collection, err)
	}
	raw, err := coll.AllLastValues(ctx, store.Bounds{})
	if err != nil {
		return nil, err
	}
	g := powermap.New(p.Options)
	g.AddGridFeatures(raw)
	out := make([]feature.Feature, 0, len(g.PDUs)+len(g.Cables))
	for _, it := range g.Items() {
		if it.Kind() != powermap.KindPDU && it.Kind() != powermap.KindCable {
			continue
		}
		out = append(out, feature.FromGeoJSON(it.Feature(g)))
	}
	return out, nil
}
