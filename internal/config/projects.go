package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/doet/powermap/internal/geo"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
)

// Importer types.
const (
	ImporterGeoJSON              = "geojson"
	ImporterPowerAreas           = "power_areas"
	ImporterPowerGrid            = "power_grid"
	ImporterPowerGridProcessed   = "power_grid_processed"
	ImporterPlacementFull        = "placement_full"
	ImporterPlacementIncremental = "placement_incremental"
)

// Projects is the parsed project file.
type Projects struct {
	// DataDir is where loaders look for files. Relative paths are resolved
	// against the directory of the project file.
	DataDir string              `yaml:"data_dir"`
	Items   map[string]*Project `yaml:"projects"`
}

// Project describes one event map.
type Project struct {
	Name string `yaml:"-"`

	// Projection is a proj4 definition of the metric CRS used for
	// distances. Empty means SWEREF 99 TM.
	Projection      string  `yaml:"projection"`
	NearThresholdM  float64 `yaml:"near_threshold_m"`
	ConsumerRadiusM float64 `yaml:"consumer_radius_m"`
	// Timezone of the placement API, e.g. Europe/Stockholm.
	Timezone string `yaml:"timezone"`

	Collections Collections       `yaml:"collections"`
	Loaders     map[string]Loader `yaml:"loaders"`
	Importers   []Importer        `yaml:"importers"`
}

// Collections names the store collections a build reads.
type Collections struct {
	Areas     string `yaml:"areas"`
	Grid      string `yaml:"grid"`
	Placement string `yaml:"placement"`
}

// Loader is a file or URL to fetch from.
type Loader struct {
	URL          string   `yaml:"url"`
	Filename     string   `yaml:"filename"`
	Offline      bool     `yaml:"offline"`
	IgnoredNames []string `yaml:"ignored_names"`
}

// Override replaces what the grid importer derives from an item's name and
// description.
type Override struct {
	Ignore      bool           `yaml:"ignore"`
	Size        *powermap.Size `yaml:"size"`
	Native      *bool          `yaml:"native"`
	PowerSource *bool          `yaml:"power_source"`
}

// Importer is one step of a project import.
type Importer struct {
	Type       string              `yaml:"type"`
	Loader     string              `yaml:"loader"`
	Collection string              `yaml:"collection"`
	Source     string              `yaml:"source"`
	Ignore     []string            `yaml:"ignore"`
	Overrides  map[string]Override `yaml:"overrides"`
}

// LoadProjects parses a project file.
func LoadProjects(path string) (Projects, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Projects{}, fmt.Errorf("read project file: %w", err)
	}
	ps, err := ParseProjects(data)
	if err != nil {
		return ps, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(ps.DataDir) {
		ps.DataDir = filepath.Join(filepath.Dir(path), ps.DataDir)
	}
	return ps, nil
}

// ParseProjects decodes a project file and fills in defaults.
func ParseProjects(data []byte) (Projects, error) {
	var ps Projects
	if err := yaml.Unmarshal(data, &ps); err != nil {
		return ps, fmt.Errorf("parse projects: %w", err)
	}
	if ps.Items == nil {
		ps.Items = map[string]*Project{}
	}
	for name, p := range ps.Items {
		if p == nil {
			p = &Project{}
			ps.Items[name] = p
		}
		p.Name = name
		p.applyDefaults()
	}
	return ps, nil
}

func (p *Project) applyDefaults() {
	if p.NearThresholdM == 0 {
		p.NearThresholdM = powermap.DefaultNearThreshold
	}
	if p.ConsumerRadiusM == 0 {
		p.ConsumerRadiusM = powermap.DefaultConsumerRadius
	}
	if p.Collections.Areas == "" {
		p.Collections.Areas = store.CollectionAreas
	}
	if p.Collections.Grid == "" {
		p.Collections.Grid = store.CollectionGrid
	}
	if p.Collections.Placement == "" {
		p.Collections.Placement = store.CollectionPlacement
	}
	for i := range p.Importers {
		imp := &p.Importers[i]
		if imp.Collection != "" {
			continue
		}
		switch imp.Type {
		case ImporterPowerAreas:
			imp.Collection = p.Collections.Areas
		case ImporterPowerGrid:
			imp.Collection = p.Collections.Grid
		case ImporterPowerGridProcessed:
			imp.Collection = "power_grid_processed"
		case ImporterPlacementFull, ImporterPlacementIncremental:
			imp.Collection = p.Collections.Placement
		}
	}
	for i := range p.Importers {
		if p.Importers[i].Type == ImporterPowerGridProcessed && p.Importers[i].Source == "" {
			p.Importers[i].Source = p.Collections.Grid
		}
	}
}

// Names lists the projects in alphabetical order.
func (ps Projects) Names() []string {
	names := make([]string, 0, len(ps.Items))
	for n := range ps.Items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Project looks a project up by name.
func (ps Projects) Project(name string) (*Project, error) {
	p, ok := ps.Items[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	return p, nil
}

func (ps Projects) Validate() error {
	for _, name := range ps.Names() {
		if err := ps.Items[name].Validate(); err != nil {
			return fmt.Errorf("project %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks importer types and loader references.
func (p *Project) Validate() error {
	for i, imp := range p.Importers {
		switch imp.Type {
		case ImporterPowerGridProcessed:
			continue
		case ImporterGeoJSON, ImporterPowerAreas, ImporterPowerGrid, ImporterPlacementFull, ImporterPlacementIncremental:
		default:
			return fmt.Errorf("importer %d: %w: %q", i, ErrUnknownImporter, imp.Type)
		}
		if imp.Collection == "" {
			return fmt.Errorf("importer %d: collection is required for %s", i, imp.Type)
		}
		if _, ok := p.Loaders[imp.Loader]; !ok {
			return fmt.Errorf("importer %d: %w: %q", i, ErrUnknownLoader, imp.Loader)
		}
	}
	if _, err := geo.NewProj4(p.Projection); err != nil {
		return fmt.Errorf("projection: %w", err)
	}
	return nil
}

// GridOptions returns the build options of the project.
func (p *Project) GridOptions() (powermap.Options, error) {
	proj, err := geo.NewProj4(p.Projection)
	if err != nil {
		return powermap.Options{}, fmt.Errorf("projection: %w", err)
	}
	return powermap.Options{
		Projection:     proj,
		NearThreshold:  p.NearThresholdM,
		ConsumerRadius: p.ConsumerRadiusM,
	}, nil
}
