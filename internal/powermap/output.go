package powermap

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/doet/powermap/internal/geo"
)

const coverageSegments = 32

// AreaInfo is one row of the areas JSON listing.
type AreaInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Population  int     `json:"population"`
	TotalPower  float64 `json:"total_power"`
	Area        float64 `json:"area"`
	CenterLon   float64 `json:"center_lon"`
	CenterLat   float64 `json:"center_lat"`
	NrPDUs      int     `json:"nr_pdus"`
	NrCables    int     `json:"nr_cables"`
	NrConsumers int     `json:"nr_consumers"`
}

// GridDocument is the full grid as served to clients.
type GridDocument struct {
	Timestamp time.Time                  `json:"timestamp"`
	Log       []LogEntry                 `json:"log"`
	Features  *geojson.FeatureCollection `json:"features"`
}

// AreasGeoJSON renders every area that has a polygon.
func (g *Grid) AreasGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for a := range g.AreasRecursive(true) {
		fc.Append(a.Feature(g))
	}
	return fc
}

// AreaInfos lists the statistics of every area that has a polygon.
func (g *Grid) AreaInfos() []AreaInfo {
	var out []AreaInfo
	for a := range g.AreasRecursive(true) {
		s := g.Stats(a)
		c := a.Center()
		out = append(out, AreaInfo{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Population:  s.Population,
			TotalPower:  s.TotalPower,
			Area:        s.Area,
			CenterLon:   c[0],
			CenterLat:   c[1],
			NrPDUs:      len(a.PDUs),
			NrCables:    len(a.Cables),
			NrConsumers: len(a.Consumers),
		})
	}
	return out
}

// WriteAreasCSV writes name;area;population;total_power_kw for every area
// that has a polygon.
func (g *Grid) WriteAreasCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"name", "area", "population", "total_power_kw"}); err != nil {
		return err
	}
	for a := range g.AreasRecursive(true) {
		s := g.Stats(a)
		row := []string{
			a.Name,
			strconv.Itoa(int(s.Area)),
			strconv.Itoa(s.Population),
			strconv.Itoa(int(s.TotalPower / 1000)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// GridGeoJSON renders PDUs followed by cables.
func (g *Grid) GridGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range g.PDUs {
		fc.Append(p.Feature(g))
	}
	for _, c := range g.Cables {
		fc.Append(c.Feature(g))
	}
	return fc
}

// Document returns the grid with the log entries at or above minLevel.
func (g *Grid) Document(minLevel slog.Level) GridDocument {
	entries := g.Log.Filter(minLevel)
	if entries == nil {
		entries = []LogEntry{}
	}
	return GridDocument{
		Timestamp: g.Timestamp,
		Log:       entries,
		Features:  g.GridGeoJSON(),
	}
}

// CoverageGeoJSON renders a circle of radius metres around every PDU.
func (g *Grid) CoverageGeoJSON(radius float64) (*geojson.FeatureCollection, error) {
	if radius <= 0 {
		radius = g.consumerRadius
	}
	fc := geojson.NewFeatureCollection()
	for _, p := range g.PDUs {
		ring := geo.Circle(p.Proj, radius, coverageSegments)
		poly, err := geo.UnprojectGeometry(g.proj, orb.Polygon{ring})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoProjection, err)
		}
		f := geojson.NewFeature(poly)
		f.ID = p.ID
		f.Properties["name"] = p.Name
		f.Properties["size"] = p.Size.String()
		fc.Append(f)
	}
	return fc, nil
}

// WriteCablesCSV lists cables as area;name;size;length_m. Native cables are
// left out unless includeNative is set.
func (g *Grid) WriteCablesCSV(w io.Writer, includeNative bool) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"area", "name", "size", "length_m"}); err != nil {
		return err
	}
	for _, c := range g.Cables {
		if c.Native && !includeNative {
			continue
		}
		row := []string{
			g.topArea(c.Areas),
			nameDescription(c.Name, c.Description),
			c.Size.String(),
			strconv.Itoa(c.LengthM()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePDUCountsCSV counts non-native PDUs per size, largest first.
func (g *Grid) WritePDUCountsCSV(w io.Writer) error {
	counts := g.Statistics().PDUs
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"size", "count"}); err != nil {
		return err
	}
	for _, s := range Sizes {
		n, ok := counts[s]
		if !ok {
			continue
		}
		if err := cw.Write([]string{s.String(), strconv.Itoa(n)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PlacementGeoJSON renders consumers with their PDU statistics.
func (g *Grid) PlacementGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range g.Consumers {
		fc.Append(c.Feature(g))
	}
	return fc
}

// topArea is the name of the first area below the root, if any.
func (g *Grid) topArea(areas []int) string {
	for _, a := range areas {
		if a != 0 {
			return g.Areas[a].Name
		}
	}
	return ""
}
