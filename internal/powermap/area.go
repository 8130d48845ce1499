package powermap

import (
	"fmt"
	"iter"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
)

// nestedOverlap is the share of an area that must lie inside another area for
// it to be nested below it.
const nestedOverlap = 0.99

// Area is a named polygon grouping grid items and consumers. The root and the
// generated "-misc" areas have no polygon.
type Area struct {
	ID          string
	Name        string
	Description string
	Polygon     orb.Polygon
	Proj        orb.Polygon
	NestLevel   int

	Parent    int
	Children  []int
	PDUs      []int
	Cables    []int
	Consumers []int

	stats *AreaStats
}

// AreaStats are aggregated over the whole subtree of an area.
type AreaStats struct {
	Population int     `json:"population"`
	TotalPower float64 `json:"total_power"`
	Area       float64 `json:"area"`
}

// HasGeometry is false for the root and the catch-all areas.
func (a *Area) HasGeometry() bool { return len(a.Polygon) > 0 }

// AddAreaFeatures adds polygon features as areas. Each area is nested below
// the smallest existing area that covers it; larger areas are placed first so
// the input order does not matter. A repeated id fails the whole call.
func (g *Grid) AddAreaFeatures(features []feature.Feature) error {
	type candidate struct {
		area *Area
		size float64
	}
	seen := map[string]bool{}
	var cands []candidate
	for _, f := range features {
		id := f.ID
		if id == "" {
			id = f.Name()
		}
		if _, ok := g.areaIndex[id]; ok || seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateArea, id)
		}
		seen[id] = true

		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			g.Log.Warn(id, fmt.Sprintf("Area geometry is %s, expected Polygon", geometryType(f.Geometry)))
			continue
		}
		pg, err := geo.ProjectGeometry(g.proj, poly)
		if err != nil {
			g.Log.Error(id, fmt.Sprintf("Unable to project area: %v", err))
			continue
		}
		proj := pg.(orb.Polygon)
		name := f.Name()
		if name == "" {
			name = id
		}
		cands = append(cands, candidate{
			area: &Area{
				ID:          id,
				Name:        name,
				Description: f.Properties.String("description"),
				Polygon:     poly,
				Proj:        proj,
			},
			size: geo.Area(proj),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].size != cands[j].size {
			return cands[i].size > cands[j].size
		}
		return cands[i].area.ID < cands[j].area.ID
	})
	for _, c := range cands {
		g.insertArea(g.enclosingArea(0, c.area.Proj, c.size), c.area)
	}
	return nil
}

// enclosingArea returns the deepest area below parent that covers poly.
func (g *Grid) enclosingArea(parent int, poly orb.Polygon, size float64) int {
	for _, ci := range g.Areas[parent].Children {
		child := g.Areas[ci]
		if !child.HasGeometry() {
			continue
		}
		if geo.IntersectionArea(child.Proj, poly) >= nestedOverlap*size {
			return g.enclosingArea(ci, poly, size)
		}
	}
	return parent
}

func (g *Grid) insertArea(parent int, a *Area) int {
	idx := len(g.Areas)
	a.Parent = parent
	a.NestLevel = g.Areas[parent].NestLevel + 1
	if parent == 0 {
		a.NestLevel = 0
	}
	g.Areas = append(g.Areas, a)
	if _, ok := g.areaIndex[a.ID]; !ok {
		g.areaIndex[a.ID] = idx
	}

	p := g.Areas[parent]
	p.Children = append(p.Children, idx)
	sort.SliceStable(p.Children, func(i, j int) bool {
		return g.Areas[p.Children[i]].ID < g.Areas[p.Children[j]].ID
	})
	return idx
}

// miscArea returns the catch-all child of parent, creating it on first use.
// Its id derives from the parent id, its name from the parent name.
func (g *Grid) miscArea(parent int) int {
	p := g.Areas[parent]
	id := p.ID + "-misc"
	for _, ci := range p.Children {
		if g.Areas[ci].ID == id {
			return ci
		}
	}
	return g.insertArea(parent, &Area{ID: id, Name: p.Name + "-misc"})
}

type itemRef struct {
	kind  Kind
	index int
}

// addItem records the item at area a and descends into the child that
// contains it, or into the catch-all child when a has children but none of
// them contains the item.
func (g *Grid) addItem(a int, it itemRef) {
	area := g.Areas[a]
	area.stats = nil
	switch it.kind {
	case KindPDU:
		area.PDUs = append(area.PDUs, it.index)
		g.PDUs[it.index].Areas = append(g.PDUs[it.index].Areas, a)
	case KindCable:
		area.Cables = append(area.Cables, it.index)
		g.Cables[it.index].Areas = append(g.Cables[it.index].Areas, a)
	case KindConsumer:
		c := g.Consumers[it.index]
		if !c.Searched {
			g.findPDUs(it.index, area.PDUs)
		}
		area.Consumers = append(area.Consumers, it.index)
		c.Areas = append(c.Areas, a)
	}
	if len(area.Children) == 0 {
		return
	}
	next := g.containingChild(area, it)
	if next == none {
		next = g.miscArea(a)
	}
	g.addItem(next, it)
}

// containingChild picks the child of area that holds the item. Points go to
// the first containing child in id order. Lines go to the child holding the
// most vertices; ties go to the smaller id.
func (g *Grid) containingChild(area *Area, it itemRef) int {
	var pt orb.Point
	switch it.kind {
	case KindPDU:
		pt = g.PDUs[it.index].Proj
	case KindConsumer:
		pt = g.Consumers[it.index].Centroid()
	case KindCable:
		best, bestVotes := none, 0
		for _, ci := range area.Children {
			child := g.Areas[ci]
			if !child.HasGeometry() {
				continue
			}
			votes := 0
			for _, p := range g.Cables[it.index].Proj {
				if geo.Contains(child.Proj, p) {
					votes++
				}
			}
			if votes > bestVotes {
				best, bestVotes = ci, votes
			}
		}
		return best
	}
	for _, ci := range area.Children {
		child := g.Areas[ci]
		if child.HasGeometry() && geo.Contains(child.Proj, pt) {
			return ci
		}
	}
	return none
}

// AreasRecursive walks the area tree depth first, parents before children,
// starting at the root. With skipEmpty the areas without a polygon are left
// out but their children are still visited.
func (g *Grid) AreasRecursive(skipEmpty bool) iter.Seq[*Area] {
	return func(yield func(*Area) bool) {
		g.walkAreas(0, skipEmpty, yield)
	}
}

func (g *Grid) walkAreas(i int, skipEmpty bool, yield func(*Area) bool) bool {
	a := g.Areas[i]
	if !skipEmpty || a.HasGeometry() {
		if !yield(a) {
			return false
		}
	}
	for _, ci := range a.Children {
		if !g.walkAreas(ci, skipEmpty, yield) {
			return false
		}
	}
	return true
}

// DirectConsumers are the consumers of a that none of its children hold.
func (g *Grid) DirectConsumers(a *Area) []int {
	inChild := map[int]bool{}
	for _, ci := range a.Children {
		for _, c := range g.Areas[ci].Consumers {
			inChild[c] = true
		}
	}
	var out []int
	for _, c := range a.Consumers {
		if !inChild[c] {
			out = append(out, c)
		}
	}
	return out
}

// Stats returns the cached statistics of a, computing them bottom-up when
// items were added since the last call. Adding an item clears the cache of
// every area on its path. Stats is safe for concurrent use once no more items
// are added.
func (g *Grid) Stats(a *Area) AreaStats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	return g.stats(a)
}

// Finalize computes the statistics of every area.
func (g *Grid) Finalize() {
	g.Stats(g.Root())
}

func (g *Grid) stats(a *Area) AreaStats {
	if a.stats != nil {
		return *a.stats
	}
	var s AreaStats
	for _, ci := range a.Children {
		cs := g.stats(g.Areas[ci])
		s.Population += cs.Population
		s.TotalPower += cs.TotalPower
	}
	for _, c := range g.DirectConsumers(a) {
		s.Population += g.Consumers[c].NrOfPeople
		s.TotalPower += float64(g.Consumers[c].PowerNeed)
	}
	if a.HasGeometry() {
		s.Area = geo.Area(a.Proj)
	}
	a.stats = &s
	return s
}

// Center returns the lon/lat centroid of the area polygon.
func (a *Area) Center() orb.Point {
	if !a.HasGeometry() {
		return orb.Point{}
	}
	return geo.Centroid(a.Polygon)
}

func (a *Area) Feature(g *Grid) *geojson.Feature {
	var geom orb.Geometry
	if a.HasGeometry() {
		geom = a.Polygon
	}
	f := geojson.NewFeature(geom)
	f.ID = a.ID
	s := g.Stats(a)
	f.Properties = geojson.Properties{
		"type":        KindArea.String(),
		"name":        a.Name,
		"description": a.Description,
		"population":  s.Population,
		"total_power": s.TotalPower,
		"area":        s.Area,
	}
	return f
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "empty"
	}
	return g.GeoJSONType()
}
