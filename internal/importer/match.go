package importer

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
)

// similarAreaTolerance is the share by which the intersection of two polygons
// may differ from the area of either polygon for them to count as similar.
const similarAreaTolerance = 0.1

// Action is what applying a Pair does to the store.
type Action int

const (
	ActionUnchanged Action = iota
	ActionAdd
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "added"
	case ActionUpdate:
		return "changed"
	case ActionDelete:
		return "deleted"
	}
	return "unchanged"
}

// Pair links a known feature with its fresh counterpart. Old is nil for
// additions and New is nil for deletions.
type Pair struct {
	Old *feature.Feature
	New *feature.Feature
}

func (p Pair) Action() Action {
	switch {
	case p.Old == nil:
		return ActionAdd
	case p.New == nil:
		return ActionDelete
	case Changed(*p.Old, *p.New):
		return ActionUpdate
	}
	return ActionUnchanged
}

// Changed reports whether geometry or properties differ.
func Changed(old, new feature.Feature) bool {
	return !feature.Equal(old, new)
}

type matcher struct {
	known  []*feature.Feature
	fresh  []*feature.Feature
	pairs  []Pair
	allIDs []string
	logger *slog.Logger
}

// Reconcile pairs the known features of a collection with a freshly fetched
// snapshot. Matching runs in two passes: first by id or identical geometry,
// then by nearest centroid when names agree and either the geometry is
// similar or another property matches. Fresh features without an id adopt
// the id of their match or receive a generated one.
//
// Pairs are returned as matches in match order, then additions in input
// order, then deletions ordered by id. The inputs are not modified.
func Reconcile(known, fresh []feature.Feature, logger *slog.Logger) []Pair {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &matcher{logger: logger}
	for i := range known {
		f := known[i].Clone()
		m.known = append(m.known, &f)
		if f.ID != "" {
			m.allIDs = append(m.allIDs, f.ID)
		}
	}
	sort.SliceStable(m.known, func(i, j int) bool { return m.known[i].ID < m.known[j].ID })
	for i := range fresh {
		f := fresh[i].Clone()
		m.fresh = append(m.fresh, &f)
		if f.ID != "" {
			m.allIDs = append(m.allIDs, f.ID)
		}
	}

	for _, f := range append([]*feature.Feature(nil), m.fresh...) {
		if found := m.exactMatch(f); found != nil {
			m.logger.Debug("exact match", "name", f.Name(), "id", found.ID)
			m.match(found, f)
		}
	}

	for _, f := range append([]*feature.Feature(nil), m.fresh...) {
		found := m.nearest(f)
		if found == nil || found.Name() != f.Name() {
			continue
		}
		m.logger.Debug("name match", "name", f.Name(), "id", found.ID)
		if GeometrySimilar(found.Geometry, f.Geometry) || MatchingProperties(found.Properties, f.Properties) > 0 {
			m.match(found, f)
		}
	}

	for _, f := range m.fresh {
		if f.ID == "" {
			f.ID = GenerateID(*f, m.allIDs)
			m.allIDs = append(m.allIDs, f.ID)
		}
		m.pairs = append(m.pairs, Pair{New: f})
	}
	for _, f := range m.known {
		m.pairs = append(m.pairs, Pair{Old: f})
	}
	return m.pairs
}

func (m *matcher) match(old, fresh *feature.Feature) {
	m.pairs = append(m.pairs, Pair{Old: old, New: fresh})
	m.known = remove(m.known, old)
	m.fresh = remove(m.fresh, fresh)
	if fresh.ID == "" {
		if old.ID != "" {
			fresh.ID = old.ID
		} else {
			m.logger.Warn("existing feature has no id", "name", old.Name())
		}
	}
}

// exactMatch prefers a known feature with the same id over one with the same
// geometry.
func (m *matcher) exactMatch(f *feature.Feature) *feature.Feature {
	if f.ID != "" {
		for _, k := range m.known {
			if k.ID == f.ID {
				return k
			}
		}
	}
	for _, k := range m.known {
		if feature.GeometryEqual(*k, *f) {
			return k
		}
	}
	return nil
}

func (m *matcher) nearest(f *feature.Feature) *feature.Feature {
	if f.Geometry == nil {
		return nil
	}
	c := geo.Centroid(f.Geometry)
	var best *feature.Feature
	bestD := math.Inf(1)
	for _, k := range m.known {
		if k.Geometry == nil {
			continue
		}
		if d := planar.Distance(c, geo.Centroid(k.Geometry)); d < bestD {
			best, bestD = k, d
		}
	}
	return best
}

func remove(s []*feature.Feature, f *feature.Feature) []*feature.Feature {
	for i, x := range s {
		if x == f {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// GeometrySimilar is true for polygons sharing an exterior vertex or
// overlapping by all but similarAreaTolerance of each of their areas, line
// strings sharing a vertex and equal points.
func GeometrySimilar(a, b orb.Geometry) bool {
	switch ga := a.(type) {
	case orb.Polygon:
		gb, ok := b.(orb.Polygon)
		if !ok || len(ga) == 0 || len(gb) == 0 {
			return false
		}
		if geo.SharedVertices(ga[0], gb[0]) > 0 {
			return true
		}
		aa, ab := geo.Area(ga), geo.Area(gb)
		ai := geo.IntersectionArea(ga, gb)
		return ai > 0 && math.Abs(aa-ai) < similarAreaTolerance*aa && math.Abs(ab-ai) < similarAreaTolerance*ab
	case orb.LineString:
		gb, ok := b.(orb.LineString)
		return ok && geo.SharedVertices(ga, gb) > 0
	case orb.Point:
		gb, ok := b.(orb.Point)
		return ok && ga.Equal(gb)
	}
	return false
}

// MatchingProperties counts the properties other than name and id that are
// set on both sides to the same non-empty value.
func MatchingProperties(a, b feature.Properties) int {
	n := 0
	for k, va := range a {
		if k == "name" || k == "id" || !truthy(va) {
			continue
		}
		vb, ok := b[k]
		if !ok || !truthy(vb) {
			continue
		}
		if feature.PropertiesEqual(feature.Properties{k: va}, feature.Properties{k: vb}) {
			n++
		}
	}
	return n
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

var nonIdentifier = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// GenerateID derives an id from the "fid" property, or the name, of f:
// the text is reduced to [A-Za-z0-9_] and numbered one past the highest
// number already used with the same prefix in ids.
func GenerateID(f feature.Feature, ids []string) string {
	src := f.Name()
	if _, ok := f.Properties.Lookup("fid"); ok {
		src = f.Properties.String("fid")
	}
	prefix := strings.Trim(nonIdentifier.ReplaceAllString(src, "_"), "_ ")
	if prefix == "" || (prefix[0] >= '0' && prefix[0] <= '9') {
		prefix = "_" + prefix
	}
	numbered := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)$`)
	highest := 0
	for _, id := range ids {
		m := numbered.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s_%d", prefix, highest+1)
}
