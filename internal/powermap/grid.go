package powermap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
)

// AddGridFeatures builds the connectivity graph from point (PDU) and line
// (cable) features and places every item into the area tree.
//
// PDUs attach to cables passing closer than the near threshold. Cables with
// more than two PDUs are cut at the PDUs along them, then power is walked
// out from every power source.
func (g *Grid) AddGridFeatures(features []feature.Feature) {
	var pdus []*PDU
	var cables []*Cable
	for _, f := range features {
		switch gm := f.Geometry.(type) {
		case orb.Point:
			if p, ok := g.newPDU(f, gm); ok {
				pdus = append(pdus, p)
			}
		case orb.LineString:
			if c, ok := g.newCable(f, gm); ok {
				cables = append(cables, c)
			}
		default:
			g.Log.Warn(f.ID, fmt.Sprintf("Unsupported grid item geometry %s", geometryType(f.Geometry)))
		}
	}

	sort.SliceStable(pdus, func(i, j int) bool { return pdus[i].Size > pdus[j].Size })
	sort.SliceStable(cables, func(i, j int) bool { return cables[i].Size > cables[j].Size })

	base := len(g.PDUs)
	g.PDUs = append(g.PDUs, pdus...)

	sources := g.assignPDUs(base, cables)
	for _, c := range cables {
		sort.SliceStable(c.PDUs, func(i, j int) bool { return g.PDUs[c.PDUs[i]].Size > g.PDUs[c.PDUs[j]].Size })
	}

	cableBase := len(g.Cables)
	for _, c := range cables {
		n := len(c.PDUs)
		switch {
		case n > 2:
			g.Cables = append(g.Cables, g.splitCable(c)...)
		case n == 2:
			g.Cables = append(g.Cables, c)
		default:
			g.Log.Error(c.ID, "Cable doesn't have at least 2 PDUs assigned")
			c.Unreliable = true
			g.Cables = append(g.Cables, c)
		}
	}

	for ci := cableBase; ci < len(g.Cables); ci++ {
		c := g.Cables[ci]
		if len(c.PDUs) < 2 {
			continue
		}
		for _, p := range c.PDUs {
			g.PDUs[p].Cables = append(g.PDUs[p].Cables, ci)
		}
	}
	for _, p := range g.PDUs[base:] {
		sort.SliceStable(p.Cables, func(i, j int) bool { return g.Cables[p.Cables[i]].Size > g.Cables[p.Cables[j]].Size })
	}

	if len(sources) == 0 {
		g.Log.Error("", "No power sources found, unable to connect anything")
	} else {
		for _, s := range sources {
			g.energize(s)
		}
		for _, p := range g.PDUs[base:] {
			if p.Assigned && !p.PowerSource && p.CableIn == none {
				g.Log.Error(p.ID, "PDU is not getting power")
			}
		}
		for _, c := range g.Cables[cableBase:] {
			if len(c.PDUs) < 2 {
				continue
			}
			if c.PDUFrom == none {
				g.Log.Error(c.ID, "Cable is not connected to source")
			}
			if c.PDUTo == none {
				g.Log.Error(c.ID, "Cable is not connected to load")
			}
		}
	}

	for i := base; i < len(g.PDUs); i++ {
		g.addItem(0, itemRef{kind: KindPDU, index: i})
	}
	for i := cableBase; i < len(g.Cables); i++ {
		g.addItem(0, itemRef{kind: KindCable, index: i})
	}
}

func (g *Grid) newPDU(f feature.Feature, pt orb.Point) (*PDU, bool) {
	proj, err := g.proj.Project(pt)
	if err != nil {
		g.Log.Error(f.ID, fmt.Sprintf("Unable to project PDU: %v", err))
		return nil, false
	}
	return &PDU{
		ID:          f.ID,
		Name:        f.Name(),
		Description: f.Properties.String("description"),
		Location:    pt,
		Proj:        proj,
		Size:        g.itemSize(f),
		Native:      f.Properties.Bool("native", "power_native"),
		PowerSource: f.Properties.Bool("power_source"),
		CableIn:     none,
	}, true
}

func (g *Grid) newCable(f feature.Feature, ls orb.LineString) (*Cable, bool) {
	pg, err := geo.ProjectGeometry(g.proj, ls)
	if err != nil {
		g.Log.Error(f.ID, fmt.Sprintf("Unable to project cable: %v", err))
		return nil, false
	}
	return &Cable{
		ID:          f.ID,
		Name:        f.Name(),
		Description: f.Properties.String("description"),
		Line:        ls,
		Proj:        pg.(orb.LineString),
		Size:        g.itemSize(f),
		Native:      f.Properties.Bool("native", "power_native"),
		PDUFrom:     none,
		PDUTo:       none,
	}, true
}

func (g *Grid) itemSize(f feature.Feature) Size {
	v, _ := f.Properties.Lookup("size", "power_size")
	s, err := SizeFromValue(v)
	if err != nil {
		g.Log.Warn(f.ID, err.Error())
	}
	return s
}

type cableBox = geom.Bounds

// cableBounds is a padded cable bounding box in the rtree.
type cableBounds struct {
	*cableBox
	index int
}

// assignPDUs attaches each PDU from base on to every cable it touches and
// returns the indices of the power sources. A PDU attaches to a cable at
// least as large as itself; a power source attaches to any cable.
func (g *Grid) assignPDUs(base int, cables []*Cable) []int {
	tree := rtree.NewTree(25, 50)
	for i, c := range cables {
		tree.Insert(cableBounds{cableBox: geo.Bounds(c.Proj.Bound(), g.nearThreshold), index: i})
	}

	var sources []int
	for pi := base; pi < len(g.PDUs); pi++ {
		pdu := g.PDUs[pi]
		if pdu.PowerSource {
			sources = append(sources, pi)
		}
		var near []int
		for _, s := range tree.SearchIntersect(geo.Bounds(orb.Bound{Min: pdu.Proj, Max: pdu.Proj}, 0)) {
			near = append(near, s.(cableBounds).index)
		}
		sort.Ints(near)
		for _, ci := range near {
			c := cables[ci]
			if !pdu.PowerSource && c.Size < pdu.Size {
				continue
			}
			if geo.DistanceToLine(pdu.Proj, c.Proj) < g.nearThreshold {
				c.PDUs = append(c.PDUs, pi)
				pdu.Assigned = true
			}
		}
		if !pdu.Assigned {
			g.Log.Error(pdu.ID, "Unable to assign PDU to any cable line")
		}
	}
	return sources
}

// splitCable cuts c at the PDUs of its own size that are not at its ends.
// When every piece ends up with exactly two PDUs the pieces replace c;
// otherwise c is kept as is and flagged unreliable.
func (g *Grid) splitCable(c *Cable) []*Cable {
	n := len(c.PDUs)
	var cuts []orb.Point
	for _, pi := range c.PDUs {
		p := g.PDUs[pi]
		if p.Size == c.Size && !geo.NearEndPoint(p.Proj, c.Proj, g.nearThreshold) {
			cuts = append(cuts, p.Proj)
		}
	}

	ok := true
	var pieces []*Cable
	var lengths []string
	for idx, seg := range geo.CutLineAtPoints(c.Proj, cuts) {
		length := geo.Length(seg)
		if length < minSegmentLength {
			continue
		}
		line, err := geo.UnprojectGeometry(g.proj, seg)
		if err != nil {
			g.Log.Error(c.ID, fmt.Sprintf("Unable to unproject cable segment: %v", err))
			ok = false
			break
		}
		piece := &Cable{
			ID:          fmt.Sprintf("%s_%d", c.ID, idx),
			Name:        fmt.Sprintf("%s #%d", c.Name, idx),
			Description: c.Description,
			Line:        line.(orb.LineString),
			Proj:        seg,
			Size:        c.Size,
			Native:      c.Native,
			PDUFrom:     none,
			PDUTo:       none,
		}
		for _, pi := range c.PDUs {
			if geo.NearEndPoint(g.PDUs[pi].Proj, seg, g.nearThreshold) {
				piece.PDUs = append(piece.PDUs, pi)
			}
		}
		if len(piece.PDUs) != 2 {
			ok = false
		}
		pieces = append(pieces, piece)
		lengths = append(lengths, strconv.Itoa(int(length)))
	}

	if !ok {
		g.Log.Error(c.ID, fmt.Sprintf("Failed to split cable with %d PDUs correctly", n))
		c.Unreliable = true
		return []*Cable{c}
	}
	g.Log.Warn(c.ID, fmt.Sprintf("Cable has %d PDUs, split it into parts of [%s] meters (total length %dm)",
		n, strings.Join(lengths, ", "), c.LengthM()))
	return pieces
}

// energize walks power out of PDU p along every cable that is not energized
// yet. A cable's PDUFrom is never overwritten.
func (g *Grid) energize(p int) {
	pdu := g.PDUs[p]
	for _, ci := range pdu.Cables {
		if ci != pdu.CableIn && g.Cables[ci].PDUFrom == none {
			pdu.CablesOut = append(pdu.CablesOut, ci)
		}
	}
	pending := append([]int(nil), pdu.CablesOut...)
	for _, ci := range pending {
		c := g.Cables[ci]
		if c.PDUFrom != none {
			g.Log.Error(c.ID, "Cable is already energized")
			pdu.CablesOut = removeIndex(pdu.CablesOut, ci)
			continue
		}
		c.PDUFrom = p
		other := c.otherPDU(p)
		if other == none {
			continue
		}
		c.PDUTo = other
		o := g.PDUs[other]
		if o.PowerSource {
			g.Log.Error(o.ID, fmt.Sprintf("Power source is fed by cable %s", c.ID))
			continue
		}
		if o.CableIn != none {
			g.Log.Error(o.ID, fmt.Sprintf("PDU is already fed by cable %s, ignoring cable %s", g.Cables[o.CableIn].ID, c.ID))
			continue
		}
		o.CableIn = ci
		g.energize(other)
	}
}

func removeIndex(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
