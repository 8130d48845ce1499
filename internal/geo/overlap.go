package geo

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
)

// IntersectionArea returns the area shared by two polygons.
func IntersectionArea(a, b orb.Polygon) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	in := toGeomPolygon(a).Intersection(toGeomPolygon(b))
	if in == nil {
		return 0
	}
	return math.Abs(in.Area())
}

func toGeomPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, r := range p {
		path := make(geom.Path, 0, len(r))
		for _, pt := range r {
			path = append(path, geom.Point{X: pt[0], Y: pt[1]})
		}
		out = append(out, path)
	}
	return out
}

// Bounds converts an orb bound to a geom bounds, grown by pad on every side.
func Bounds(b orb.Bound, pad float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Min[0] - pad, Y: b.Min[1] - pad},
		Max: geom.Point{X: b.Max[0] + pad, Y: b.Max[1] + pad},
	}
}
