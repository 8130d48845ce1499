package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DistanceToLine is the shortest planar distance from p to the line.
func DistanceToLine(p orb.Point, ls orb.LineString) float64 {
	if len(ls) == 0 {
		return math.Inf(1)
	}
	if len(ls) == 1 {
		return planar.Distance(p, ls[0])
	}
	return planar.DistanceFrom(ls, p)
}

// LineLocate returns the distance along ls of the point on ls nearest to p.
// Where two segments are equally near, the earlier one wins.
func LineLocate(ls orb.LineString, p orb.Point) float64 {
	best := math.Inf(1)
	along, acc := 0.0, 0.0
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		seg := planar.Distance(a, b)
		t := 0.0
		if seg > 0 {
			t = ((p[0]-a[0])*(b[0]-a[0]) + (p[1]-a[1])*(b[1]-a[1])) / (seg * seg)
			t = math.Max(0, math.Min(1, t))
		}
		q := orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
		if d := planar.Distance(p, q); d < best {
			best = d
			along = acc + t*seg
		}
		acc += seg
	}
	return along
}

// Length of a line string.
func Length(ls orb.LineString) float64 {
	return planar.Length(ls)
}

// EndPoints returns the first and last vertex.
func EndPoints(ls orb.LineString) [2]orb.Point {
	if len(ls) == 0 {
		return [2]orb.Point{}
	}
	return [2]orb.Point{ls[0], ls[len(ls)-1]}
}

// NearEndPoint reports whether p lies within threshold of either end of ls.
func NearEndPoint(p orb.Point, ls orb.LineString, threshold float64) bool {
	for _, ep := range EndPoints(ls) {
		if planar.Distance(p, ep) < threshold {
			return true
		}
	}
	return false
}

// Area of a polygon, always non-negative.
func Area(poly orb.Polygon) float64 {
	return math.Abs(planar.Area(poly))
}

// Centroid of any geometry.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// Contains reports whether p lies inside poly, holes excluded.
func Contains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	if !poly.Bound().Contains(p) {
		return false
	}
	return planar.PolygonContains(poly, p)
}

// Circle approximates a circle as a closed ring with the given number of segments.
func Circle(center orb.Point, radius float64, segments int) orb.Ring {
	if segments < 3 {
		segments = 3
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{center[0] + radius*math.Cos(a), center[1] + radius*math.Sin(a)})
	}
	return append(ring, ring[0])
}

// SharedVertices counts the vertex pairs of a and b that are exactly equal.
func SharedVertices(a, b []orb.Point) int {
	n := 0
	for _, p := range a {
		for _, q := range b {
			if p.Equal(q) {
				n++
			}
		}
	}
	return n
}
