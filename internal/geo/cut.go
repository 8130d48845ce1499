package geo

import (
	"sort"

	"github.com/paulmach/orb"
)

type station struct {
	along float64
	p     orb.Point
	cut   bool
}

// CutLineAtPoints splits ls into contiguous pieces at the given points. Every
// vertex and cut point is ordered by its position along the line; a new piece
// starts at each cut point. Degenerate pieces are returned as is and left for
// the caller to discard by length.
func CutLineAtPoints(ls orb.LineString, points []orb.Point) []orb.LineString {
	stations := make([]station, 0, len(ls)+len(points))
	for _, p := range ls {
		stations = append(stations, station{along: LineLocate(ls, p), p: p, cut: containsPoint(points, p)})
	}
	for _, p := range points {
		stations = append(stations, station{along: LineLocate(ls, p), p: p, cut: true})
	}
	sort.SliceStable(stations, func(i, j int) bool {
		a, b := stations[i], stations[j]
		if a.along != b.along {
			return a.along < b.along
		}
		if a.p[0] != b.p[0] {
			return a.p[0] < b.p[0]
		}
		return a.p[1] < b.p[1]
	})

	var pieces []orb.LineString
	var chunk orb.LineString
	for _, s := range stations {
		chunk = append(chunk, s.p)
		if len(chunk) > 1 && s.cut {
			pieces = append(pieces, chunk)
			chunk = orb.LineString{s.p}
		}
	}
	if len(chunk) > 1 {
		pieces = append(pieces, chunk)
	}
	return pieces
}

func containsPoint(points []orb.Point, p orb.Point) bool {
	for _, q := range points {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
