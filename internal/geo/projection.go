// Package geo provides the planar geometry the power map engine needs:
// projection into a metric CRS, distances, linear referencing, line cutting
// and polygon overlap.
package geo

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// SWEREF99TM is the default metric CRS (EPSG:3006).
const SWEREF99TM = "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"

const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// ErrUnsupportedGeometry is returned when a geometry type cannot be projected.
var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// Projection converts WGS84 lon/lat coordinates to metres and back.
type Projection interface {
	Project(p orb.Point) (orb.Point, error)
	Unproject(p orb.Point) (orb.Point, error)
}

// Planar is the identity projection, used when coordinates already are metres.
type Planar struct{}

func (Planar) Project(p orb.Point) (orb.Point, error)   { return p, nil }
func (Planar) Unproject(p orb.Point) (orb.Point, error) { return p, nil }

// Proj4 projects through a proj4 definition string.
type Proj4 struct {
	def string
	fwd proj.Transformer
	inv proj.Transformer
}

// NewProj4 builds a projection from WGS84 to the CRS described by def.
// An empty def selects SWEREF99TM.
func NewProj4(def string) (*Proj4, error) {
	if def == "" {
		def = SWEREF99TM
	}
	src, err := proj.Parse(wgs84)
	if err != nil {
		return nil, fmt.Errorf("parse wgs84: %w", err)
	}
	dst, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse projection %q: %w", def, err)
	}
	fwd, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("forward transform: %w", err)
	}
	inv, err := dst.NewTransform(src)
	if err != nil {
		return nil, fmt.Errorf("inverse transform: %w", err)
	}
	return &Proj4{def: def, fwd: fwd, inv: inv}, nil
}

// Definition returns the proj4 string of the target CRS.
func (p *Proj4) Definition() string { return p.def }

func (p *Proj4) Project(pt orb.Point) (orb.Point, error) {
	x, y, err := p.fwd(pt[0], pt[1])
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

func (p *Proj4) Unproject(pt orb.Point) (orb.Point, error) {
	x, y, err := p.inv(pt[0], pt[1])
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

// ProjectGeometry applies pr.Project to every vertex of g.
func ProjectGeometry(pr Projection, g orb.Geometry) (orb.Geometry, error) {
	return transform(pr.Project, g)
}

// UnprojectGeometry applies pr.Unproject to every vertex of g.
func UnprojectGeometry(pr Projection, g orb.Geometry) (orb.Geometry, error) {
	return transform(pr.Unproject, g)
}

func transform(fn func(orb.Point) (orb.Point, error), g orb.Geometry) (orb.Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.LineString:
		out, err := transformPoints(fn, v)
		return orb.LineString(out), err
	case orb.Ring:
		out, err := transformPoints(fn, v)
		return orb.Ring(out), err
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			pts, err := transformPoints(fn, r)
			if err != nil {
				return nil, err
			}
			out[i] = orb.Ring(pts)
		}
		return out, nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			pg, err := transform(fn, poly)
			if err != nil {
				return nil, err
			}
			out[i] = pg.(orb.Polygon)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

func transformPoints(fn func(orb.Point) (orb.Point, error), pts []orb.Point) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		q, err := fn(p)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}
