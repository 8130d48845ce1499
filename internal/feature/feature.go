// Package feature holds the raw geographic features exchanged between loaders,
// the revision store and the topology engine.
package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is an identifier, a geometry and a kind specific property bag.
// An empty ID means the feature has not been assigned one yet.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties Properties
}

// New returns a feature with an empty property bag.
func New(id string, g orb.Geometry) Feature {
	return Feature{ID: id, Geometry: g, Properties: Properties{}}
}

// Name returns the "name" property.
func (f Feature) Name() string {
	return f.Properties.String("name")
}

// Clone returns a deep copy of the geometry and a shallow copy of the properties.
func (f Feature) Clone() Feature {
	out := Feature{ID: f.ID, Properties: f.Properties.Clone()}
	if f.Geometry != nil {
		out.Geometry = orb.Clone(f.Geometry)
	}
	return out
}

// FromGeoJSON converts a decoded GeoJSON feature. Numeric ids are formatted
// without a fractional part.
func FromGeoJSON(gf *geojson.Feature) Feature {
	f := Feature{Geometry: gf.Geometry, Properties: Properties{}}
	switch id := gf.ID.(type) {
	case nil:
	case string:
		f.ID = id
	case float64:
		f.ID = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		f.ID = fmt.Sprint(id)
	}
	for k, v := range gf.Properties {
		f.Properties[k] = v
	}
	return f
}

// GeoJSON converts the feature back to its GeoJSON representation.
func (f Feature) GeoJSON() *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	if f.ID != "" {
		gf.ID = f.ID
	}
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	return gf
}

// MarshalJSON encodes the feature as a GeoJSON Feature object.
func (f Feature) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.GeoJSON())
}

// UnmarshalJSON decodes a GeoJSON Feature object.
func (f *Feature) UnmarshalJSON(data []byte) error {
	gf, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return err
	}
	*f = FromGeoJSON(gf)
	return nil
}

// DecodeCollection parses a GeoJSON FeatureCollection.
func DecodeCollection(data []byte) ([]Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	out := make([]Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		out = append(out, FromGeoJSON(gf))
	}
	return out, nil
}

// EncodeCollection renders features as a GeoJSON FeatureCollection.
func EncodeCollection(features []Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f.GeoJSON())
	}
	return json.Marshal(fc)
}

// GeometryEqual reports whether both features carry exactly the same geometry.
func GeometryEqual(a, b Feature) bool {
	if a.Geometry == nil || b.Geometry == nil {
		return a.Geometry == nil && b.Geometry == nil
	}
	return orb.Equal(a.Geometry, b.Geometry)
}

// PropertiesEqual compares property bags by their JSON encoding so that values
// built in code and values decoded from JSON compare alike.
func PropertiesEqual(a, b Properties) bool {
	ja, err := json.Marshal(a.normalized())
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b.normalized())
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Equal reports whether geometry and properties are identical. IDs are ignored.
func Equal(a, b Feature) bool {
	return GeometryEqual(a, b) && PropertiesEqual(a.Properties, b.Properties)
}
