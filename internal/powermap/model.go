package powermap

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
)

// Kind tags the variants of Item.
type Kind int

const (
	KindArea Kind = iota
	KindPDU
	KindCable
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindArea:
		return "power_area"
	case KindPDU:
		return "power_grid_pdu"
	case KindCable:
		return "power_grid_cable"
	case KindConsumer:
		return "power_consumer"
	}
	return "unknown"
}

// Item is implemented by *Area, *PDU, *Cable and *Consumer only.
// Cross references between items are indices into the owning Grid.
type Item interface {
	Kind() Kind
	ItemID() string
	// Feature renders the item with its computed properties.
	Feature(g *Grid) *geojson.Feature
	isItem()
}

const none = -1

// PDU is a power distribution unit.
type PDU struct {
	ID          string
	Name        string
	Description string
	Location    orb.Point
	Proj        orb.Point
	Size        Size
	Native      bool
	PowerSource bool

	// Assigned is false when no cable passes near the PDU.
	Assigned  bool
	CableIn   int
	CablesOut []int
	Cables    []int
	Consumers []int
	Areas     []int
}

// Cable is a line between two PDUs once the grid is connected.
type Cable struct {
	ID          string
	Name        string
	Description string
	Line        orb.LineString
	Proj        orb.LineString
	Size        Size
	Native      bool

	PDUFrom int
	PDUTo   int
	PDUs    []int
	// Unreliable marks cables whose PDUs could not be resolved to exactly two.
	Unreliable bool
	Areas      []int
}

// Consumer is a placement entity that needs power.
type Consumer struct {
	ID               string
	Name             string
	Description      string
	ContactInfo      string
	Polygon          orb.Polygon
	Proj             orb.Polygon
	NrOfPeople       int
	NrOfVehicles     int
	AdditionalSqm    float64
	PowerNeed        int
	AmplifiedSound   int
	Color            string
	SuppressWarnings bool

	// Searched is set once nearby PDUs have been looked up.
	Searched           bool
	NearestPDUDistance int
	PDUs               []int
	Areas              []int
}

func (*PDU) Kind() Kind      { return KindPDU }
func (*Cable) Kind() Kind    { return KindCable }
func (*Consumer) Kind() Kind { return KindConsumer }
func (*Area) Kind() Kind     { return KindArea }

func (p *PDU) ItemID() string      { return p.ID }
func (c *Cable) ItemID() string    { return c.ID }
func (c *Consumer) ItemID() string { return c.ID }
func (a *Area) ItemID() string     { return a.ID }

func (*PDU) isItem()      {}
func (*Cable) isItem()    {}
func (*Consumer) isItem() {}
func (*Area) isItem()     {}

// LengthM is the projected length truncated to whole metres.
func (c *Cable) LengthM() int {
	return int(geo.Length(c.Proj))
}

// NrPDUs is the number of PDUs within reach of the consumer.
func (c *Consumer) NrPDUs() int { return len(c.PDUs) }

// Centroid of the consumer in projected coordinates.
func (c *Consumer) Centroid() orb.Point { return geo.Centroid(c.Proj) }

func (c *Cable) otherPDU(p int) int {
	for _, q := range c.PDUs {
		if q != p {
			return q
		}
	}
	return none
}

func nameDescription(name, description string) string {
	if description == "" {
		return name
	}
	return name + " - " + description
}

func (p *PDU) Feature(g *Grid) *geojson.Feature {
	f := geojson.NewFeature(p.Location)
	f.ID = p.ID
	props := baseProperties(KindPDU, p.Name, p.Description, p.Size, p.Native)
	props["power_source"] = p.PowerSource
	props["nr_consumers"] = len(p.Consumers)
	props["cable_in"] = g.cableID(p.CableIn)
	out := make([]string, 0, len(p.CablesOut))
	for _, ci := range p.CablesOut {
		out = append(out, g.Cables[ci].ID)
	}
	props["cables_out"] = out
	f.Properties = geojson.Properties(props)
	return f
}

func (c *Cable) Feature(g *Grid) *geojson.Feature {
	f := geojson.NewFeature(c.Line)
	f.ID = c.ID
	props := baseProperties(KindCable, c.Name, c.Description, c.Size, c.Native)
	props["length_m"] = c.LengthM()
	props["pdu_from"] = g.pduID(c.PDUFrom)
	props["pdu_to"] = g.pduID(c.PDUTo)
	if c.Unreliable {
		props["unreliable"] = true
	}
	f.Properties = geojson.Properties(props)
	return f
}

// Feature renders the consumer without contact information.
func (c *Consumer) Feature(*Grid) *geojson.Feature {
	f := geojson.NewFeature(c.Polygon)
	f.ID = c.ID
	props := feature.Properties{
		"type":           KindConsumer.String(),
		"name":           c.Name,
		"description":    c.Description,
		"nrOfPeople":     c.NrOfPeople,
		"nrOfVechiles":   c.NrOfVehicles,
		"additionalSqm":  c.AdditionalSqm,
		"powerNeed":      c.PowerNeed,
		"amplifiedSound": c.AmplifiedSound,
	}
	if c.Color != "" {
		props["color"] = c.Color
	}
	if c.Searched && c.PowerNeed != 0 {
		props["power_nr_pdus"] = c.NrPDUs()
		props["power_nearest_pdu_distance"] = c.NearestPDUDistance
	}
	f.Properties = geojson.Properties(props)
	return f
}

func baseProperties(k Kind, name, description string, size Size, native bool) feature.Properties {
	return feature.Properties{
		"type":        k.String(),
		"name":        name,
		"description": description,
		"size":        size.String(),
		"native":      native,
	}
}
