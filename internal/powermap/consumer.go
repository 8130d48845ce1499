package powermap

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/geo"
)

// maxPowerNeed is the largest believable demand of one consumer in watts.
const maxPowerNeed = 100000

// AddPlacementFeatures adds consumers. Grid features must be added first so
// that consumers can be linked to the PDUs around them.
func (g *Grid) AddPlacementFeatures(features []feature.Feature) {
	for _, f := range features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			g.Log.Warn(f.ID, fmt.Sprintf("Placement geometry is %s, expected Polygon", geometryType(f.Geometry)))
			continue
		}
		pg, err := geo.ProjectGeometry(g.proj, poly)
		if err != nil {
			g.Log.Error(f.ID, fmt.Sprintf("Unable to project placement entity: %v", err))
			continue
		}
		c := g.newConsumer(f, poly, pg.(orb.Polygon))
		g.Consumers = append(g.Consumers, c)
		g.addItem(0, itemRef{kind: KindConsumer, index: len(g.Consumers) - 1})
	}
}

func (g *Grid) newConsumer(f feature.Feature, poly, proj orb.Polygon) *Consumer {
	p := f.Properties
	c := &Consumer{
		ID:               f.ID,
		Name:             f.Name(),
		Description:      p.String("description"),
		ContactInfo:      p.String("contactInfo", "contact_info"),
		Polygon:          poly,
		Proj:             proj,
		Color:            p.String("color"),
		SuppressWarnings: p.Bool("suppressWarnings", "suppress_warnings"),
	}
	c.NrOfPeople, _ = p.Int("nrOfPeople", "nr_of_people")
	c.NrOfVehicles, _ = p.Int("nrOfVechiles", "nrOfVehicles", "nr_of_vehicles")
	c.AdditionalSqm, _ = p.Float("additionalSqm", "additional_sqm")
	c.AmplifiedSound, _ = p.Int("amplifiedSound", "amplified_sound")
	need, _ := p.Int("powerNeed", "power_need")
	c.PowerNeed = g.normalizePowerNeed(c, need)
	return c
}

// normalizePowerNeed treats -1 as unset, flips negative values and drops
// values above maxPowerNeed.
func (g *Grid) normalizePowerNeed(c *Consumer, need int) int {
	name := c.Name
	if name == "" {
		name = "<Unknown>"
	}
	switch {
	case need == 0 || need == -1:
		return 0
	case need < 0:
		g.Log.Warn(c.ID, fmt.Sprintf("Negative power: '%s' wants %d W, fixing up", name, need))
		return -need
	case need > maxPowerNeed:
		g.Log.Warn(c.ID, fmt.Sprintf("Unrealisticly high power need: '%s' wants %d W, ignoring", name, need))
		return 0
	}
	return need
}

// findPDUs links consumer ci with every PDU within the consumer radius of
// its centroid.
func (g *Grid) findPDUs(ci int, pdus []int) {
	c := g.Consumers[ci]
	c.Searched = true
	if c.PowerNeed == 0 {
		return
	}
	center := c.Centroid()
	best := math.Inf(1)
	for _, pi := range pdus {
		d := planar.Distance(center, g.PDUs[pi].Proj)
		if d < best {
			best = d
		}
		if d > g.consumerRadius {
			continue
		}
		c.PDUs = append(c.PDUs, pi)
		g.PDUs[pi].Consumers = append(g.PDUs[pi].Consumers, ci)
	}
	if best > g.consumerRadius && !c.SuppressWarnings {
		if math.IsInf(best, 1) {
			g.Log.Warn(c.ID, "No PDU available")
		} else {
			g.Log.Warn(c.ID, fmt.Sprintf("Nearest PDU is too far (%.0fm)", best))
		}
	}
	if math.IsInf(best, 1) {
		c.NearestPDUDistance = -1
	} else {
		c.NearestPDUDistance = int(best)
	}
}
