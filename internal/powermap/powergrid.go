// Package powermap builds the power map of an event: a tree of nested areas,
// the cable and PDU connectivity graph and the consumers fed by it.
//
// A Grid is built once from complete feature snapshots. Problems with single
// items never fail the build; they are recorded in the grid's ItemizedLog.
package powermap

import (
	"log/slog"
	"sync"
	"time"

	"github.com/doet/powermap/internal/geo"
)

const (
	// DefaultNearThreshold is the distance in metres under which a PDU
	// touches a cable.
	DefaultNearThreshold = 1.0
	// DefaultConsumerRadius is the distance in metres within which a PDU can
	// feed a consumer.
	DefaultConsumerRadius = 50.0

	minSegmentLength = 1.0
	rootID           = "<TopLevel>"
)

// Options configures a Grid. Zero values select the defaults.
type Options struct {
	Projection     geo.Projection
	NearThreshold  float64
	ConsumerRadius float64
	Logger         *slog.Logger
	Timestamp      time.Time
}

// Grid owns every area, PDU, cable and consumer of one build. Areas[0] is the
// synthetic root.
type Grid struct {
	Timestamp time.Time
	Areas     []*Area
	PDUs      []*PDU
	Cables    []*Cable
	Consumers []*Consumer
	Log       *ItemizedLog

	proj           geo.Projection
	nearThreshold  float64
	consumerRadius float64
	areaIndex      map[string]int

	statsMu sync.Mutex
}

// New returns an empty grid holding only the root area.
func New(opts Options) *Grid {
	if opts.Projection == nil {
		opts.Projection = geo.Planar{}
	}
	if opts.NearThreshold <= 0 {
		opts.NearThreshold = DefaultNearThreshold
	}
	if opts.ConsumerRadius <= 0 {
		opts.ConsumerRadius = DefaultConsumerRadius
	}
	if opts.Timestamp.IsZero() {
		opts.Timestamp = time.Now()
	}
	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "validation")
	}
	g := &Grid{
		Timestamp:      opts.Timestamp,
		Log:            NewItemizedLog(logger),
		proj:           opts.Projection,
		nearThreshold:  opts.NearThreshold,
		consumerRadius: opts.ConsumerRadius,
		areaIndex:      map[string]int{},
	}
	g.Areas = append(g.Areas, &Area{ID: rootID, Name: rootID, Parent: none})
	g.areaIndex[rootID] = 0
	return g
}

// Root returns the synthetic top level area.
func (g *Grid) Root() *Area { return g.Areas[0] }

// Projection used for every metric computation of the grid.
func (g *Grid) Projection() geo.Projection { return g.proj }

// Items returns PDUs, then cables, then consumers.
func (g *Grid) Items() []Item {
	out := make([]Item, 0, len(g.PDUs)+len(g.Cables)+len(g.Consumers))
	for _, p := range g.PDUs {
		out = append(out, p)
	}
	for _, c := range g.Cables {
		out = append(out, c)
	}
	for _, c := range g.Consumers {
		out = append(out, c)
	}
	return out
}

// PDU returns the PDU with the given id.
func (g *Grid) PDU(id string) (*PDU, bool) {
	for _, p := range g.PDUs {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Cable returns the cable with the given id.
func (g *Grid) Cable(id string) (*Cable, bool) {
	for _, c := range g.Cables {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Area returns the area with the given id.
func (g *Grid) Area(id string) (*Area, bool) {
	i, ok := g.areaIndex[id]
	if !ok {
		return nil, false
	}
	return g.Areas[i], true
}

func (g *Grid) pduID(i int) any {
	if i < 0 {
		return nil
	}
	return g.PDUs[i].ID
}

func (g *Grid) cableID(i int) any {
	if i < 0 {
		return nil
	}
	return g.Cables[i].ID
}
