package powermap

import (
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doet/powermap/internal/feature"
)

func straightGrid() []feature.Feature {
	return []feature.Feature{
		pduFeature("src", 0, 0, "63", true),
		pduFeature("mid", 150, 0.3, "63", false),
		pduFeature("end", 300, 0, "63", false),
		cableFeature("main", "63", orb.Point{0, 0}, orb.Point{300, 0}),
	}
}

func TestSplitCableAtMidPDU(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures(straightGrid())

	require.Len(t, g.Cables, 2)
	first, ok := g.Cable("main_0")
	require.True(t, ok)
	second, ok := g.Cable("main_1")
	require.True(t, ok)

	assert.InDelta(t, 150, first.LengthM(), 1)
	assert.InDelta(t, 150, second.LengthM(), 1)
	assert.Equal(t, "main #0", first.Name)
	for _, c := range g.Cables {
		assert.Len(t, c.PDUs, 2, c.ID)
		assert.False(t, c.Unreliable)
	}

	warnings := g.Log.ForItem("main")
	require.Len(t, warnings, 1)
	assert.Equal(t, slog.LevelWarn, warnings[0].Level)
	assert.Equal(t, "Cable has 3 PDUs, split it into parts of [150, 150] meters (total length 300m)", warnings[0].Message)

	assert.Empty(t, g.Log.Filter(slog.LevelError))

	src, _ := g.PDU("src")
	mid, _ := g.PDU("mid")
	end, _ := g.PDU("end")
	assert.Equal(t, none, src.CableIn)
	assert.Equal(t, "main_0", g.Cables[mid.CableIn].ID)
	assert.Equal(t, "main_1", g.Cables[end.CableIn].ID)
	require.Len(t, mid.CablesOut, 1)
	assert.Equal(t, "main_1", g.Cables[mid.CablesOut[0]].ID)
	assert.Equal(t, "src", g.PDUs[first.PDUFrom].ID)
	assert.Equal(t, "mid", g.PDUs[first.PDUTo].ID)
}

func TestUnassignedPDULogsOneError(t *testing.T) {
	features := append(straightGrid(), pduFeature("lonely", 1000, 1000, "32", false))
	g := New(Options{})
	g.AddGridFeatures(features)

	errs := errorsFor(g, "lonely")
	require.Len(t, errs, 1)
	assert.Equal(t, "Unable to assign PDU to any cable line", errs[0].Message)
	assert.Len(t, g.Log.ForItem("lonely"), 1)

	lonely, _ := g.PDU("lonely")
	assert.False(t, lonely.Assigned)
	assert.Equal(t, none, lonely.CableIn)
	assert.Empty(t, lonely.CablesOut)
	for _, c := range g.Cables {
		for _, p := range c.PDUs {
			assert.NotEqual(t, "lonely", g.PDUs[p].ID)
		}
	}
	assert.Len(t, g.Root().PDUs, 4)
}

func TestPDUOnlyAttachesToLargeEnoughCable(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures([]feature.Feature{
		pduFeature("src", 0, 0, "125", true),
		pduFeature("big", 50, 0, "125", false),
		cableFeature("thin", "32", orb.Point{0, 0}, orb.Point{50, 0}),
	})

	big, _ := g.PDU("big")
	assert.False(t, big.Assigned)
	thin, _ := g.Cable("thin")
	require.Len(t, thin.PDUs, 1)
	assert.Equal(t, "src", g.PDUs[thin.PDUs[0]].ID)
	assert.True(t, thin.Unreliable)
	assert.Equal(t, "Cable doesn't have at least 2 PDUs assigned", errorsFor(g, "thin")[0].Message)
}

func TestNoPowerSource(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures([]feature.Feature{
		pduFeature("a", 0, 0, "32", false),
		pduFeature("b", 40, 0, "32", false),
		cableFeature("c", "32", orb.Point{0, 0}, orb.Point{40, 0}),
	})

	errs := g.Log.Filter(slog.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "", errs[0].ItemID)
	assert.Equal(t, "No power sources found, unable to connect anything", errs[0].Message)
	c, _ := g.Cable("c")
	assert.Equal(t, none, c.PDUFrom)
}

func TestLoopDoesNotReenergizeCable(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures([]feature.Feature{
		pduFeature("s", 0, 0, "63", true),
		pduFeature("a", 100, 0, "63", false),
		pduFeature("b", 100, 100, "63", false),
		cableFeature("c1", "63", orb.Point{0, 0}, orb.Point{100, 0}),
		cableFeature("c2", "63", orb.Point{100, 0}, orb.Point{100, 100}),
		cableFeature("c3", "63", orb.Point{100, 100}, orb.Point{0, 0}),
	})

	s, _ := g.PDU("s")
	c3, _ := g.Cable("c3")
	assert.Equal(t, "b", g.PDUs[c3.PDUFrom].ID)
	assert.Equal(t, "s", g.PDUs[c3.PDUTo].ID)
	assert.Equal(t, none, s.CableIn)

	require.Len(t, s.CablesOut, 1)
	assert.Equal(t, "c1", g.Cables[s.CablesOut[0]].ID)

	c3errs := errorsFor(g, "c3")
	require.Len(t, c3errs, 1)
	assert.Equal(t, "Cable is already energized", c3errs[0].Message)
	serrs := errorsFor(g, "s")
	require.Len(t, serrs, 1)
	assert.Equal(t, "Power source is fed by cable c3", serrs[0].Message)
}

func TestFailedSplitKeepsOriginalCable(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures([]feature.Feature{
		pduFeature("s", 0, 0, "63", true),
		pduFeature("twin", 0, 0.5, "63", false),
		pduFeature("end", 200, 0, "63", false),
		cableFeature("main", "63", orb.Point{0, 0}, orb.Point{200, 0}),
	})

	require.Len(t, g.Cables, 1)
	main := g.Cables[0]
	assert.Equal(t, "main", main.ID)
	assert.True(t, main.Unreliable)
	assert.Len(t, main.PDUs, 3)
	errs := errorsFor(g, "main")
	require.Len(t, errs, 1)
	assert.Equal(t, "Failed to split cable with 3 PDUs correctly", errs[0].Message)

	end, _ := g.PDU("end")
	assert.Equal(t, "PDU is not getting power", errorsFor(g, "end")[0].Message)
	assert.Equal(t, none, end.CableIn)
}

func TestBuildIsDeterministic(t *testing.T) {
	features := []feature.Feature{
		pduFeature("s", 0, 0, "63", true),
		pduFeature("a", 100, 0, "63", false),
		pduFeature("b", 100, 100, "32", false),
		pduFeature("x", 500, 500, "16", false),
		cableFeature("c1", "63", orb.Point{0, 0}, orb.Point{100, 0}),
		cableFeature("c2", "32", orb.Point{100, 0}, orb.Point{100, 100}),
		cableFeature("c3", "16", orb.Point{100, 100}, orb.Point{0, 0}),
	}
	first := New(Options{})
	first.AddGridFeatures(features)
	second := New(Options{})
	second.AddGridFeatures(features)

	assert.Equal(t, first.Log.Entries(), second.Log.Entries())
	for i := range first.Cables {
		assert.Equal(t, first.Cables[i].PDUFrom, second.Cables[i].PDUFrom)
		assert.Equal(t, first.Cables[i].PDUTo, second.Cables[i].PDUTo)
	}
}

func TestGridFeatureProperties(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures(straightGrid())

	fc := g.GridGeoJSON()
	require.Len(t, fc.Features, 5)
	mid := fc.Features[1]
	assert.Equal(t, "mid", mid.ID)
	assert.Equal(t, "main_0", mid.Properties["cable_in"])
	assert.Equal(t, []string{"main_1"}, mid.Properties["cables_out"])
	cable := fc.Features[3]
	assert.Equal(t, "src", cable.Properties["pdu_from"])
	assert.Equal(t, 150, cable.Properties["length_m"])
}
