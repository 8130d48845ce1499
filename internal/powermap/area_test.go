package powermap

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doet/powermap/internal/feature"
)

func festivalGrid(t *testing.T) *Grid {
	t.Helper()
	g := New(Options{})
	require.NoError(t, g.AddAreaFeatures([]feature.Feature{
		squareFeature("camp", 10, 10, 100),
		squareFeature("zone", 0, 0, 1000),
		squareFeature("stage", 2000, 0, 100),
	}))
	g.AddGridFeatures([]feature.Feature{
		pduFeature("p1", 50, 50, "32", true),
		pduFeature("p2", 500, 500, "32", false),
		pduFeature("p3", 5000, 5000, "32", false),
	})
	g.AddPlacementFeatures([]feature.Feature{
		consumerFeature("c1", 20, 20, 10, 10, 2000),
		consumerFeature("c2", 400, 400, 10, 5, 1000),
	})
	return g
}

func areaIDs(g *Grid, skipEmpty bool) []string {
	var ids []string
	for a := range g.AreasRecursive(skipEmpty) {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestAreasNestBySize(t *testing.T) {
	g := festivalGrid(t)

	camp, ok := g.Area("camp")
	require.True(t, ok)
	assert.Equal(t, "zone", g.Areas[camp.Parent].ID)
	assert.Equal(t, 1, camp.NestLevel)

	assert.Equal(t,
		[]string{"<TopLevel>", "<TopLevel>-misc", "stage", "zone", "camp", "zone-misc"},
		areaIDs(g, false))
	assert.Equal(t, []string{"stage", "zone", "camp"}, areaIDs(g, true))
}

func TestAreasRecursiveStopsEarly(t *testing.T) {
	g := festivalGrid(t)
	n := 0
	for range g.AreasRecursive(false) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestItemsGoToDeepestArea(t *testing.T) {
	g := festivalGrid(t)

	p1, _ := g.PDU("p1")
	p2, _ := g.PDU("p2")
	p3, _ := g.PDU("p3")
	path := func(areas []int) []string {
		var out []string
		for _, a := range areas {
			out = append(out, g.Areas[a].ID)
		}
		return out
	}
	assert.Equal(t, []string{"<TopLevel>", "zone", "camp"}, path(p1.Areas))
	assert.Equal(t, []string{"<TopLevel>", "zone", "zone-misc"}, path(p2.Areas))
	assert.Equal(t, []string{"<TopLevel>", "<TopLevel>-misc"}, path(p3.Areas))

	misc, ok := g.Area("zone-misc")
	require.True(t, ok)
	assert.False(t, misc.HasGeometry())
}

func TestPopulationAggregatesBottomUp(t *testing.T) {
	g := festivalGrid(t)

	for a := range g.AreasRecursive(false) {
		want := 0
		for _, ci := range a.Children {
			want += g.Stats(g.Areas[ci]).Population
		}
		for _, c := range g.DirectConsumers(a) {
			want += g.Consumers[c].NrOfPeople
		}
		assert.Equal(t, want, g.Stats(a).Population, a.ID)
	}

	zone, _ := g.Area("zone")
	camp, _ := g.Area("camp")
	assert.Equal(t, 15, g.Stats(zone).Population)
	assert.Equal(t, 3000.0, g.Stats(zone).TotalPower)
	assert.Equal(t, 10, g.Stats(camp).Population)
	assert.InDelta(t, 10000, g.Stats(camp).Area, 1e-6)
	assert.Equal(t, 15, g.Stats(g.Root()).Population)
}

func TestStatsRecomputedAfterAdd(t *testing.T) {
	g := festivalGrid(t)
	camp, _ := g.Area("camp")
	assert.Equal(t, 10, g.Stats(camp).Population)

	g.AddPlacementFeatures([]feature.Feature{consumerFeature("c3", 60, 60, 5, 7, 0)})
	assert.Equal(t, 17, g.Stats(camp).Population)
	assert.Equal(t, 22, g.Stats(g.Root()).Population)
}

func TestConsumersFindNearbyPDUs(t *testing.T) {
	g := festivalGrid(t)

	c1 := g.Consumers[0]
	assert.Equal(t, 1, c1.NrPDUs())
	assert.Equal(t, 35, c1.NearestPDUDistance)
	p1, _ := g.PDU("p1")
	assert.Equal(t, []int{0}, p1.Consumers)

	c2 := g.Consumers[1]
	assert.Equal(t, 0, c2.NrPDUs())
	entries := g.Log.ForItem("c2")
	require.Len(t, entries, 1)
	assert.Equal(t, "Nearest PDU is too far (134m)", entries[0].Message)
}

func TestPowerNeedNormalisation(t *testing.T) {
	g := New(Options{})
	neg := consumerFeature("neg", 0, 0, 10, 1, -500)
	huge := consumerFeature("huge", 0, 0, 10, 1, 250000)
	unset := consumerFeature("unset", 0, 0, 10, 1, -1)
	g.AddPlacementFeatures([]feature.Feature{neg, huge, unset})

	require.Len(t, g.Consumers, 3)
	assert.Equal(t, 500, g.Consumers[0].PowerNeed)
	assert.Equal(t, 0, g.Consumers[1].PowerNeed)
	assert.Equal(t, 0, g.Consumers[2].PowerNeed)
	assert.Equal(t, "Negative power: 'neg' wants -500 W, fixing up", g.Log.ForItem("neg")[0].Message)
	assert.Empty(t, g.Log.ForItem("unset"))
}

func TestCableGoesToAreaWithMostVertices(t *testing.T) {
	g := New(Options{})
	require.NoError(t, g.AddAreaFeatures([]feature.Feature{
		squareFeature("b", 100, 0, 100),
		squareFeature("a", 0, 0, 100),
	}))
	g.AddGridFeatures([]feature.Feature{
		cableFeature("mostly-b", "16", orb.Point{10, 10}, orb.Point{150, 10}, orb.Point{160, 10}, orb.Point{170, 10}),
		cableFeature("tie", "16", orb.Point{10, 10}, orb.Point{20, 10}, orb.Point{150, 10}, orb.Point{160, 10}),
	})

	mostlyB, _ := g.Cable("mostly-b")
	tie, _ := g.Cable("tie")
	assert.Equal(t, "b", g.Areas[mostlyB.Areas[1]].ID)
	assert.Equal(t, "a", g.Areas[tie.Areas[1]].ID)
}

func TestDuplicateAreaIsFatal(t *testing.T) {
	g := New(Options{})
	err := g.AddAreaFeatures([]feature.Feature{
		squareFeature("x", 0, 0, 10),
		squareFeature("x", 20, 0, 10),
	})
	assert.ErrorIs(t, err, ErrDuplicateArea)

	g = New(Options{})
	require.NoError(t, g.AddAreaFeatures([]feature.Feature{squareFeature("x", 0, 0, 10)}))
	assert.ErrorIs(t, g.AddAreaFeatures([]feature.Feature{squareFeature("x", 50, 0, 10)}), ErrDuplicateArea)
}

func TestMiscAreaIDFollowsParentID(t *testing.T) {
	named := func(id string, x0 float64) feature.Feature {
		f := squareFeature(id, x0, 0, 100)
		f.Properties["name"] = "Camp"
		return f
	}
	g := New(Options{})
	require.NoError(t, g.AddAreaFeatures([]feature.Feature{
		named("a", 0), squareFeature("a1", 0, 0, 10),
		named("b", 200), squareFeature("b1", 200, 0, 10),
	}))
	g.AddGridFeatures([]feature.Feature{
		pduFeature("pa", 50, 50, "32", false),
		pduFeature("pb", 250, 50, "32", false),
	})

	for _, tt := range []struct{ misc, parent, pdu string }{
		{"a-misc", "a", "pa"},
		{"b-misc", "b", "pb"},
	} {
		misc, ok := g.Area(tt.misc)
		require.True(t, ok, tt.misc)
		assert.Equal(t, tt.parent, g.Areas[misc.Parent].ID)
		assert.Equal(t, "Camp-misc", misc.Name)
		p, _ := g.PDU(tt.pdu)
		assert.Equal(t, tt.misc, g.Areas[p.Areas[len(p.Areas)-1]].ID)
	}
}

func TestConcurrentRendering(t *testing.T) {
	g := festivalGrid(t)
	g.Finalize()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.AreasGeoJSON()
			g.AreaInfos()
		}()
	}
	wg.Wait()

	zone, _ := g.Area("zone")
	assert.Equal(t, 15, g.Stats(zone).Population)
}
