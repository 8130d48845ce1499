package powermap

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doet/powermap/internal/feature"
)

func TestWriteAreasCSV(t *testing.T) {
	g := festivalGrid(t)
	var buf bytes.Buffer
	require.NoError(t, g.WriteAreasCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "name;area;population;total_power_kw", lines[0])
	assert.Equal(t, "zone;1000000;15;3", lines[2])
	assert.Equal(t, "camp;10000;10;2", lines[3])
}

func TestAreaInfos(t *testing.T) {
	g := festivalGrid(t)
	infos := g.AreaInfos()
	require.Len(t, infos, 3)
	camp := infos[2]
	assert.Equal(t, "camp", camp.ID)
	assert.InDelta(t, 60, camp.CenterLon, 1e-9)
	assert.InDelta(t, 60, camp.CenterLat, 1e-9)
	assert.Equal(t, 1, camp.NrPDUs)
	assert.Equal(t, 1, camp.NrConsumers)
}

func TestCablesCSVSkipsNative(t *testing.T) {
	native := cableFeature("old", "63", orb.Point{0, 0}, orb.Point{0, 80})
	native.Properties["native"] = true
	g := New(Options{})
	g.AddGridFeatures(append(straightGrid(), native))

	var buf bytes.Buffer
	require.NoError(t, g.WriteCablesCSV(&buf, false))
	assert.NotContains(t, buf.String(), "old")
	assert.Contains(t, buf.String(), ";main #0;63;150")

	buf.Reset()
	require.NoError(t, g.WriteCablesCSV(&buf, true))
	assert.Contains(t, buf.String(), ";old;63;80")
}

func TestWriteStatistics(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures([]feature.Feature{
		pduFeature("s", 0, 0, "125", true),
		pduFeature("a", 1500, 0, "125", false),
		pduFeature("b", 1500, 20, "16", false),
		cableFeature("long", "125", orb.Point{0, 0}, orb.Point{1500, 0}),
		cableFeature("short", "16", orb.Point{1500, 0}, orb.Point{1500, 20}),
	})

	var buf bytes.Buffer
	g.WriteStatistics(&buf)
	out := buf.String()
	assert.Contains(t, out, "125: 1,500m")
	assert.Contains(t, out, " 16: 20m")
	assert.Contains(t, out, "Total cable length: 1,520m")
	assert.Contains(t, out, "PDU 125: 2")
	assert.Contains(t, out, "Total: 3")

	buf.Reset()
	require.NoError(t, g.WritePDUCountsCSV(&buf))
	assert.Equal(t, "size;count\n125;2\n16;1\n", buf.String())
}

func TestCoverageGeoJSON(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures(straightGrid())

	fc, err := g.CoverageGeoJSON(0)
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 50, poly[0][0][0], 1e-9)
}

func TestDocumentFiltersLog(t *testing.T) {
	g := New(Options{})
	g.AddGridFeatures(straightGrid())

	doc := g.Document(slog.LevelError)
	assert.Empty(t, doc.Log)
	assert.NotNil(t, doc.Log)
	assert.Len(t, g.Document(slog.LevelWarn).Log, 1)
	assert.Len(t, doc.Features.Features, 5)
}

func TestPlacementGeoJSONScrubsContactInfo(t *testing.T) {
	c := consumerFeature("c1", 0, 0, 10, 2, 500)
	c.Properties["contactInfo"] = "someone@example.org"
	g := New(Options{})
	g.AddGridFeatures(straightGrid())
	g.AddPlacementFeatures([]feature.Feature{c})

	fc := g.PlacementGeoJSON()
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.NotContains(t, props, "contactInfo")
	assert.Equal(t, 1, props["power_nr_pdus"])
	assert.Equal(t, 2, props["nrOfPeople"])
}

func TestWriteAreaTable(t *testing.T) {
	g := festivalGrid(t)
	var buf bytes.Buffer
	g.WriteAreaTable(&buf)
	assert.Contains(t, buf.String(), "    camp        |     1 |     0 |     1")
}
