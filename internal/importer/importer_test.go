package importer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/importer"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
)

type staticSource []feature.Feature

func (s staticSource) Features(context.Context) ([]feature.Feature, error) { return s, nil }

type recordingRevisions struct {
	since []time.Time
	revs  []store.Revision
}

func (r *recordingRevisions) RevisionsSince(_ context.Context, since time.Time) ([]store.Revision, error) {
	r.since = append(r.since, since)
	var out []store.Revision
	for _, rev := range r.revs {
		if !rev.Timestamp.Before(since) {
			out = append(out, rev)
		}
	}
	return out, nil
}

func point(id, name string, x, y float64) feature.Feature {
	f := feature.New(id, orb.Point{x, y})
	f.Properties["name"] = name
	return f
}

func TestMatchingImport(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ic := importer.Context{Project: "bl25", User: "importer", Store: st}

	src := staticSource{point("", "Camp A", 0, 0), point("", "Camp B", 10, 0)}
	imp := importer.NewMatching(store.CollectionPlacement, src)

	res, err := imp.Import(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, "placement: 2 added, 0 deleted, 0 changed", res.String())

	res, err = imp.Import(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, importer.Result{Collection: store.CollectionPlacement, Unchanged: 2}, res)

	moved := point("", "Camp A", 0, 0)
	moved.Properties["powerNeed"] = 2000.0
	imp.Source = staticSource{moved}
	res, err = imp.Import(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 1, res.Deleted)

	coll, err := st.Collection(ctx, "bl25", store.CollectionPlacement, false)
	require.NoError(t, err)
	values, err := coll.AllLastValues(ctx, store.Bounds{})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Camp_A_1", values[0].ID)

	history, err := coll.ItemRevisions(ctx, "Camp_B_1", true)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[1].Data)
}

func TestMatchingWithoutSource(t *testing.T) {
	_, err := importer.NewMatching("x", nil).Import(context.Background(), importer.Context{Store: store.NewMemory()})
	assert.ErrorIs(t, err, importer.ErrNoSource)
}

func TestIncrementalImport(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ic := importer.Context{Project: "bl25", User: "importer", Store: st}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tent := point("5", "Tent", 1, 1)
	src := &recordingRevisions{revs: []store.Revision{
		{ItemID: "5", Revision: 3, Timestamp: t0, Data: &tent},
		{ItemID: "5", Revision: 4, Timestamp: t0.Add(time.Hour), Deleted: true},
	}}
	imp := importer.NewIncremental(store.CollectionPlacement, src)

	res, err := imp.Import(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Revisions)
	assert.Equal(t, "placement: 2 revisions added", res.String())
	assert.Equal(t, time.Unix(0, 0).UTC(), src.since[0])

	coll, err := st.Collection(ctx, "bl25", store.CollectionPlacement, false)
	require.NoError(t, err)
	history, err := coll.ItemRevisions(ctx, "_5", true)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Revision)
	assert.Equal(t, "_5", history[0].Data.ID)
	assert.True(t, history[1].Deleted)

	res, err = imp.Import(ctx, ic)
	require.NoError(t, err)
	assert.Zero(t, res.Revisions)
	assert.Equal(t, t0.Add(time.Hour+time.Millisecond), src.since[1])
}

func TestGeoJSONFromFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"p1","geometry":{"type":"Point","coordinates":[15,59]},"properties":{"name":"PDU 63A"}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid.geojson"), []byte(body), 0o644))

	src := importer.GeoJSON{LoadFromURLOrFile: importer.LoadFromURLOrFile{Filename: "grid.geojson", Dir: dir}}
	features, err := src.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "p1", features[0].ID)
	assert.Equal(t, "PDU 63A", features[0].Name())
}

func TestLoaderValidate(t *testing.T) {
	assert.ErrorIs(t, importer.LoadFromURLOrFile{}.Validate(), importer.ErrNoLocation)
	assert.ErrorIs(t, importer.LoadFromURLOrFile{URL: "http://x", Offline: true}.Validate(), importer.ErrOfflineNoFile)
	assert.NoError(t, importer.LoadFromURLOrFile{URL: "http://x"}.Validate())
}

func TestPlacementSource(t *testing.T) {
	var startTime string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/raw":
			startTime = r.URL.Query().Get("startTime")
			w.Write([]byte(`[
				{"id": 12, "revision": 2, "timeStamp": "2025-06-01T14:00:00", "isDeleted": false,
				 "geoJson": "{\"type\":\"Feature\",\"geometry\":{\"type\":\"Point\",\"coordinates\":[1,2]},\"properties\":{\"name\":\"Dome\"}}"}
			]`))
		default:
			w.Write([]byte(`[
				{"id": 12, "revision": 1, "timeStamp": "2025-06-01T12:00:00Z",
				 "geoJson": {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"Dome"}}},
				{"id": 13, "revision": 1, "timeStamp": "2025-06-01T12:00:00Z", "isDeleted": true,
				 "geoJson": {"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"name":"Gone"}}},
				{"id": 14, "revision": 1, "timeStamp": "2025-06-01T12:00:00Z",
				 "geoJson": {"type":"Feature","geometry":{"type":"Point","coordinates":[5,6]},"properties":{"name":"Test"}}}
			]`))
		}
	}))
	defer srv.Close()

	cet := time.FixedZone("CEST", 2*60*60)
	p := importer.Placement{
		LoadFromURLOrFile: importer.LoadFromURLOrFile{URL: srv.URL, Client: srv.Client()},
		IgnoredNames:      []string{"Test"},
		Location:          cet,
	}

	features, err := p.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "_12", features[0].ID)

	since := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	revs, err := p.RevisionsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00.000", startTime)
	require.Len(t, revs, 1)
	assert.Equal(t, "12", revs[0].ItemID)
	assert.Equal(t, 2, revs[0].Revision)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), revs[0].Timestamp)
	assert.Equal(t, "Dome", revs[0].Data.Name())
}

func TestPlacementIncrementalNeedsURL(t *testing.T) {
	p := importer.Placement{LoadFromURLOrFile: importer.LoadFromURLOrFile{Filename: "placement.json"}}
	_, err := p.RevisionsSince(context.Background(), time.Now())
	assert.ErrorIs(t, err, importer.ErrIncrementalFile)
}

func TestRawGrid(t *testing.T) {
	cable := feature.New("c1", orb.LineString{{0, 0}, {1, 0}})
	cable.Properties["name"] = "Cable"
	cable.Properties["description"] = "125A native"
	src := staticSource{
		point("p1", " CEE 63A ", 0, 0),
		point("p2", "Generator", 1, 0),
		point("p3", "Skip me", 2, 0),
		cable,
		feature.New("poly", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}),
	}
	yes := true
	size250 := powermap.SizeThreePhase250A
	raw := importer.RawGrid{
		Source: src,
		Overrides: map[string]config.Override{
			"Generator": {Size: &size250, PowerSource: &yes},
			"Skip me":   {Ignore: true},
		},
	}

	features, err := raw.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 3)

	assert.Equal(t, "CEE 63A", features[0].Name())
	assert.Equal(t, "63", features[0].Properties["power_size"])
	assert.Equal(t, "power_grid_pdu", features[0].Properties["type"])
	assert.Equal(t, false, features[0].Properties["power_source"])

	assert.Equal(t, "250", features[1].Properties["power_size"])
	assert.Equal(t, true, features[1].Properties["power_source"])

	assert.Equal(t, "125", features[2].Properties["power_size"])
	assert.Equal(t, true, features[2].Properties["power_native"])
	assert.NotContains(t, features[2].Properties, "power_source")
}

func TestAreasFilter(t *testing.T) {
	src := staticSource{
		{ID: "a", Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, Properties: feature.Properties{"name": " Zone "}},
		{ID: "b", Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, Properties: feature.Properties{"name": "Parking"}},
		{ID: "c", Geometry: orb.Point{0, 0}, Properties: feature.Properties{"name": "Marker"}},
	}
	features, err := importer.Areas{Source: src, Ignore: []string{"Parking"}}.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Zone", features[0].Name())
	assert.Equal(t, " Zone ", src[0].Name())
}

func TestProcessedGrid(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	raw, err := st.Collection(ctx, "bl25", "power_grid_raw", true)
	require.NoError(t, err)

	src := point("gen", "Generator", 0, 0)
	src.Properties["power_size"] = "63"
	src.Properties["power_source"] = true
	load := point("load", "Load", 100, 0)
	load.Properties["power_size"] = "63"
	cable := feature.New("cab", orb.LineString{{0, 0}, {100, 0}})
	cable.Properties["name"] = "Cable"
	cable.Properties["power_size"] = "63"
	for _, f := range []feature.Feature{src, load, cable} {
		_, err := raw.Add(ctx, "test", f.ID, &f, store.AddOptions{})
		require.NoError(t, err)
	}

	imp := importer.NewMatching(store.CollectionGrid, importer.ProcessedGrid{Store: st, Project: "bl25", Collection: "power_grid_raw"})
	res, err := imp.Import(ctx, importer.Context{Project: "bl25", User: "test", Store: st})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)

	coll, err := st.Collection(ctx, "bl25", store.CollectionGrid, false)
	require.NoError(t, err)
	values, err := coll.AllLastValues(ctx, store.Bounds{})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "cab", values[0].ID)
	assert.Equal(t, "gen", values[0].Properties["pdu_from"])
	assert.Equal(t, "load", values[0].Properties["pdu_to"])
}

func TestMatchingImportKeepsKnownID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ic := importer.Context{Project: "bl25", User: "importer", Store: st}

	before := point("old", "Stage", 3, 4)
	before.Properties["color"] = "red"
	_, err := importer.NewMatching(store.CollectionAreas, staticSource{before}).Import(ctx, ic)
	require.NoError(t, err)

	after := point("new", "Stage", 3, 4)
	after.Properties["color"] = "blue"
	res, err := importer.NewMatching(store.CollectionAreas, staticSource{after}).Import(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 0, res.Added)

	c, err := st.Collection(ctx, "bl25", store.CollectionAreas, false)
	require.NoError(t, err)
	items, err := c.AllLastValues(ctx, store.Bounds{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "old", items[0].ID)
	assert.Equal(t, "blue", items[0].Properties.String("color"))

	revs, err := c.ItemRevisions(ctx, "new", true)
	require.NoError(t, err)
	assert.Empty(t, revs)
}
