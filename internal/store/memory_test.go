package store

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doet/powermap/internal/feature"
)

func tent(name string, x float64) *feature.Feature {
	f := feature.New("", orb.Point{x, 0})
	f.Properties["name"] = name
	return &f
}

func clockAt(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestMemoryRevisionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, err := m.Collection(ctx, "bl25", CollectionGrid, true)
	require.NoError(t, err)

	r0, err := c.Add(ctx, "importer", "a", tent("A", 1), AddOptions{})
	require.NoError(t, err)
	r1, err := c.Add(ctx, "importer", "a", nil, AddOptions{})
	require.NoError(t, err)
	r2, err := c.Add(ctx, "importer", "a", tent("A", 2), AddOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, r0.Revision)
	assert.Equal(t, 1, r1.Revision)
	assert.Equal(t, 2, r2.Revision)
	assert.Empty(t, r1.ContentHash)
	assert.NotEmpty(t, r2.ContentHash)
	assert.Equal(t, []string{"geometry", "name"}, r2.ChangedKeys)

	revs, err := c.ItemRevisions(ctx, "a", true)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Nil(t, revs[1].Data)
}

func TestMemoryAllLastValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = clockAt(start)
	c, err := m.Collection(ctx, "bl25", CollectionPlacement, true)
	require.NoError(t, err)

	_, err = c.Add(ctx, "u", "b", tent("B", 1), AddOptions{})
	require.NoError(t, err)
	_, err = c.Add(ctx, "u", "a", tent("A", 1), AddOptions{})
	require.NoError(t, err)
	_, err = c.Add(ctx, "u", "a", tent("A2", 1), AddOptions{})
	require.NoError(t, err)
	_, err = c.Add(ctx, "u", "b", nil, AddOptions{})
	require.NoError(t, err)

	now, err := c.AllLastValues(ctx, Bounds{})
	require.NoError(t, err)
	require.Len(t, now, 1)
	assert.Equal(t, "a", now[0].ID)
	assert.Equal(t, "A2", now[0].Name())

	past, err := c.AllLastValues(ctx, Bounds{End: start.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, past, 2)
	assert.Equal(t, "A", past[0].Name())
	assert.Equal(t, "B", past[1].Name())

	last, ok, err := c.LastTimestamp(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, start.Add(4*time.Minute), last)
}

func TestMemoryAddWithExplicitRevision(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemory().Collection(ctx, "p", CollectionPlacement, true)
	require.NoError(t, err)

	rev := 7
	ts := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	r, err := c.Add(ctx, "sync", "_12", tent("Camp", 0), AddOptions{Timestamp: ts, Revision: &rev, Deleted: true})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Revision)
	assert.Equal(t, ts, r.Timestamp)

	_, err = c.Add(ctx, "sync", "_12", tent("Camp", 0), AddOptions{Revision: &rev})
	assert.Error(t, err)

	values, err := c.AllLastValues(ctx, Bounds{})
	require.NoError(t, err)
	assert.Empty(t, values)

	live, err := c.ItemRevisions(ctx, "_12", false)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestMemoryCollections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Collection(ctx, "p", CollectionAreas, false)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	areas, err := m.Collection(ctx, "p", CollectionAreas, true)
	require.NoError(t, err)
	_, err = areas.Add(ctx, "u", "x", tent("X", 0), AddOptions{})
	require.NoError(t, err)
	_, err = m.Collection(ctx, "p", CollectionGrid, true)
	require.NoError(t, err)

	infos, err := m.Collections(ctx, "p")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, Info{Name: CollectionAreas, ItemType: ItemTypeArea, NumItems: 1, NumRevisions: 1}, infos[0])

	h, err := areas.AllRevisions(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.NumItems)
	assert.Len(t, h.Items["x"], 1)
}

func TestChangedKeys(t *testing.T) {
	a := tent("A", 0)
	a.Properties["size"] = "63"
	b := tent("B", 0)
	b.Properties["native"] = true
	assert.Equal(t, []string{"name", "native", "size"}, changedKeys(a, b))
	assert.Empty(t, changedKeys(a, a))
}

func TestCollectionIDIsStable(t *testing.T) {
	assert.Equal(t, CollectionID("BL25", "power_grid"), CollectionID("bl25", "power_grid"))
	assert.NotEqual(t, CollectionID("bl25", "power_grid"), CollectionID("bl25", "placement"))
}
