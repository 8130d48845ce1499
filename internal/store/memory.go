package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doet/powermap/internal/feature"
)

// Memory is an in-process Store used by tests and offline builds.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	now         func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{collections: map[string]*memoryCollection{}, now: time.Now}
}

func (m *Memory) Collection(_ context.Context, project, name string, create bool) (Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := project + "/" + name
	if c, ok := m.collections[key]; ok {
		return c, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, key)
	}
	c := &memoryCollection{
		name:     name,
		itemType: ItemTypeFor(name),
		project:  project,
		mu:       &m.mu,
		now:      func() time.Time { return m.now() },
	}
	m.collections[key] = c
	return c, nil
}

func (m *Memory) Collections(ctx context.Context, project string) ([]Info, error) {
	m.mu.Lock()
	var cols []*memoryCollection
	for _, c := range m.collections {
		if c.project == project {
			cols = append(cols, c)
		}
	}
	m.mu.Unlock()
	sort.Slice(cols, func(i, j int) bool { return cols[i].name < cols[j].name })
	out := make([]Info, 0, len(cols))
	for _, c := range cols {
		info, err := c.Info(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

type memoryRow struct {
	Revision
	data []byte
}

type memoryCollection struct {
	name     string
	itemType string
	project  string
	mu       *sync.Mutex
	now      func() time.Time
	rows     []memoryRow
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) AllLastValues(_ context.Context, bounds Bounds) ([]feature.Feature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := map[string]memoryRow{}
	for _, r := range c.rows {
		if !bounds.contains(r.Timestamp) {
			continue
		}
		if prev, ok := last[r.ItemID]; !ok || r.Revision.Revision > prev.Revision.Revision {
			last[r.ItemID] = r
		}
	}
	ids := make([]string, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []feature.Feature
	for _, id := range ids {
		r := last[id]
		if r.Deleted {
			continue
		}
		f, err := decodeData(id, r.data)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (c *memoryCollection) ItemRevisions(_ context.Context, itemID string, includeDeleted bool) ([]Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Revision
	for _, r := range c.rows {
		if r.ItemID == itemID && (includeDeleted || !r.Deleted) {
			out = append(out, r.Revision)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

func (c *memoryCollection) AllRevisions(ctx context.Context, includeDeleted bool) (History, error) {
	h := History{Info: Info{Name: c.name, ItemType: c.itemType}, Items: map[string][]Revision{}}
	c.mu.Lock()
	for _, r := range c.rows {
		if includeDeleted || !r.Deleted {
			h.Items[r.ItemID] = append(h.Items[r.ItemID], r.Revision)
			h.NumRevisions++
		}
	}
	c.mu.Unlock()
	for id := range h.Items {
		revs := h.Items[id]
		sort.SliceStable(revs, func(i, j int) bool { return revs[i].Revision < revs[j].Revision })
	}
	h.NumItems = len(h.Items)
	return h, nil
}

func (c *memoryCollection) LastTimestamp(context.Context) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var last time.Time
	for _, r := range c.rows {
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return last, !last.IsZero(), nil
}

func (c *memoryCollection) Add(_ context.Context, user, itemID string, data *feature.Feature, opts AddOptions) (Revision, error) {
	b, err := encodeData(data)
	if err != nil {
		return Revision{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev *memoryRow
	for i := range c.rows {
		r := &c.rows[i]
		if r.ItemID == itemID && (prev == nil || r.Revision.Revision > prev.Revision.Revision) {
			prev = r
		}
	}
	rev := 0
	if prev != nil {
		rev = prev.Revision.Revision + 1
	}
	if opts.Revision != nil {
		rev = *opts.Revision
		for _, r := range c.rows {
			if r.ItemID == itemID && r.Revision.Revision == rev {
				return Revision{}, fmt.Errorf("%s/%s revision %d already exists", c.name, itemID, rev)
			}
		}
	}
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	var prevData *feature.Feature
	if prev != nil {
		prevData = prev.Data
	}
	stored, err := decodeData(itemID, b)
	if err != nil {
		return Revision{}, err
	}
	row := memoryRow{
		Revision: Revision{
			ItemID:      itemID,
			Revision:    rev,
			Timestamp:   ts,
			User:        user,
			Deleted:     opts.Deleted,
			ContentHash: ContentHash(b),
			ChangedKeys: changedKeys(prevData, stored),
			Data:        stored,
		},
		data: b,
	}
	c.rows = append(c.rows, row)
	return row.Revision, nil
}

func (c *memoryCollection) Info(context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := map[string]bool{}
	for _, r := range c.rows {
		items[r.ItemID] = true
	}
	return Info{Name: c.name, ItemType: c.itemType, NumItems: len(items), NumRevisions: len(c.rows)}, nil
}
