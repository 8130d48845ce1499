// Package store keeps append-only revision histories of features, grouped in
// named collections per project.
package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/doet/powermap/internal/feature"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrItemTypeMismatch   = errors.New("collection item type mismatch")
)

// Well known collections and their item types.
const (
	CollectionAreas     = "power_areas"
	CollectionGrid      = "power_grid"
	CollectionPlacement = "placement"

	ItemTypeArea      = "power_area"
	ItemTypeGridItem  = "power_grid_item"
	ItemTypePlacement = "placement_entity"
)

// ItemTypeFor returns the item type of a well known collection name.
func ItemTypeFor(collection string) string {
	switch collection {
	case CollectionAreas:
		return ItemTypeArea
	case CollectionGrid:
		return ItemTypeGridItem
	case CollectionPlacement:
		return ItemTypePlacement
	}
	return collection
}

// Revision is one entry of an item history. Data is nil for tombstones.
type Revision struct {
	ItemID      string           `json:"item_id"`
	Revision    int              `json:"revision"`
	Timestamp   time.Time        `json:"timestamp"`
	User        string           `json:"user"`
	Deleted     bool             `json:"deleted"`
	ContentHash string           `json:"content_hash,omitempty"`
	ChangedKeys []string         `json:"changed_keys,omitempty"`
	Data        *feature.Feature `json:"data"`
}

// Bounds limits the revisions considered by a read. Zero times are open ends.
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) contains(t time.Time) bool {
	if !b.Start.IsZero() && t.Before(b.Start) {
		return false
	}
	if !b.End.IsZero() && t.After(b.End) {
		return false
	}
	return true
}

// AddOptions overrides the values Add would otherwise choose. A nil Revision
// means one more than the last revision of the item.
type AddOptions struct {
	Timestamp time.Time
	Revision  *int
	Deleted   bool
}

// Info summarises a collection.
type Info struct {
	Name         string `json:"name"`
	ItemType     string `json:"item_type"`
	NumItems     int    `json:"num_items"`
	NumRevisions int    `json:"num_revisions"`
}

// History is every revision of a collection grouped by item.
type History struct {
	Info
	Items map[string][]Revision `json:"items"`
}

// Collection is a versioned collection of features.
type Collection interface {
	Name() string
	// AllLastValues returns the newest revision of every item within bounds,
	// leaving out tombstones. Items are ordered by id.
	AllLastValues(ctx context.Context, bounds Bounds) ([]feature.Feature, error)
	ItemRevisions(ctx context.Context, itemID string, includeDeleted bool) ([]Revision, error)
	AllRevisions(ctx context.Context, includeDeleted bool) (History, error)
	// LastTimestamp is the time of the newest revision; ok is false for an
	// empty collection.
	LastTimestamp(ctx context.Context) (t time.Time, ok bool, err error)
	Add(ctx context.Context, user, itemID string, data *feature.Feature, opts AddOptions) (Revision, error)
	Info(ctx context.Context) (Info, error)
}

// Store opens collections.
type Store interface {
	Collection(ctx context.Context, project, name string, create bool) (Collection, error)
	Collections(ctx context.Context, project string) ([]Info, error)
}

// ContentHash is the hex blake2b-256 digest of the canonical JSON encoding of
// data. Tombstones hash to the empty string.
func ContentHash(data []byte) string {
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeData(data *feature.Feature) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return b, nil
}

func decodeData(itemID string, b []byte) (*feature.Feature, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var f feature.Feature
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", itemID, err)
	}
	if f.ID == "" {
		f.ID = itemID
	}
	return &f, nil
}

// changedKeys lists the property keys that differ between two revisions in
// sorted order, preceded by "geometry" when the geometry changed.
func changedKeys(prev, next *feature.Feature) []string {
	var a, b feature.Feature
	if prev != nil {
		a = *prev
	}
	if next != nil {
		b = *next
	}
	seen := map[string]bool{}
	var props []string
	for _, bag := range []feature.Properties{a.Properties, b.Properties} {
		for k := range bag {
			if seen[k] {
				continue
			}
			seen[k] = true
			if !feature.PropertiesEqual(feature.Properties{k: a.Properties[k]}, feature.Properties{k: b.Properties[k]}) {
				props = append(props, k)
			}
		}
	}
	sort.Strings(props)
	if !feature.GeometryEqual(a, b) {
		return append([]string{"geometry"}, props...)
	}
	return props
}
