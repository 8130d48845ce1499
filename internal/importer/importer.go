// Package importer keeps the versioned collections of a project in step with
// their upstream sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/store"
)

var (
	ErrNoSource = errors.New("importer has no source")
)

// Source yields a complete snapshot of a collection.
type Source interface {
	Features(ctx context.Context) ([]feature.Feature, error)
}

// RevisionSource yields the revisions recorded upstream after a point in time.
type RevisionSource interface {
	RevisionsSince(ctx context.Context, since time.Time) ([]store.Revision, error)
}

// Context is what every importer run needs.
type Context struct {
	Project string
	User    string
	Store   store.Store
	Logger  *slog.Logger
}

func (c Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Importer updates one collection.
type Importer interface {
	Target() string
	Import(ctx context.Context, ic Context) (Result, error)
}

// Result counts what an import wrote.
type Result struct {
	Collection string `json:"collection"`
	Added      int    `json:"added"`
	Deleted    int    `json:"deleted"`
	Changed    int    `json:"changed"`
	Unchanged  int    `json:"unchanged"`
	Revisions  int    `json:"revisions"`
}

func (r Result) String() string {
	if r.Revisions > 0 && r.Added+r.Deleted+r.Changed == 0 {
		return fmt.Sprintf("%s: %d revisions added", r.Collection, r.Revisions)
	}
	return fmt.Sprintf("%s: %d added, %d deleted, %d changed", r.Collection, r.Added, r.Deleted, r.Changed)
}

// Matching replaces the state of Collection with the snapshot of Source.
type Matching struct {
	Collection string
	Source     Source
}

// NewMatching returns a snapshot importer.
func NewMatching(target string, src Source) *Matching {
	return &Matching{Collection: target, Source: src}
}

func (m *Matching) Target() string { return m.Collection }

func (m *Matching) Import(ctx context.Context, ic Context) (Result, error) {
	if m.Source == nil {
		return Result{Collection: m.Collection}, ErrNoSource
	}
	coll, err := ic.Store.Collection(ctx, ic.Project, m.Collection, true)
	if err != nil {
		return Result{Collection: m.Collection}, fmt.Errorf("open %s: %w", m.Collection, err)
	}
	known, err := coll.AllLastValues(ctx, store.Bounds{})
	if err != nil {
		return Result{Collection: m.Collection}, fmt.Errorf("read %s: %w", m.Collection, err)
	}
	fresh, err := m.Source.Features(ctx)
	if err != nil {
		return Result{Collection: m.Collection}, fmt.Errorf("fetch %s: %w", m.Collection, err)
	}
	log := ic.logger().With("project", ic.Project, "collection", m.Collection)
	pairs := Reconcile(known, fresh, log)
	res, err := Apply(ctx, coll, ic.User, pairs, log)
	if err != nil {
		return res, err
	}
	log.Info("import finished", "added", res.Added, "deleted", res.Deleted, "changed", res.Changed)
	return res, nil
}

// Apply writes one revision per added, deleted or changed pair. A change to
// a known feature matched under a different id is written under the known id.
func Apply(ctx context.Context, coll store.Collection, user string, pairs []Pair, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	res := Result{Collection: coll.Name()}
	for _, p := range pairs {
		var (
			itemID string
			data   *feature.Feature
		)
		action := p.Action()
		switch action {
		case ActionDelete:
			itemID = p.Old.ID
			log.Debug("deleted", "id", itemID)
		case ActionAdd:
			itemID, data = p.New.ID, p.New
			log.Debug(action.String(), "id", itemID, "name", p.New.Name())
		case ActionUpdate:
			// A geometry match may pair features with different ids. The
			// update stays on the known item so no second item appears.
			itemID, data = p.New.ID, p.New
			if p.Old.ID != "" && p.Old.ID != p.New.ID {
				renamed := p.New.Clone()
				renamed.ID = p.Old.ID
				itemID, data = p.Old.ID, &renamed
			}
			log.Debug(action.String(), "id", itemID, "name", p.New.Name())
		default:
			res.Unchanged++
			continue
		}
		if _, err := coll.Add(ctx, user, itemID, data, store.AddOptions{}); err != nil {
			return res, fmt.Errorf("write %s/%s: %w", coll.Name(), itemID, err)
		}
		res.Revisions++
		switch action {
		case ActionAdd:
			res.Added++
		case ActionDelete:
			res.Deleted++
		case ActionUpdate:
			res.Changed++
		}
	}
	return res, nil
}

// Incremental copies upstream revisions newer than the last one in Collection.
// Item ids are prefixed with an underscore so they never collide with
// generated ones.
type Incremental struct {
	Collection string
	Source     RevisionSource
}

// NewIncremental returns a revision importer.
func NewIncremental(target string, src RevisionSource) *Incremental {
	return &Incremental{Collection: target, Source: src}
}

func (inc *Incremental) Target() string { return inc.Collection }

func (inc *Incremental) Import(ctx context.Context, ic Context) (Result, error) {
	res := Result{Collection: inc.Collection}
	if inc.Source == nil {
		return res, ErrNoSource
	}
	coll, err := ic.Store.Collection(ctx, ic.Project, inc.Collection, true)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", inc.Collection, err)
	}
	since, ok, err := coll.LastTimestamp(ctx)
	if err != nil {
		return res, fmt.Errorf("last timestamp of %s: %w", inc.Collection, err)
	}
	if ok {
		since = since.Add(time.Millisecond)
	} else {
		since = time.Unix(0, 0).UTC()
	}
	revs, err := inc.Source.RevisionsSince(ctx, since)
	if err != nil {
		return res, fmt.Errorf("fetch %s revisions: %w", inc.Collection, err)
	}
	log := ic.logger().With("project", ic.Project, "collection", inc.Collection)
	for _, r := range revs {
		id := "_" + r.ItemID
		var data *feature.Feature
		if r.Data != nil {
			f := r.Data.Clone()
			f.ID = id
			data = &f
		}
		rev := r.Revision
		_, err := coll.Add(ctx, ic.User, id, data, store.AddOptions{
			Timestamp: r.Timestamp,
			Revision:  &rev,
			Deleted:   r.Deleted,
		})
		if err != nil {
			return res, fmt.Errorf("write %s/%s: %w", inc.Collection, id, err)
		}
		res.Revisions++
		log.Debug("added revision", "id", id, "revision", rev)
	}
	log.Info("import finished", "revisions", res.Revisions)
	return res, nil
}
