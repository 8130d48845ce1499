package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/doet/powermap/internal/db"
	"github.com/doet/powermap/internal/feature"
)

const uniqueViolation = "23505"

// Setup creates the store schema and tables.
func Setup(d *gorm.DB) error {
	if err := db.EnsureSchema(d, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}
	if err := d.AutoMigrate(&CollectionRecord{}, &ItemRevision{}); err != nil {
		return fmt.Errorf("auto-migrate store tables: %w", err)
	}
	return nil
}

// Gorm is a Store backed by PostgreSQL.
type Gorm struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGorm(d *gorm.DB, logger *slog.Logger) *Gorm {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gorm{db: d, logger: logger.With("component", "store")}
}

func (s *Gorm) Collection(ctx context.Context, project, name string, create bool) (Collection, error) {
	var rec CollectionRecord
	err := s.db.WithContext(ctx).Where("project = ? AND name = ?", project, name).First(&rec).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !create {
			return nil, fmt.Errorf("%w: %s/%s", ErrCollectionNotFound, project, name)
		}
		rec = CollectionRecord{
			ID:       CollectionID(project, name),
			Project:  project,
			Name:     name,
			ItemType: ItemTypeFor(name),
		}
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("create collection %s/%s: %w", project, name, err)
		}
		s.logger.Info("created collection", "project", project, "collection", name)
	default:
		return nil, fmt.Errorf("load collection %s/%s: %w", project, name, err)
	}
	if rec.ItemType != ItemTypeFor(name) {
		return nil, fmt.Errorf("%w: %s has %s", ErrItemTypeMismatch, name, rec.ItemType)
	}
	return &gormCollection{db: s.db, rec: rec, logger: s.logger}, nil
}

func (s *Gorm) Collections(ctx context.Context, project string) ([]Info, error) {
	var recs []CollectionRecord
	if err := s.db.WithContext(ctx).Where("project = ?", project).Order("name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]Info, 0, len(recs))
	for _, rec := range recs {
		info, err := (&gormCollection{db: s.db, rec: rec}).Info(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

type gormCollection struct {
	db     *gorm.DB
	rec    CollectionRecord
	logger *slog.Logger
}

func (c *gormCollection) Name() string { return c.rec.Name }

func (c *gormCollection) revisions(ctx context.Context, bounds Bounds) *gorm.DB {
	q := c.db.WithContext(ctx).Model(&ItemRevision{}).Where("collection_id = ?", c.rec.ID)
	if !bounds.Start.IsZero() {
		q = q.Where("timestamp >= ?", bounds.Start)
	}
	if !bounds.End.IsZero() {
		q = q.Where("timestamp <= ?", bounds.End)
	}
	return q
}

func (c *gormCollection) AllLastValues(ctx context.Context, bounds Bounds) ([]feature.Feature, error) {
	latest := c.revisions(ctx, bounds).
		Select("item_id, MAX(revision) AS revision").
		Group("item_id")

	var rows []ItemRevision
	err := c.db.WithContext(ctx).
		Table(ItemRevision{}.TableName()+" AS r").
		Select("r.*").
		Joins("JOIN (?) AS m ON r.item_id = m.item_id AND r.revision = m.revision", latest).
		Where("r.collection_id = ?", c.rec.ID).
		Order("r.item_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load last values of %s: %w", c.rec.Name, err)
	}

	var out []feature.Feature
	for _, r := range rows {
		if r.Deleted {
			continue
		}
		f, err := decodeData(r.ItemID, r.Data)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (c *gormCollection) ItemRevisions(ctx context.Context, itemID string, includeDeleted bool) ([]Revision, error) {
	q := c.revisions(ctx, Bounds{}).Where("item_id = ?", itemID)
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var rows []ItemRevision
	if err := q.Order("revision").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load revisions of %s/%s: %w", c.rec.Name, itemID, err)
	}
	out := make([]Revision, 0, len(rows))
	for _, r := range rows {
		rev, err := r.toRevision()
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func (c *gormCollection) AllRevisions(ctx context.Context, includeDeleted bool) (History, error) {
	q := c.revisions(ctx, Bounds{})
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var rows []ItemRevision
	if err := q.Order("item_id, revision").Find(&rows).Error; err != nil {
		return History{}, fmt.Errorf("load revisions of %s: %w", c.rec.Name, err)
	}
	h := History{Info: Info{Name: c.rec.Name, ItemType: c.rec.ItemType}, Items: map[string][]Revision{}}
	for _, r := range rows {
		rev, err := r.toRevision()
		if err != nil {
			return History{}, err
		}
		h.Items[r.ItemID] = append(h.Items[r.ItemID], rev)
		h.NumRevisions++
	}
	h.NumItems = len(h.Items)
	return h, nil
}

func (c *gormCollection) LastTimestamp(ctx context.Context) (time.Time, bool, error) {
	var last *time.Time
	if err := c.revisions(ctx, Bounds{}).Select("MAX(timestamp)").Scan(&last).Error; err != nil {
		return time.Time{}, false, fmt.Errorf("last timestamp of %s: %w", c.rec.Name, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

// Add appends a revision. A concurrent writer taking the same revision number
// makes the insert fail with a unique violation; it is retried once with a
// freshly read revision number.
func (c *gormCollection) Add(ctx context.Context, user, itemID string, data *feature.Feature, opts AddOptions) (Revision, error) {
	b, err := encodeData(data)
	if err != nil {
		return Revision{}, err
	}
	rev, err := c.add(ctx, user, itemID, b, opts)
	var pgErr *pgconn.PgError
	if err != nil && opts.Revision == nil && errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		c.logger.Warn("revision conflict, retrying", "collection", c.rec.Name, "item", itemID)
		rev, err = c.add(ctx, user, itemID, b, opts)
	}
	return rev, err
}

func (c *gormCollection) add(ctx context.Context, user, itemID string, b []byte, opts AddOptions) (Revision, error) {
	var row ItemRevision
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last []ItemRevision
		if err := tx.Where("collection_id = ? AND item_id = ?", c.rec.ID, itemID).
			Order("revision DESC").Limit(1).Find(&last).Error; err != nil {
			return fmt.Errorf("load last revision: %w", err)
		}

		rev := 0
		var prev *feature.Feature
		if len(last) > 0 {
			rev = last[0].Revision + 1
			p, err := decodeData(itemID, last[0].Data)
			if err != nil {
				return err
			}
			prev = p
		}
		if opts.Revision != nil {
			rev = *opts.Revision
		}
		next, err := decodeData(itemID, b)
		if err != nil {
			return err
		}
		ts := opts.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		row = ItemRevision{
			ID:           uuid.New(),
			CollectionID: c.rec.ID,
			ItemID:       itemID,
			Revision:     rev,
			UserName:     user,
			Timestamp:    ts,
			Deleted:      opts.Deleted,
			ContentHash:  ContentHash(b),
			ChangedKeys:  pq.StringArray(changedKeys(prev, next)),
			Data:         JSONB(b),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert revision %d of %s: %w", rev, itemID, err)
		}
		return nil
	})
	if err != nil {
		return Revision{}, err
	}
	c.logger.Debug("added revision", "collection", c.rec.Name, "item", itemID, "revision", row.Revision)
	return row.toRevision()
}

func (c *gormCollection) Info(ctx context.Context) (Info, error) {
	var counts struct {
		NumItems     int
		NumRevisions int
	}
	err := c.revisions(ctx, Bounds{}).
		Select("COUNT(DISTINCT item_id) AS num_items, COUNT(*) AS num_revisions").
		Scan(&counts).Error
	if err != nil {
		return Info{}, fmt.Errorf("count revisions of %s: %w", c.rec.Name, err)
	}
	return Info{
		Name:         c.rec.Name,
		ItemType:     c.rec.ItemType,
		NumItems:     counts.NumItems,
		NumRevisions: counts.NumRevisions,
	}, nil
}
