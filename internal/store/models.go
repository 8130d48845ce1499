package store

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema holds the store tables.
const Schema = "powermap"

type CollectionRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Project   string    `gorm:"not null;index:idx_store_collection_project_name,unique;column:project"`
	Name      string    `gorm:"not null;index:idx_store_collection_project_name,unique;column:name"`
	ItemType  string    `gorm:"not null;column:item_type"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (CollectionRecord) TableName() string { return Schema + ".store_collections" }

type ItemRevision struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	CollectionID uuid.UUID      `gorm:"type:uuid;not null;index:idx_collection_item_revision,unique;column:collection_id"`
	ItemID       string         `gorm:"not null;index:idx_collection_item_revision,unique;column:item_id"`
	Revision     int            `gorm:"not null;default:0;index:idx_collection_item_revision,unique;column:revision"`
	UserName     string         `gorm:"column:user_name"`
	Timestamp    time.Time      `gorm:"not null;index;column:timestamp"`
	Deleted      bool           `gorm:"not null;default:false;column:deleted"`
	ContentHash  string         `gorm:"column:content_hash"`
	ChangedKeys  pq.StringArray `gorm:"type:text[];column:changed_keys"`
	Data         JSONB          `gorm:"type:jsonb;column:data"`
}

func (ItemRevision) TableName() string { return Schema + ".store_item_revisions" }

// JSONB is raw JSON stored in a jsonb column. Empty means SQL NULL.
type JSONB []byte

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONB(nil), v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
	return nil
}

func (r ItemRevision) toRevision() (Revision, error) {
	data, err := decodeData(r.ItemID, r.Data)
	if err != nil {
		return Revision{}, err
	}
	return Revision{
		ItemID:      r.ItemID,
		Revision:    r.Revision,
		Timestamp:   r.Timestamp,
		User:        r.UserName,
		Deleted:     r.Deleted,
		ContentHash: r.ContentHash,
		ChangedKeys: []string(r.ChangedKeys),
		Data:        data,
	}, nil
}
