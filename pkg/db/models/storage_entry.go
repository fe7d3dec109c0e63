package models

import "time"

// StorageEntry is one durable value owned by a client, keyed by its storage key.
// Value holds the versioned JSON envelope.
type StorageEntry struct {
	OwnerID   string    `gorm:"column:owner_id;type:varchar(128);primaryKey"`
	Key       string    `gorm:"column:key;type:varchar(64);primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (StorageEntry) TableName() string {
	return "storage_entries"
}
