package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chicagopizza/pizzeria-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository keeps durable values in the storage_entries table.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, now: r.now}
}

func (r *Repository) Load(ctx context.Context, owner, key string) (string, bool, error) {
	var entry models.StorageEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND key = ?", owner, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (r *Repository) Save(ctx context.Context, owner, key, value string) error {
	now := r.now().UTC()
	entry := models.StorageEntry{OwnerID: owner, Key: key, Value: value, CreatedAt: now, UpdatedAt: now}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
}

func (r *Repository) Delete(ctx context.Context, owner, key string) error {
	return r.db.WithContext(ctx).
		Where("owner_id = ? AND key = ?", owner, key).
		Delete(&models.StorageEntry{}).Error
}

// DeleteStale removes entries for key not updated since cutoff.
func (r *Repository) DeleteStale(ctx context.Context, key string, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("key = ? AND updated_at < ?", key, cutoff.UTC()).
		Delete(&models.StorageEntry{})
	return res.RowsAffected, res.Error
}
