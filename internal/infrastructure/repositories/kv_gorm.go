package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/you/websession/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBEntry represents the database model for one key/value entry
type DBEntry struct {
	Key       string     `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string     `gorm:"type:text"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (DBEntry) TableName() string {
	return "session_entries"
}

// GormKVStore implements domain.KeyValueStore using GORM
type GormKVStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormKVStore creates a new SQL backed key/value store
func NewGormKVStore(db *gorm.DB) *GormKVStore {
	return &GormKVStore{db: db, now: time.Now}
}

// Get implements domain.KeyValueStore
func (r *GormKVStore) Get(ctx context.Context, key string) (string, error) {
	var entry DBEntry
	err := r.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrKeyNotFound
		}
		return "", err
	}

	if entry.ExpiresAt != nil && !r.now().Before(*entry.ExpiresAt) {
		// Clean up expired entry
		r.db.WithContext(ctx).Delete(&DBEntry{}, "entry_key = ?", key)
		return "", domain.ErrKeyNotFound
	}
	return entry.Value, nil
}

// Set implements domain.KeyValueStore
func (r *GormKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := DBEntry{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := r.now().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

// Delete implements domain.KeyValueStore
func (r *GormKVStore) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&DBEntry{}, "entry_key = ?", key).Error
}

// DeleteExpired removes every entry whose ttl has elapsed
func (r *GormKVStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", r.now()).Delete(&DBEntry{})
	return res.RowsAffected, res.Error
}

var _ domain.KeyValueStore = (*GormKVStore)(nil)
