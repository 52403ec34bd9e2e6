package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/crypto"
	"github.com/you/websession/internal/infrastructure/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&DBEntry{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func TestGormKVStore_SetGetOverwrite(t *testing.T) {
	store := NewGormKVStore(setupTestDB(t))
	ctx := context.Background()

	if err := store.Set(ctx, "s1:auth_tokens", "first", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Set(ctx, "s1:auth_tokens", "second", 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	got, err := store.Get(ctx, "s1:auth_tokens")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "second" {
		t.Errorf("expected overwritten value, got %q", got)
	}
}

func TestGormKVStore_Expiry(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormKVStore(db)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := store.Get(ctx, "key"); err != nil || got != "value" {
		t.Fatalf("expected live value, got %q, %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "key"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after expiry, got %v", err)
	}

	var count int64
	db.Model(&DBEntry{}).Count(&count)
	if count != 0 {
		t.Errorf("expected expired entry to be cleaned up, %d remain", count)
	}
}

func TestGormKVStore_DeleteExpired(t *testing.T) {
	store := NewGormKVStore(setupTestDB(t))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Set(ctx, "short", "v", time.Minute)
	_ = store.Set(ctx, "long", "v", time.Hour)
	_ = store.Set(ctx, "forever", "v", 0)

	now = now.Add(10 * time.Minute)
	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 expired entry removed, got %d", removed)
	}
	if _, err := store.Get(ctx, "forever"); err != nil {
		t.Errorf("entry without ttl should survive, got %v", err)
	}
}

func TestGormKVStore_TokenEntriesExpire(t *testing.T) {
	db := setupTestDB(t)
	store := NewGormKVStore(db)
	keys := NewMemoryKVStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	keys.now = store.now
	ctx := context.Background()

	cipher := crypto.NewSessionCipher(NewNamespacedStore(keys, "key:s1"), time.Hour)
	tokens := storage.NewLocalEncryptedStorage(NewNamespacedStore(store, "tokens:s1"), cipher, storage.Options{TTL: time.Hour})
	if err := tokens.SaveTokens(ctx, domain.TokenPair{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry DBEntry
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("expected a token row: %v", err)
	}
	if entry.ExpiresAt == nil || !entry.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected token row to expire with its key, got %v", entry.ExpiresAt)
	}

	// The browser never comes back
	now = now.Add(2 * time.Hour)
	if removed, err := store.DeleteExpired(ctx); err != nil || removed != 1 {
		t.Fatalf("expected the abandoned token row to be purged, got %d, %v", removed, err)
	}
	if removed, err := keys.DeleteExpired(ctx); err != nil || removed != 1 {
		t.Errorf("expected the abandoned key to be purged, got %d, %v", removed, err)
	}

	var count int64
	db.Model(&DBEntry{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no rows left, %d remain", count)
	}
}

func TestGormKVStore_DeleteMissing(t *testing.T) {
	store := NewGormKVStore(setupTestDB(t))
	if err := store.Delete(context.Background(), "absent"); err != nil {
		t.Errorf("expected delete of missing key to succeed, got %v", err)
	}
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}
