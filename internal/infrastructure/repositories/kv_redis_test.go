package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/you/websession/domain"
)

// setupTestRedis creates an in-memory Redis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() {
		mr.Close()
	})

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})

	return mr, client
}

func TestRedisKVStore_SetGet(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		ttl          time.Duration
		validateData func(t *testing.T, mr *miniredis.Miniredis)
	}{
		{
			name:  "value without ttl",
			key:   "auth_tokens",
			value: "ciphertext",
			ttl:   0,
			validateData: func(t *testing.T, mr *miniredis.Miniredis) {
				if !mr.Exists("bff:auth_tokens") {
					t.Error("expected key to be stored under prefix")
				}
				if ttl := mr.TTL("bff:auth_tokens"); ttl != 0 {
					t.Errorf("expected no ttl, got %v", ttl)
				}
			},
		},
		{
			name:  "value with ttl",
			key:   "encryption_key",
			value: `{"epoch":1,"key":"abc"}`,
			ttl:   30 * time.Minute,
			validateData: func(t *testing.T, mr *miniredis.Miniredis) {
				ttl := mr.TTL("bff:encryption_key")
				if ttl != 30*time.Minute {
					t.Errorf("expected ttl of 30m, got %v", ttl)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupTestRedis(t)
			store := NewRedisKVStore(client, "bff:")
			ctx := context.Background()

			if err := store.Set(ctx, tt.key, tt.value, tt.ttl); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := store.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.value {
				t.Errorf("expected %q, got %q", tt.value, got)
			}

			tt.validateData(t, mr)
		})
	}
}

func TestRedisKVStore_GetMissingAndExpired(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisKVStore(client, "bff:")
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	if err := store.Set(ctx, "short", "v", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := store.Get(ctx, "short"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected expired key to be reported missing, got %v", err)
	}
}

func TestRedisKVStore_Delete(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisKVStore(client, "bff:")
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists("bff:k") {
		t.Error("expected key to be removed")
	}

	// Deleting a missing key is not an error
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("expected delete of missing key to succeed, got %v", err)
	}
}

func TestRedisKVStore_ConnectionFailure(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisKVStore(client, "bff:")
	mr.Close()

	if err := store.Set(context.Background(), "k", "v", 0); err == nil {
		t.Error("expected error when redis is down")
	}
	if _, err := store.Get(context.Background(), "k"); err == nil || errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected a connection error, got %v", err)
	}
}
