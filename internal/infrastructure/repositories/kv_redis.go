package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/websession/domain"
)

// RedisKVStore implements domain.KeyValueStore using Redis
type RedisKVStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisKVStore creates a new Redis backed key/value store.
// Every key is stored under prefix.
func NewRedisKVStore(client redis.Cmdable, prefix string) *RedisKVStore {
	return &RedisKVStore{
		client: client,
		prefix: prefix,
	}
}

// Get implements domain.KeyValueStore
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrKeyNotFound
		}
		return "", err
	}
	return val, nil
}

// Set implements domain.KeyValueStore
func (r *RedisKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Delete implements domain.KeyValueStore
func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

var _ domain.KeyValueStore = (*RedisKVStore)(nil)
