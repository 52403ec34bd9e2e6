package repositories

import (
	"context"
	"time"

	"github.com/you/websession/domain"
)

// NamespacedStore scopes every key of an underlying store to one namespace
type NamespacedStore struct {
	inner     domain.KeyValueStore
	namespace string
}

// NewNamespacedStore wraps inner so keys are stored as "<namespace>:<key>"
func NewNamespacedStore(inner domain.KeyValueStore, namespace string) *NamespacedStore {
	return &NamespacedStore{inner: inner, namespace: namespace}
}

func (n *NamespacedStore) key(k string) string {
	return n.namespace + ":" + k
}

// Get implements domain.KeyValueStore
func (n *NamespacedStore) Get(ctx context.Context, key string) (string, error) {
	return n.inner.Get(ctx, n.key(key))
}

// Set implements domain.KeyValueStore
func (n *NamespacedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return n.inner.Set(ctx, n.key(key), value, ttl)
}

// Delete implements domain.KeyValueStore
func (n *NamespacedStore) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.key(key))
}

var _ domain.KeyValueStore = (*NamespacedStore)(nil)
