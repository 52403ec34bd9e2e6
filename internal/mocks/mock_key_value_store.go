package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/you/websession/domain"
)

// MockKeyValueStore implements domain.KeyValueStore interface for testing.
// Without overrides it behaves like a working in-memory store.
type MockKeyValueStore struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error

	mu      sync.Mutex
	Data    map[string]string
	Deleted []string
}

// NewMockKeyValueStore creates a new MockKeyValueStore with default behaviors
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{Data: make(map[string]string)}
}

// Get reads a value
func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return val, nil
}

// Set writes a value
func (m *MockKeyValueStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
	return nil
}

// Delete removes a value
func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.Deleted = append(m.Deleted, key)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

// Has reports whether the default store holds key
func (m *MockKeyValueStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Data[key]
	return ok
}

// Compile-time interface compliance verification
var _ domain.KeyValueStore = (*MockKeyValueStore)(nil)
