package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/you/websession/domain"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKVStore is a thread-safe in-process key/value store.
// Contents vanish with the process, which makes it the default volatile medium.
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryKVStore creates an empty in-memory store
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements domain.KeyValueStore
func (m *MemoryKVStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", domain.ErrKeyNotFound
	}
	return entry.value, nil
}

// Set implements domain.KeyValueStore
func (m *MemoryKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete implements domain.KeyValueStore
func (m *MemoryKVStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeleteExpired removes entries whose ttl elapsed and returns how many went.
// Get only evicts what it reads, so entries nobody asks for again need this.
func (m *MemoryKVStore) DeleteExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries, expired ones included
func (m *MemoryKVStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ domain.KeyValueStore = (*MemoryKVStore)(nil)
