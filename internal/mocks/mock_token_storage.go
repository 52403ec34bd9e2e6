package mocks

import (
	"context"
	"sync"

	"github.com/you/websession/domain"
)

// MockTokenStorage implements domain.TokenStorage interface for testing
type MockTokenStorage struct {
	SaveTokensFunc         func(ctx context.Context, pair domain.TokenPair) error
	GetTokensFunc          func(ctx context.Context) *domain.TokenPair
	ClearTokensFunc        func(ctx context.Context)
	IsStorageAvailableFunc func(ctx context.Context) bool

	mu         sync.Mutex
	Saved      []domain.TokenPair
	ClearCalls int
}

// NewMockTokenStorage creates a new MockTokenStorage with default behaviors
func NewMockTokenStorage() *MockTokenStorage {
	return &MockTokenStorage{}
}

// Method reports the local method
func (m *MockTokenStorage) Method() domain.StorageMethod {
	return domain.StorageMethodLocal
}

// SaveTokens records the pair
func (m *MockTokenStorage) SaveTokens(ctx context.Context, pair domain.TokenPair) error {
	if m.SaveTokensFunc != nil {
		if err := m.SaveTokensFunc(ctx, pair); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, pair)
	return nil
}

// GetTokens returns the last saved pair
func (m *MockTokenStorage) GetTokens(ctx context.Context) *domain.TokenPair {
	if m.GetTokensFunc != nil {
		return m.GetTokensFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Saved) == 0 {
		return nil
	}
	pair := m.Saved[len(m.Saved)-1]
	return &pair
}

// ClearTokens forgets every saved pair
func (m *MockTokenStorage) ClearTokens(ctx context.Context) {
	if m.ClearTokensFunc != nil {
		m.ClearTokensFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	m.Saved = nil
}

// IsStorageAvailable reports availability
func (m *MockTokenStorage) IsStorageAvailable(ctx context.Context) bool {
	if m.IsStorageAvailableFunc != nil {
		return m.IsStorageAvailableFunc(ctx)
	}
	// Default behavior: available
	return true
}

// Compile-time interface compliance verification
var _ domain.TokenStorage = (*MockTokenStorage)(nil)
