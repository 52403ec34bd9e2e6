package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/you/websession/domain"
)

// MockAuthStore implements domain.AuthStore interface for testing.
// It holds a plain state value; tests set it directly.
type MockAuthStore struct {
	mu     sync.Mutex
	state  domain.SessionState
	loaded chan struct{}

	NeedsRefreshResult bool
	SetAuthErr         error
	ClearCalls         int
}

// NewMockAuthStore creates a loaded store holding state
func NewMockAuthStore(state domain.SessionState) *MockAuthStore {
	m := &MockAuthStore{state: state, loaded: make(chan struct{})}
	if !state.IsLoading {
		close(m.loaded)
	}
	return m
}

// NewAuthenticatedMockStore creates a loaded store for user with a pair valid for an hour
func NewAuthenticatedMockStore(user *domain.User) *MockAuthStore {
	expiresAt := time.Now().Add(time.Hour)
	return NewMockAuthStore(domain.SessionState{
		User:            user,
		AccessToken:     "access-token",
		RefreshToken:    "refresh-token",
		IsAuthenticated: true,
		TokenExpiresAt:  &expiresAt,
	})
}

// FinishLoading marks the store loaded
func (m *MockAuthStore) FinishLoading() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.IsLoading {
		m.state.IsLoading = false
		close(m.loaded)
	}
}

// State returns the current state
func (m *MockAuthStore) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loaded is closed once loading finished
func (m *MockAuthStore) Loaded() <-chan struct{} {
	return m.loaded
}

// LoadAuthFromStorage finishes loading without touching state
func (m *MockAuthStore) LoadAuthFromStorage(ctx context.Context) {
	m.FinishLoading()
}

// SetAuth replaces user and tokens
func (m *MockAuthStore) SetAuth(ctx context.Context, user *domain.User, accessToken, refreshToken string, expiresIn int64) error {
	if m.SetAuthErr != nil {
		return m.SetAuthErr
	}
	m.mu.Lock()
	m.state.User = user
	m.mu.Unlock()
	return m.SetTokens(ctx, accessToken, refreshToken, expiresIn)
}

// SetTokens replaces tokens
func (m *MockAuthStore) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error {
	if m.SetAuthErr != nil {
		return m.SetAuthErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second)
	m.state.AccessToken = accessToken
	m.state.RefreshToken = refreshToken
	m.state.TokenExpiresAt = &expiresAt
	m.state.IsAuthenticated = true
	return nil
}

// SetUser replaces the user
func (m *MockAuthStore) SetUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.User = user
}

// ClearAuth resets the state
func (m *MockAuthStore) ClearAuth(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	m.state = domain.SessionState{}
}

// IsTokenExpired compares the expiry with now
func (m *MockAuthStore) IsTokenExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TokenExpiresAt == nil || !time.Now().Before(*m.state.TokenExpiresAt)
}

// NeedsRefresh returns the configured result
func (m *MockAuthStore) NeedsRefresh() bool {
	return m.NeedsRefreshResult
}

// Compile-time interface compliance verification
var _ domain.AuthStore = (*MockAuthStore)(nil)

// MockStoreResolver implements domain.StoreResolver interface for testing
type MockStoreResolver struct {
	ResolveFunc func(ctx context.Context, sessionID string) (domain.AuthStore, error)
	IssueFunc   func(ctx context.Context) (string, domain.AuthStore, error)

	mu       sync.Mutex
	Stores   map[string]domain.AuthStore
	Resolved []string
	Issued   []string
	Retired  []string
}

// NewMockStoreResolver creates a resolver handing out store for every session,
// issued ones included
func NewMockStoreResolver(store domain.AuthStore) *MockStoreResolver {
	r := &MockStoreResolver{Stores: make(map[string]domain.AuthStore)}
	if store != nil {
		r.ResolveFunc = func(ctx context.Context, sessionID string) (domain.AuthStore, error) {
			return store, nil
		}
		r.IssueFunc = func(ctx context.Context) (string, domain.AuthStore, error) {
			id := uuid.NewString()
			r.mu.Lock()
			r.Issued = append(r.Issued, id)
			r.mu.Unlock()
			return id, store, nil
		}
	}
	return r
}

// Resolve returns the store for sessionID
func (r *MockStoreResolver) Resolve(ctx context.Context, sessionID string) (domain.AuthStore, error) {
	r.mu.Lock()
	r.Resolved = append(r.Resolved, sessionID)
	r.mu.Unlock()
	if r.ResolveFunc != nil {
		return r.ResolveFunc(ctx, sessionID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.Stores[sessionID]
	if !ok {
		store = NewMockAuthStore(domain.SessionState{})
		r.Stores[sessionID] = store
	}
	return store, nil
}

// Issue hands out an empty, loaded store under a new random id
func (r *MockStoreResolver) Issue(ctx context.Context) (string, domain.AuthStore, error) {
	if r.IssueFunc != nil {
		return r.IssueFunc(ctx)
	}
	id := uuid.NewString()
	store := NewMockAuthStore(domain.SessionState{})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stores[id] = store
	r.Issued = append(r.Issued, id)
	return id, store, nil
}

// Retire records sessionID and drops its store
func (r *MockStoreResolver) Retire(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Retired = append(r.Retired, sessionID)
	delete(r.Stores, sessionID)
}

// Compile-time interface compliance verification
var _ domain.StoreResolver = (*MockStoreResolver)(nil)
