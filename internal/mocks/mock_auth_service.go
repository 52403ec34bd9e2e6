package mocks

import (
	"context"

	"github.com/you/websession/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	LoginFunc         func(ctx context.Context, sessionID string, store domain.AuthStore, email, password string) (*domain.User, error)
	RegisterFunc      func(ctx context.Context, sessionID string, store domain.AuthStore, input domain.RegisterInput) (*domain.User, error)
	RefreshFunc       func(ctx context.Context, sessionID string, store domain.AuthStore) error
	EnsureFreshFunc   func(ctx context.Context, sessionID string, store domain.AuthStore) error
	CurrentUserFunc   func(ctx context.Context, sessionID string, store domain.AuthStore) (*domain.User, error)
	LogoutFunc        func(ctx context.Context, sessionID string, store domain.AuthStore) error
	ListSessionsFunc  func(ctx context.Context, sessionID string, store domain.AuthStore) ([]domain.DeviceSession, error)
	RevokeSessionFunc func(ctx context.Context, sessionID string, store domain.AuthStore, deviceSessionID string) error
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

// Login authenticates the browser session
func (m *MockAuthService) Login(ctx context.Context, sessionID string, store domain.AuthStore, email, password string) (*domain.User, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, sessionID, store, email, password)
	}
	// Default behavior: invalid credentials
	return nil, domain.ErrInvalidCredentials
}

// Register creates an account
func (m *MockAuthService) Register(ctx context.Context, sessionID string, store domain.AuthStore, input domain.RegisterInput) (*domain.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, sessionID, store, input)
	}
	return &domain.User{ID: "new-user", Email: input.Email, IsActive: true}, nil
}

// Refresh renews the token pair
func (m *MockAuthService) Refresh(ctx context.Context, sessionID string, store domain.AuthStore) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, sessionID, store)
	}
	return nil
}

// EnsureFresh refreshes when inside the threshold window
func (m *MockAuthService) EnsureFresh(ctx context.Context, sessionID string, store domain.AuthStore) error {
	if m.EnsureFreshFunc != nil {
		return m.EnsureFreshFunc(ctx, sessionID, store)
	}
	return nil
}

// CurrentUser returns the session's user
func (m *MockAuthService) CurrentUser(ctx context.Context, sessionID string, store domain.AuthStore) (*domain.User, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx, sessionID, store)
	}
	// Default behavior: whatever the store holds
	if user := store.State().User; user != nil {
		return user, nil
	}
	return nil, domain.ErrNoSession
}

// Logout ends the session
func (m *MockAuthService) Logout(ctx context.Context, sessionID string, store domain.AuthStore) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID, store)
	}
	store.ClearAuth(ctx)
	return nil
}

// ListSessions lists device sessions
func (m *MockAuthService) ListSessions(ctx context.Context, sessionID string, store domain.AuthStore) ([]domain.DeviceSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, sessionID, store)
	}
	return []domain.DeviceSession{}, nil
}

// RevokeSession revokes a device session
func (m *MockAuthService) RevokeSession(ctx context.Context, sessionID string, store domain.AuthStore, deviceSessionID string) error {
	if m.RevokeSessionFunc != nil {
		return m.RevokeSessionFunc(ctx, sessionID, store, deviceSessionID)
	}
	return nil
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
