package mocks

import (
	"context"
	"sync/atomic"

	"github.com/you/websession/domain"
)

// MockBackendClient implements domain.BackendClient interface for testing
type MockBackendClient struct {
	LoginFunc         func(ctx context.Context, email, password string) (*domain.AuthResult, error)
	RegisterFunc      func(ctx context.Context, input domain.RegisterInput) (*domain.AuthResult, error)
	RefreshFunc       func(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	LogoutFunc        func(ctx context.Context, accessToken, refreshToken string) error
	CurrentUserFunc   func(ctx context.Context, accessToken string) (*domain.User, error)
	ListSessionsFunc  func(ctx context.Context, accessToken string) ([]domain.DeviceSession, error)
	RevokeSessionFunc func(ctx context.Context, accessToken, sessionID string) error

	RefreshCalls atomic.Int32
	LogoutCalls  atomic.Int32
}

// NewMockBackendClient creates a new MockBackendClient with default behaviors
func NewMockBackendClient() *MockBackendClient {
	return &MockBackendClient{}
}

// Login authenticates with email and password
func (m *MockBackendClient) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	// Default behavior: invalid credentials
	return nil, &domain.APIError{StatusCode: 401, Errors: []domain.APIErrorDetail{{Code: "AUTH_001", Message: "Invalid email or password"}}}
}

// Register creates an account
func (m *MockBackendClient) Register(ctx context.Context, input domain.RegisterInput) (*domain.AuthResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, input)
	}
	return &domain.AuthResult{User: &domain.User{ID: "new-user", Email: input.Email, IsActive: true}}, nil
}

// Refresh exchanges a refresh token for a new pair
func (m *MockBackendClient) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	m.RefreshCalls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	// Default behavior: refresh token rejected
	return nil, &domain.APIError{StatusCode: 401}
}

// Logout revokes the backend session
func (m *MockBackendClient) Logout(ctx context.Context, accessToken, refreshToken string) error {
	m.LogoutCalls.Add(1)
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, accessToken, refreshToken)
	}
	return nil
}

// CurrentUser fetches the profile behind an access token
func (m *MockBackendClient) CurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx, accessToken)
	}
	return nil, &domain.APIError{StatusCode: 401}
}

// ListSessions lists the user's device sessions
func (m *MockBackendClient) ListSessions(ctx context.Context, accessToken string) ([]domain.DeviceSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, accessToken)
	}
	return []domain.DeviceSession{}, nil
}

// RevokeSession revokes one device session
func (m *MockBackendClient) RevokeSession(ctx context.Context, accessToken, sessionID string) error {
	if m.RevokeSessionFunc != nil {
		return m.RevokeSessionFunc(ctx, accessToken, sessionID)
	}
	return nil
}

// Compile-time interface compliance verification
var _ domain.BackendClient = (*MockBackendClient)(nil)
