package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// AuthServiceConfig holds the feature flags of the auth flows
type AuthServiceConfig struct {
	EnableRegistration      bool
	EnableSessionManagement bool
}

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	backend domain.BackendClient
	audit   domain.AuditLogger
	cfg     AuthServiceConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// refreshes keys in-flight refreshes by browser session id
	refreshes singleflight.Group
}

// NewAuthService creates a new auth service
func NewAuthService(
	backend domain.BackendClient,
	audit domain.AuditLogger,
	cfg AuthServiceConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AuthServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthServiceImpl{
		backend: backend,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Login implements domain.AuthService
func (s *AuthServiceImpl) Login(ctx context.Context, sessionID string, store domain.AuthStore, email, password string) (*domain.User, error) {
	result, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.metrics.RecordLogin("login", false)
		s.logEvent(ctx, domain.NewAuditEvent(domain.UserLoginFailureEvent, sessionID).WithEmail(email).WithError(err))
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	user, err := s.establish(ctx, store, result)
	if err != nil {
		s.metrics.RecordLogin("login", false)
		s.logEvent(ctx, domain.NewAuditEvent(domain.UserLoginFailureEvent, sessionID).WithEmail(email).WithError(err))
		return nil, err
	}

	s.metrics.RecordLogin("login", true)
	s.logEvent(ctx, domain.NewAuditEvent(domain.UserLoginEvent, sessionID).WithUser(user))
	return user, nil
}

// Register implements domain.AuthService. When the backend does not sign the
// new account in, the gateway logs in with the submitted credentials.
func (s *AuthServiceImpl) Register(ctx context.Context, sessionID string, store domain.AuthStore, input domain.RegisterInput) (*domain.User, error) {
	if !s.cfg.EnableRegistration {
		return nil, domain.ErrRegistrationDisabled
	}

	result, err := s.backend.Register(ctx, input)
	if err != nil {
		s.metrics.RecordLogin("register", false)
		s.logEvent(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, sessionID).WithEmail(input.Email).WithError(err))
		return nil, err
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		loginResult, err := s.backend.Login(ctx, input.Email, input.Password)
		if err != nil {
			s.metrics.RecordLogin("register", false)
			return nil, fmt.Errorf("failed to sign in after registration: %w", err)
		}
		if loginResult.User == nil {
			loginResult.User = result.User
		}
		result = loginResult
	}

	user, err := s.establish(ctx, store, result)
	if err != nil {
		s.metrics.RecordLogin("register", false)
		s.logEvent(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, sessionID).WithEmail(input.Email).WithError(err))
		return nil, err
	}

	s.metrics.RecordLogin("register", true)
	s.logEvent(ctx, domain.NewAuditEvent(domain.UserRegistrationEvent, sessionID).WithUser(user))
	return user, nil
}

// establish stores a fresh token pair and the user behind it
func (s *AuthServiceImpl) establish(ctx context.Context, store domain.AuthStore, result *domain.AuthResult) (*domain.User, error) {
	user := result.User
	if user == nil {
		u, err := s.backend.CurrentUser(ctx, result.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user: %w", err)
		}
		user = u
	}
	if err := store.SetAuth(ctx, user, result.AccessToken, result.RefreshToken, result.ExpiresIn); err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh implements domain.AuthService. Concurrent refreshes of the same
// browser session share one backend call.
func (s *AuthServiceImpl) Refresh(ctx context.Context, sessionID string, store domain.AuthStore) error {
	// Detached so one caller giving up does not fail the others sharing the call
	refreshCtx := context.WithoutCancel(ctx)
	_, err, _ := s.refreshes.Do(sessionID, func() (interface{}, error) {
		return nil, s.refresh(refreshCtx, sessionID, store)
	})
	return err
}

func (s *AuthServiceImpl) refresh(ctx context.Context, sessionID string, store domain.AuthStore) error {
	state := store.State()
	if state.RefreshToken == "" {
		return domain.ErrNoSession
	}

	result, err := s.backend.Refresh(ctx, state.RefreshToken)
	if err != nil {
		s.metrics.RecordRefresh(false)
		event := domain.NewAuditEvent(domain.TokenRefreshFailureEvent, sessionID).WithUser(state.User).WithError(err)
		if errors.Is(err, domain.ErrBackendUnavailable) {
			// The refresh token was not rejected; keep the session for the next attempt
			s.logEvent(ctx, event.WithMetadata("session_kept", true))
			return fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
		}
		store.ClearAuth(ctx)
		s.logEvent(ctx, event)
		return fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
	}

	refreshToken := result.RefreshToken
	if refreshToken == "" {
		// Backends without rotation keep the old refresh token valid
		refreshToken = state.RefreshToken
	}
	if err := store.SetTokens(ctx, result.AccessToken, refreshToken, result.ExpiresIn); err != nil {
		s.metrics.RecordRefresh(false)
		s.logEvent(ctx, domain.NewAuditEvent(domain.TokenRefreshFailureEvent, sessionID).WithUser(state.User).WithError(err))
		return fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
	}
	if result.User != nil {
		store.SetUser(result.User)
	}

	s.metrics.RecordRefresh(true)
	s.logEvent(ctx, domain.NewAuditEvent(domain.TokensRefreshedEvent, sessionID).WithUser(state.User))
	return nil
}

// EnsureFresh implements domain.AuthService
func (s *AuthServiceImpl) EnsureFresh(ctx context.Context, sessionID string, store domain.AuthStore) error {
	if store.State().RefreshToken == "" {
		return domain.ErrNoSession
	}
	if !store.NeedsRefresh() {
		return nil
	}
	err := s.Refresh(ctx, sessionID, store)
	if err != nil && errors.Is(err, domain.ErrBackendUnavailable) && !store.IsTokenExpired() {
		// The current access token still works; retry on a later request
		s.logger.WarnContext(ctx, "proactive refresh deferred", "session_id", sessionID, "error", err)
		return nil
	}
	return err
}

// CurrentUser implements domain.AuthService. The profile is fetched once and cached in the store.
func (s *AuthServiceImpl) CurrentUser(ctx context.Context, sessionID string, store domain.AuthStore) (*domain.User, error) {
	if err := s.EnsureFresh(ctx, sessionID, store); err != nil {
		return nil, err
	}
	if user := store.State().User; user != nil {
		return user, nil
	}

	var user *domain.User
	err := s.withAccessToken(ctx, sessionID, store, func(accessToken string) error {
		u, err := s.backend.CurrentUser(ctx, accessToken)
		user = u
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			store.ClearAuth(ctx)
			return nil, fmt.Errorf("%w: %w", domain.ErrNoSession, err)
		}
		return nil, err
	}
	store.SetUser(user)
	return user, nil
}

// Logout implements domain.AuthService. The backend call is best effort; local
// state is always cleared.
func (s *AuthServiceImpl) Logout(ctx context.Context, sessionID string, store domain.AuthStore) error {
	state := store.State()
	if state.AccessToken != "" {
		if err := s.backend.Logout(ctx, state.AccessToken, state.RefreshToken); err != nil {
			s.logger.WarnContext(ctx, "backend logout failed", "session_id", sessionID, "error", err)
		}
	}
	store.ClearAuth(ctx)

	s.metrics.RecordLogout()
	s.logEvent(ctx, domain.NewAuditEvent(domain.UserLogoutEvent, sessionID).WithUser(state.User))
	return nil
}

// ListSessions implements domain.AuthService
func (s *AuthServiceImpl) ListSessions(ctx context.Context, sessionID string, store domain.AuthStore) ([]domain.DeviceSession, error) {
	if !s.cfg.EnableSessionManagement {
		return nil, domain.ErrFeatureDisabled
	}
	var sessions []domain.DeviceSession
	err := s.withAccessToken(ctx, sessionID, store, func(accessToken string) error {
		list, err := s.backend.ListSessions(ctx, accessToken)
		sessions = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// RevokeSession implements domain.AuthService
func (s *AuthServiceImpl) RevokeSession(ctx context.Context, sessionID string, store domain.AuthStore, deviceSessionID string) error {
	if !s.cfg.EnableSessionManagement {
		return domain.ErrFeatureDisabled
	}
	err := s.withAccessToken(ctx, sessionID, store, func(accessToken string) error {
		return s.backend.RevokeSession(ctx, accessToken, deviceSessionID)
	})
	event := domain.NewAuditEvent(domain.SessionRevokedEvent, sessionID).
		WithUser(store.State().User).
		WithMetadata("device_session_id", deviceSessionID)
	if err != nil {
		s.logEvent(ctx, event.WithError(err))
		return err
	}
	s.logEvent(ctx, event)
	return nil
}

// withAccessToken runs call with a fresh access token, refreshing and retrying
// once when the backend rejects the token.
func (s *AuthServiceImpl) withAccessToken(ctx context.Context, sessionID string, store domain.AuthStore, call func(accessToken string) error) error {
	if err := s.EnsureFresh(ctx, sessionID, store); err != nil {
		return err
	}
	err := call(store.State().AccessToken)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	if err := s.Refresh(ctx, sessionID, store); err != nil {
		return err
	}
	return call(store.State().AccessToken)
}

func (s *AuthServiceImpl) logEvent(ctx context.Context, event *domain.AuditEvent) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, event)
	}
}

var _ domain.AuthService = (*AuthServiceImpl)(nil)
