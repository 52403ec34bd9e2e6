package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/you/websession/domain"
)

const (
	// DefaultTokenLifetime applies when the backend omits expires_in and the token carries no exp claim
	DefaultTokenLifetime = 15 * time.Minute
	// DefaultRefreshThreshold is how long before expiry a refresh is attempted
	DefaultRefreshThreshold = 60 * time.Second
)

// AuthStoreOptions configures an AuthStoreImpl
type AuthStoreOptions struct {
	DefaultExpiresIn time.Duration
	RefreshThreshold time.Duration
	Inspector        domain.TokenInspector
	Now              func() time.Time
	Logger           *slog.Logger
}

// AuthStoreImpl implements domain.AuthStore for one browser session
type AuthStoreImpl struct {
	storage          domain.TokenStorage
	inspector        domain.TokenInspector
	defaultExpiresIn time.Duration
	refreshThreshold time.Duration
	now              func() time.Time
	logger           *slog.Logger

	mu             sync.RWMutex
	user           *domain.User
	accessToken    string
	refreshToken   string
	tokenExpiresAt *time.Time
	isLoading      bool

	loadOnce sync.Once
	loaded   chan struct{}
}

// NewAuthStore creates an empty store in the loading state
func NewAuthStore(storage domain.TokenStorage, opts AuthStoreOptions) *AuthStoreImpl {
	if opts.DefaultExpiresIn <= 0 {
		opts.DefaultExpiresIn = DefaultTokenLifetime
	}
	if opts.RefreshThreshold < 0 {
		opts.RefreshThreshold = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AuthStoreImpl{
		storage:          storage,
		inspector:        opts.Inspector,
		defaultExpiresIn: opts.DefaultExpiresIn,
		refreshThreshold: opts.RefreshThreshold,
		now:              opts.Now,
		logger:           opts.Logger,
		isLoading:        true,
		loaded:           make(chan struct{}),
	}
}

// State implements domain.AuthStore. IsAuthenticated is derived on every read.
func (s *AuthStoreImpl) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := domain.SessionState{
		User:            s.user,
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshToken,
		IsAuthenticated: s.hasPairLocked() && !s.expiredLocked(),
		IsLoading:       s.isLoading,
	}
	if s.tokenExpiresAt != nil {
		t := *s.tokenExpiresAt
		state.TokenExpiresAt = &t
	}
	return state
}

// Loaded implements domain.AuthStore
func (s *AuthStoreImpl) Loaded() <-chan struct{} {
	return s.loaded
}

// LoadAuthFromStorage implements domain.AuthStore. An expired pair leaves the
// session cleared; the stored copy stays so a refresh flow can still pick it up.
func (s *AuthStoreImpl) LoadAuthFromStorage(ctx context.Context) {
	defer s.finishLoading()

	pair := s.storage.GetTokens(ctx)
	if !pair.Valid() {
		return
	}

	var expiresAt time.Time
	if pair.ExpiresAt != nil {
		expiresAt = *pair.ExpiresAt
	} else {
		expiresAt = s.expiryFor(pair.AccessToken, 0)
	}
	if !s.now().Before(expiresAt) {
		s.logger.DebugContext(ctx, "stored tokens have expired", "expired_at", expiresAt)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A login that finished while we were reading wins
	if s.hasPairLocked() {
		return
	}
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.tokenExpiresAt = &expiresAt
}

// SetAuth implements domain.AuthStore
func (s *AuthStoreImpl) SetAuth(ctx context.Context, user *domain.User, accessToken, refreshToken string, expiresIn int64) error {
	expiresAt := s.expiryFor(accessToken, expiresIn)
	if err := s.persist(ctx, accessToken, refreshToken, expiresAt); err != nil {
		return err
	}

	s.mu.Lock()
	s.user = user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.tokenExpiresAt = &expiresAt
	s.mu.Unlock()

	s.finishLoading()
	return nil
}

// SetTokens implements domain.AuthStore
func (s *AuthStoreImpl) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error {
	expiresAt := s.expiryFor(accessToken, expiresIn)
	if err := s.persist(ctx, accessToken, refreshToken, expiresAt); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.tokenExpiresAt = &expiresAt
	s.mu.Unlock()
	return nil
}

// SetUser implements domain.AuthStore
func (s *AuthStoreImpl) SetUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// ClearAuth implements domain.AuthStore
func (s *AuthStoreImpl) ClearAuth(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.tokenExpiresAt = nil
	s.mu.Unlock()

	s.storage.ClearTokens(ctx)
	s.finishLoading()
}

// IsTokenExpired implements domain.AuthStore
func (s *AuthStoreImpl) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiredLocked()
}

// NeedsRefresh implements domain.AuthStore
func (s *AuthStoreImpl) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refreshToken == "" || s.tokenExpiresAt == nil {
		return false
	}
	return !s.now().Before(s.tokenExpiresAt.Add(-s.refreshThreshold))
}

func (s *AuthStoreImpl) persist(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	pair := domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: &expiresAt}
	if !pair.Valid() {
		return domain.ErrInvalidTokenPair
	}
	if err := s.storage.SaveTokens(ctx, pair); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	return nil
}

// expiryFor prefers an explicit lifetime, then the token's own exp claim, then the default
func (s *AuthStoreImpl) expiryFor(accessToken string, expiresIn int64) time.Time {
	now := s.now()
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	if s.inspector != nil {
		if exp, ok := s.inspector.ExpiresAt(accessToken); ok {
			return exp
		}
	}
	return now.Add(s.defaultExpiresIn)
}

func (s *AuthStoreImpl) hasPairLocked() bool {
	return s.accessToken != "" && s.refreshToken != ""
}

func (s *AuthStoreImpl) expiredLocked() bool {
	return s.tokenExpiresAt == nil || !s.now().Before(*s.tokenExpiresAt)
}

func (s *AuthStoreImpl) finishLoading() {
	s.loadOnce.Do(func() {
		s.mu.Lock()
		s.isLoading = false
		s.mu.Unlock()
		close(s.loaded)
	})
}

var _ domain.AuthStore = (*AuthStoreImpl)(nil)
