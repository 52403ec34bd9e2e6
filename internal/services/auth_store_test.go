package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/auth"
	"github.com/you/websession/internal/infrastructure/crypto"
	"github.com/you/websession/internal/infrastructure/logger"
	"github.com/you/websession/internal/infrastructure/repositories"
	"github.com/you/websession/internal/infrastructure/storage"
	"github.com/you/websession/internal/mocks"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newRealTokenStorage wires encrypted storage over in-memory media
func newRealTokenStorage(t *testing.T) domain.TokenStorage {
	t.Helper()
	cipher := crypto.NewSessionCipher(repositories.NewMemoryKVStore(), time.Hour)
	ts, err := storage.NewTokenStorage(domain.StorageMethodLocal, repositories.NewMemoryKVStore(), cipher, storage.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	return ts
}

func newStoreForTest(ts domain.TokenStorage, clock *fakeClock) *AuthStoreImpl {
	return NewAuthStore(ts, AuthStoreOptions{
		DefaultExpiresIn: DefaultTokenLifetime,
		RefreshThreshold: DefaultRefreshThreshold,
		Inspector:        auth.NewJWTInspector(),
		Now:              clock.Now,
		Logger:           logger.Discard(),
	})
}

func TestAuthStore_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	ts := newRealTokenStorage(t)
	clock := newFakeClock()
	store := newStoreForTest(ts, clock)
	user := &domain.User{ID: "u-1", Email: "ada@example.com"}

	// Empty storage: still unauthenticated after loading
	assert.True(t, store.State().IsLoading)
	store.LoadAuthFromStorage(ctx)
	state := store.State()
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsAuthenticated)
	select {
	case <-store.Loaded():
	default:
		t.Fatal("Loaded channel should be closed after loading")
	}

	require.NoError(t, store.SetAuth(ctx, user, "tok-a", "tok-r", 900))
	state = store.State()
	assert.True(t, state.IsAuthenticated)
	assert.Equal(t, user, state.User)
	saved := ts.GetTokens(ctx)
	require.NotNil(t, saved)
	assert.Equal(t, "tok-a", saved.AccessToken)
	assert.Equal(t, "tok-r", saved.RefreshToken)
	require.NotNil(t, saved.ExpiresAt)
	assert.True(t, clock.Now().Add(900*time.Second).Equal(*saved.ExpiresAt), "expiry is stored with the pair")

	store.ClearAuth(ctx)
	state = store.State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	assert.Nil(t, ts.GetTokens(ctx))
}

func TestAuthStore_LoadAuthFromStorage(t *testing.T) {
	clock := newFakeClock()
	future := clock.Now().Add(10 * time.Minute)
	past := clock.Now().Add(-time.Minute)

	jwtWithExp := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name          string
		stored        *domain.TokenPair
		wantAuth      bool
		wantExpiresAt *time.Time
	}{
		{
			name:     "nothing stored",
			stored:   nil,
			wantAuth: false,
		},
		{
			name:          "opaque tokens get the default lifetime",
			stored:        &domain.TokenPair{AccessToken: "tok-a", RefreshToken: "tok-r"},
			wantAuth:      true,
			wantExpiresAt: ptrTime(clock.Now().Add(DefaultTokenLifetime)),
		},
		{
			name:          "JWT exp claim is honoured",
			stored:        &domain.TokenPair{AccessToken: jwtWithExp(future), RefreshToken: "tok-r"},
			wantAuth:      true,
			wantExpiresAt: ptrTime(future.Truncate(time.Second)),
		},
		{
			name:     "expired JWT leaves the session cleared",
			stored:   &domain.TokenPair{AccessToken: jwtWithExp(past), RefreshToken: "tok-r"},
			wantAuth: false,
		},
		{
			name:          "stored expiry wins over the default lifetime",
			stored:        &domain.TokenPair{AccessToken: "tok-a", RefreshToken: "tok-r", ExpiresAt: ptrTime(clock.Now().Add(3 * time.Minute))},
			wantAuth:      true,
			wantExpiresAt: ptrTime(clock.Now().Add(3 * time.Minute)),
		},
		{
			name:     "stored expiry in the past leaves the session cleared",
			stored:   &domain.TokenPair{AccessToken: "tok-a", RefreshToken: "tok-r", ExpiresAt: &past},
			wantAuth: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := mocks.NewMockTokenStorage()
			ts.GetTokensFunc = func(ctx context.Context) *domain.TokenPair { return tt.stored }
			store := newStoreForTest(ts, clock)

			store.LoadAuthFromStorage(context.Background())

			state := store.State()
			assert.False(t, state.IsLoading)
			assert.Equal(t, tt.wantAuth, state.IsAuthenticated)
			if tt.wantExpiresAt != nil {
				require.NotNil(t, state.TokenExpiresAt)
				assert.True(t, tt.wantExpiresAt.Equal(*state.TokenExpiresAt), "expected %v, got %v", tt.wantExpiresAt, state.TokenExpiresAt)
			}
			if !tt.wantAuth {
				assert.Empty(t, state.AccessToken)
			}
			assert.Nil(t, state.User, "user is fetched separately")
		})
	}
}

func TestAuthStore_LoadDoesNotOverrideLogin(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	ts := mocks.NewMockTokenStorage()
	ts.GetTokensFunc = func(ctx context.Context) *domain.TokenPair {
		<-release
		return &domain.TokenPair{AccessToken: "stale-a", RefreshToken: "stale-r"}
	}
	store := newStoreForTest(ts, newFakeClock())

	done := make(chan struct{})
	go func() {
		store.LoadAuthFromStorage(ctx)
		close(done)
	}()

	require.NoError(t, store.SetAuth(ctx, &domain.User{ID: "u-1"}, "fresh-a", "fresh-r", 900))
	close(release)
	<-done

	assert.Equal(t, "fresh-a", store.State().AccessToken)
}

func TestAuthStore_SetAuthValidation(t *testing.T) {
	tests := []struct {
		name    string
		access  string
		refresh string
		saveErr error
		wantErr error
	}{
		{"empty access token", "", "tok-r", nil, domain.ErrInvalidTokenPair},
		{"empty refresh token", "tok-a", "", nil, domain.ErrInvalidTokenPair},
		{"storage unavailable", "tok-a", "tok-r", domain.ErrStorageUnavailable, domain.ErrStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := mocks.NewMockTokenStorage()
			ts.SaveTokensFunc = func(ctx context.Context, pair domain.TokenPair) error { return tt.saveErr }
			store := newStoreForTest(ts, newFakeClock())

			err := store.SetAuth(context.Background(), &domain.User{ID: "u-1"}, tt.access, tt.refresh, 900)

			assert.ErrorIs(t, err, tt.wantErr)
			state := store.State()
			assert.False(t, state.IsAuthenticated, "failed SetAuth must leave state unchanged")
			assert.Nil(t, state.User)
			assert.Empty(t, ts.Saved)
		})
	}
}

func TestAuthStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newStoreForTest(mocks.NewMockTokenStorage(), clock)

	assert.True(t, store.IsTokenExpired(), "no expiry means expired")
	assert.False(t, store.NeedsRefresh())

	require.NoError(t, store.SetTokens(ctx, "tok-a", "tok-r", 300))
	assert.False(t, store.IsTokenExpired())
	assert.False(t, store.NeedsRefresh())

	clock.Advance(300*time.Second - DefaultRefreshThreshold)
	assert.False(t, store.IsTokenExpired())
	assert.True(t, store.NeedsRefresh(), "inside the threshold window")
	assert.True(t, store.State().IsAuthenticated)

	clock.Advance(DefaultRefreshThreshold)
	assert.True(t, store.IsTokenExpired(), "expired exactly at expiry")
	assert.False(t, store.State().IsAuthenticated)
}

func TestAuthStore_DefaultExpiresIn(t *testing.T) {
	clock := newFakeClock()
	store := newStoreForTest(mocks.NewMockTokenStorage(), clock)

	require.NoError(t, store.SetTokens(context.Background(), "tok-a", "tok-r", 0))

	state := store.State()
	require.NotNil(t, state.TokenExpiresAt)
	assert.Equal(t, clock.Now().Add(DefaultTokenLifetime), *state.TokenExpiresAt)
}

func TestAuthStore_SetUserAndClear(t *testing.T) {
	ctx := context.Background()
	ts := mocks.NewMockTokenStorage()
	store := newStoreForTest(ts, newFakeClock())
	require.NoError(t, store.SetTokens(ctx, "tok-a", "tok-r", 900))

	store.SetUser(&domain.User{ID: "u-2", IsSuperuser: true})
	assert.Equal(t, "u-2", store.State().User.ID)

	store.ClearAuth(ctx)
	assert.Equal(t, 1, ts.ClearCalls)
	assert.Nil(t, store.State().User)
	assert.Empty(t, store.State().RefreshToken)
}

func TestAuthStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newStoreForTest(mocks.NewMockTokenStorage(), newFakeClock())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SetTokens(ctx, "tok-a", "tok-r", 900)
		}()
		go func() {
			defer wg.Done()
			_ = store.State()
			_ = store.NeedsRefresh()
		}()
	}
	wg.Wait()

	assert.True(t, store.State().IsAuthenticated)
}

func TestAuthStore_StateIsACopy(t *testing.T) {
	store := newStoreForTest(mocks.NewMockTokenStorage(), newFakeClock())
	require.NoError(t, store.SetTokens(context.Background(), "tok-a", "tok-r", 900))

	state := store.State()
	*state.TokenExpiresAt = time.Time{}

	assert.False(t, store.IsTokenExpired())
}

func TestAuthStore_SaveErrorIsWrapped(t *testing.T) {
	ts := mocks.NewMockTokenStorage()
	quota := errors.New("quota exceeded")
	ts.SaveTokensFunc = func(ctx context.Context, pair domain.TokenPair) error {
		return quota
	}
	store := newStoreForTest(ts, newFakeClock())

	err := store.SetTokens(context.Background(), "tok-a", "tok-r", 900)

	assert.ErrorIs(t, err, quota)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
