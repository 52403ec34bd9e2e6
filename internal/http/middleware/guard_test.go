package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/metrics"
	"github.com/you/websession/internal/mocks"
)

const testSessionID = "5c0d8f7e-1b2a-4c3d-9e8f-0a1b2c3d4e5f"

type guardFixture struct {
	keeper  *mocks.MockAuthService
	checker *mocks.MockCapabilityChecker
	audit   *mocks.MockAuditLogger
	metrics *metrics.Metrics
	router  *gin.Engine
}

// newGuardFixture mounts /dashboard, /api/me and /admin behind a guard for store
func newGuardFixture(store domain.AuthStore, cfg GuardConfig) *guardFixture {
	gin.SetMode(gin.TestMode)
	f := &guardFixture{
		keeper:  mocks.NewMockAuthService(),
		checker: mocks.NewMockCapabilityChecker(),
		audit:   mocks.NewMockAuditLogger(),
		metrics: metrics.New(),
	}
	guard := NewRouteGuard(f.keeper, f.checker, f.audit, nil, f.metrics, cfg)

	ok := func(c *gin.Context) {
		user, _ := UserFrom(c)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"email": user.Email}})
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		WithAuthStore(c, testSessionID, store)
		c.Next()
	})
	r.GET("/dashboard", guard.RequireAuth(), ok)
	r.GET("/api/me", guard.RequireAuth(), ok)
	r.GET("/admin", guard.RequireCapability(domain.CapabilityAdmin), ok)
	f.router = r
	return f
}

func (f *guardFixture) do(method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouteGuard(t *testing.T) {
	member := &domain.User{ID: "u-1", Email: "ada@example.com"}
	admin := &domain.User{ID: "u-2", Email: "root@example.com", IsSuperuser: true}
	jsonAccept := map[string]string{"Accept": "application/json"}

	tests := []struct {
		name             string
		store            func() *mocks.MockAuthStore
		setupMocks       func(f *guardFixture)
		target           string
		headers          map[string]string
		expectedStatus   int
		expectedLocation string
		expectedBody     map[string]interface{}
		expectedDecision string
	}{
		{
			name:             "authenticated visitor passes",
			store:            func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			target:           "/dashboard",
			expectedStatus:   http.StatusOK,
			expectedBody:     map[string]interface{}{"data": map[string]interface{}{"email": "ada@example.com"}},
			expectedDecision: DecisionAllow,
		},
		{
			name:             "anonymous visitor redirected to login with return target",
			store:            func() *mocks.MockAuthStore { return mocks.NewMockAuthStore(domain.SessionState{}) },
			target:           "/dashboard?tab=2",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/login?redirect=%2Fdashboard%3Ftab%3D2",
			expectedDecision: DecisionLogin,
		},
		{
			name:           "anonymous api client gets 401 with login url",
			store:          func() *mocks.MockAuthStore { return mocks.NewMockAuthStore(domain.SessionState{}) },
			target:         "/api/me",
			expectedStatus: http.StatusUnauthorized,
			expectedBody: map[string]interface{}{
				"error":     "Authentication required",
				"login_url": "/login?redirect=%2Fapi%2Fme",
			},
			expectedDecision: DecisionLogin,
		},
		{
			name:  "failed proactive refresh sends visitor to login",
			store: func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			setupMocks: func(f *guardFixture) {
				f.keeper.EnsureFreshFunc = func(ctx context.Context, sessionID string, store domain.AuthStore) error {
					store.ClearAuth(ctx)
					return domain.ErrRefreshFailed
				}
			},
			target:           "/dashboard",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/login?redirect=%2Fdashboard",
			expectedDecision: DecisionLogin,
		},
		{
			name:  "refresh blocked by outage keeps valid session",
			store: func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			setupMocks: func(f *guardFixture) {
				f.keeper.EnsureFreshFunc = func(ctx context.Context, sessionID string, store domain.AuthStore) error {
					return domain.ErrBackendUnavailable
				}
			},
			target:           "/dashboard",
			expectedStatus:   http.StatusOK,
			expectedDecision: DecisionAllow,
		},
		{
			name:  "user lookup rejected sends visitor to login",
			store: func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			setupMocks: func(f *guardFixture) {
				f.keeper.CurrentUserFunc = func(ctx context.Context, sessionID string, store domain.AuthStore) (*domain.User, error) {
					return nil, domain.ErrNoSession
				}
			},
			target:           "/dashboard",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/login?redirect=%2Fdashboard",
			expectedDecision: DecisionLogin,
		},
		{
			name:  "user lookup outage",
			store: func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			setupMocks: func(f *guardFixture) {
				f.keeper.CurrentUserFunc = func(ctx context.Context, sessionID string, store domain.AuthStore) (*domain.User, error) {
					return nil, domain.ErrBackendUnavailable
				}
			},
			target:           "/dashboard",
			expectedStatus:   http.StatusBadGateway,
			expectedBody:     map[string]interface{}{"error": "Failed to load user"},
			expectedDecision: DecisionBackendFailed,
		},
		{
			name:             "member redirected away from admin area",
			store:            func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			target:           "/admin",
			expectedStatus:   http.StatusFound,
			expectedLocation: "/",
			expectedDecision: DecisionNeutral,
		},
		{
			name:             "member api client forbidden from admin area",
			store:            func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(member) },
			target:           "/admin",
			headers:          jsonAccept,
			expectedStatus:   http.StatusForbidden,
			expectedBody:     map[string]interface{}{"error": "Insufficient permissions"},
			expectedDecision: DecisionNeutral,
		},
		{
			name:             "admin reaches admin area",
			store:            func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(admin) },
			target:           "/admin",
			expectedStatus:   http.StatusOK,
			expectedDecision: DecisionAllow,
		},
		{
			name:  "capability lookup failure",
			store: func() *mocks.MockAuthStore { return mocks.NewAuthenticatedMockStore(admin) },
			setupMocks: func(f *guardFixture) {
				f.checker.HasCapabilityFunc = func(user *domain.User, capability domain.Capability) (bool, error) {
					return false, errors.New("policy store down")
				}
			},
			target:         "/admin",
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]interface{}{"error": "Authorization check failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGuardFixture(tt.store(), GuardConfig{LoadingDelay: 20 * time.Millisecond})
			if tt.setupMocks != nil {
				tt.setupMocks(f)
			}

			w := f.do(http.MethodGet, tt.target, tt.headers)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedLocation != "" {
				assert.Equal(t, tt.expectedLocation, w.Header().Get("Location"))
			}
			if tt.expectedBody != nil {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedBody, body)
			}
			if tt.expectedDecision != "" {
				assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GuardDecisionsTotal.WithLabelValues(tt.expectedDecision)))
			}
		})
	}
}

func TestRouteGuard_AccessDeniedIsAudited(t *testing.T) {
	store := mocks.NewAuthenticatedMockStore(&domain.User{ID: "u-1", Email: "ada@example.com"})
	f := newGuardFixture(store, GuardConfig{})

	f.do(http.MethodGet, "/admin", nil)

	require.Len(t, f.audit.Events, 1)
	event := f.audit.Events[0]
	assert.Equal(t, domain.AccessDeniedEvent, event.EventType)
	assert.Equal(t, testSessionID, event.SessionID)
	assert.Equal(t, "u-1", event.UserID)
	assert.False(t, event.Success)
	assert.Equal(t, "admin", event.Metadata["capability"])
}

func TestRouteGuard_LoadingGate(t *testing.T) {
	t.Run("still loading after delay", func(t *testing.T) {
		store := mocks.NewMockAuthStore(domain.SessionState{IsLoading: true})
		f := newGuardFixture(store, GuardConfig{LoadingDelay: 10 * time.Millisecond, RetryAfter: 2 * time.Second})

		w := f.do(http.MethodGet, "/dashboard", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "skeleton")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GuardDecisionsTotal.WithLabelValues(DecisionLoading)))
	})

	t.Run("loading json client", func(t *testing.T) {
		store := mocks.NewMockAuthStore(domain.SessionState{IsLoading: true})
		f := newGuardFixture(store, GuardConfig{LoadingDelay: 10 * time.Millisecond})

		w := f.do(http.MethodGet, "/api/me", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"Session is loading","loading":true}`, w.Body.String())
	})

	t.Run("load finishing within delay is awaited", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour)
		store := mocks.NewMockAuthStore(domain.SessionState{
			User:            &domain.User{ID: "u-1", Email: "ada@example.com"},
			AccessToken:     "access-token",
			RefreshToken:    "refresh-token",
			IsAuthenticated: true,
			TokenExpiresAt:  &expiresAt,
			IsLoading:       true,
		})
		f := newGuardFixture(store, GuardConfig{LoadingDelay: time.Second})
		go func() {
			time.Sleep(10 * time.Millisecond)
			store.FinishLoading()
		}()

		w := f.do(http.MethodGet, "/dashboard", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouteGuard_MissingSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	guard := NewRouteGuard(mocks.NewMockAuthService(), mocks.NewMockCapabilityChecker(), nil, nil, nil, GuardConfig{})
	r := gin.New()
	r.GET("/dashboard", guard.RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWantsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name     string
		path     string
		headers  map[string]string
		expected bool
	}{
		{"browser page", "/dashboard", map[string]string{"Accept": "text/html"}, false},
		{"json accept", "/dashboard", map[string]string{"Accept": "application/json, text/plain"}, true},
		{"xhr", "/dashboard", map[string]string{"X-Requested-With": "XMLHttpRequest"}, true},
		{"api prefix", "/api/sessions", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, WantsJSON(c))
		})
	}
}
