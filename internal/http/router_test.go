package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/http/handlers"
	"github.com/you/websession/internal/http/middleware"
	"github.com/you/websession/internal/infrastructure/metrics"
	"github.com/you/websession/internal/mocks"
)

func buildTestRouter(t *testing.T, store domain.AuthStore) (*gin.Engine, *mocks.MockStoreResolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	svc := mocks.NewMockAuthService()
	resolver := mocks.NewMockStoreResolver(store)
	r := BuildRouter(RouterDeps{
		Auth:     handlers.NewAuthHandlers(svc, true, nil),
		Sessions: handlers.NewSessionHandlers(svc, nil),
		Health:   handlers.NewHealthHandlers(nil),
		Guard:    middleware.NewRouteGuard(svc, mocks.NewMockCapabilityChecker(), mocks.NewMockAuditLogger(), nil, m, middleware.GuardConfig{}),
		Resolver: resolver,
		Cookie:   middleware.CookieConfig{Name: "ws_session"},
		Gatherer: reg,
		Metrics:  m,
	})
	return r, resolver
}

func TestBuildRouter_Routes(t *testing.T) {
	r, _ := buildTestRouter(t, nil)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /",
		"GET /login",
		"GET /register",
		"POST /auth/login",
		"POST /auth/register",
		"POST /auth/refresh",
		"POST /auth/logout",
		"GET /auth/state",
		"GET /dashboard",
		"GET /api/me",
		"GET /api/sessions",
		"DELETE /api/sessions/:id",
		"GET /admin",
	} {
		assert.True(t, registered[want], "route %s not registered", want)
	}
}

func TestBuildRouter_HealthSkipsBrowserSession(t *testing.T) {
	r, resolver := buildTestRouter(t, nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resolver.Resolved)
	assert.Empty(t, resolver.Issued)
	assert.Empty(t, w.Result().Cookies())
}

func TestBuildRouter_GuardedRoutes(t *testing.T) {
	member := mocks.NewAuthenticatedMockStore(&domain.User{ID: "u-1", Email: "ada@example.com"})

	tests := []struct {
		name             string
		store            domain.AuthStore
		target           string
		expectedStatus   int
		expectedLocation string
	}{
		{"anonymous dashboard", mocks.NewMockAuthStore(domain.SessionState{}), "/dashboard", http.StatusFound, "/login?redirect=%2Fdashboard"},
		{"anonymous api", mocks.NewMockAuthStore(domain.SessionState{}), "/api/me", http.StatusUnauthorized, ""},
		{"member dashboard", member, "/dashboard", http.StatusOK, ""},
		{"member admin", member, "/admin", http.StatusFound, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := buildTestRouter(t, tt.store)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedLocation != "" {
				assert.Equal(t, tt.expectedLocation, w.Header().Get("Location"))
			}
		})
	}
}

func TestBuildRouter_Metrics(t *testing.T) {
	r, _ := buildTestRouter(t, mocks.NewMockAuthStore(domain.SessionState{}))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `websession_http_requests_total{method="GET",route="/login",status="200"} 1`)
}
