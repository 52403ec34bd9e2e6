package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/metrics"
)

// Guard decisions recorded in metrics
const (
	DecisionAllow         = "allow"
	DecisionLoading       = "loading"
	DecisionLogin         = "redirect_login"
	DecisionNeutral       = "redirect_neutral"
	DecisionBackendFailed = "backend_failed"
)

const loadingPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><div class="skeleton" aria-busy="true">Loading…</div></body></html>`

// GuardConfig controls where RouteGuard sends visitors
type GuardConfig struct {
	LoginPath    string
	NeutralPath  string
	LoadingDelay time.Duration
	// RetryAfter is the Retry-After value of the loading response
	RetryAfter time.Duration
}

// RouteGuard protects routes behind an authenticated browser session
type RouteGuard struct {
	keeper  domain.SessionKeeper
	checker domain.CapabilityChecker
	audit   domain.AuditLogger
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     GuardConfig
}

// NewRouteGuard creates a RouteGuard
func NewRouteGuard(keeper domain.SessionKeeper, checker domain.CapabilityChecker, audit domain.AuditLogger, logger *slog.Logger, m *metrics.Metrics, cfg GuardConfig) *RouteGuard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.NeutralPath == "" {
		cfg.NeutralPath = "/"
	}
	if cfg.LoadingDelay <= 0 {
		cfg.LoadingDelay = 2 * time.Second
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteGuard{
		keeper:  keeper,
		checker: checker,
		audit:   audit,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}
}

// RequireAuth admits authenticated sessions and loads their user onto the context
func (g *RouteGuard) RequireAuth() gin.HandlerFunc {
	return g.handle("")
}

// RequireCapability admits authenticated sessions whose user holds capability
func (g *RouteGuard) RequireCapability(capability domain.Capability) gin.HandlerFunc {
	return g.handle(capability)
}

func (g *RouteGuard) handle(capability domain.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		store, ok := AuthStoreFrom(c)
		if !ok {
			g.logger.ErrorContext(ctx, "route guard used without a browser session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Session unavailable"})
			c.Abort()
			return
		}
		sessionID := SessionIDFrom(c)

		if !g.waitLoaded(c, store) {
			g.metrics.RecordGuardDecision(DecisionLoading)
			c.Header("Retry-After", strconv.Itoa(int(g.cfg.RetryAfter.Seconds())))
			if WantsJSON(c) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session is loading", "loading": true})
			} else {
				c.Data(http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(loadingPage))
			}
			c.Abort()
			return
		}

		// A failed refresh has already cleared the store; the state check below
		// turns that into a login redirect.
		if err := g.keeper.EnsureFresh(ctx, sessionID, store); err != nil {
			g.logger.InfoContext(ctx, "proactive refresh failed", "error", err)
		}
		if !store.State().IsAuthenticated {
			g.toLogin(c)
			return
		}

		user, err := g.keeper.CurrentUser(ctx, sessionID, store)
		switch {
		case errors.Is(err, domain.ErrNoSession), !store.State().IsAuthenticated:
			g.toLogin(c)
			return
		case err != nil:
			g.metrics.RecordGuardDecision(DecisionBackendFailed)
			g.logger.ErrorContext(ctx, "failed to load current user", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load user"})
			c.Abort()
			return
		}
		WithUser(c, user)

		if capability != "" {
			allowed, err := g.checker.HasCapability(user, capability)
			if err != nil {
				g.logger.ErrorContext(ctx, "capability check failed", "capability", capability, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
				c.Abort()
				return
			}
			if !allowed {
				g.deny(c, sessionID, user, capability)
				return
			}
		}

		g.metrics.RecordGuardDecision(DecisionAllow)
		c.Next()
	}
}

// waitLoaded blocks until the store finished loading, the delay passed or the request ended
func (g *RouteGuard) waitLoaded(c *gin.Context, store domain.AuthStore) bool {
	select {
	case <-store.Loaded():
		return true
	default:
	}
	timer := time.NewTimer(g.cfg.LoadingDelay)
	defer timer.Stop()
	select {
	case <-store.Loaded():
		return true
	case <-timer.C:
		return false
	case <-c.Request.Context().Done():
		return false
	}
}

func (g *RouteGuard) toLogin(c *gin.Context) {
	g.metrics.RecordGuardDecision(DecisionLogin)
	loginURL := LoginURL(g.cfg.LoginPath, c.Request.URL.RequestURI())
	if WantsJSON(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "login_url": loginURL})
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, loginURL)
	c.Abort()
}

func (g *RouteGuard) deny(c *gin.Context, sessionID string, user *domain.User, capability domain.Capability) {
	g.metrics.RecordGuardDecision(DecisionNeutral)
	if g.audit != nil {
		g.audit.LogEvent(c.Request.Context(), domain.NewAuditEvent(domain.AccessDeniedEvent, sessionID).
			WithUser(user).
			WithMetadata("capability", string(capability)).
			WithMetadata("path", c.Request.URL.Path).
			WithError(nil))
	}
	if WantsJSON(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, g.cfg.NeutralPath)
	c.Abort()
}

// WantsJSON reports whether the client expects JSON instead of a page
func WantsJSON(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}
