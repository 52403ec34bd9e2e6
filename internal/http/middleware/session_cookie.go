package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/services"
)

// Context keys set by BrowserSessionMW and RouteGuard
const (
	storeKey     = "auth_store"
	sessionIDKey = "browser_session_id"
	userKey      = "current_user"
	resolverKey  = "store_resolver"
	cookieKey    = "session_cookie"
)

// CookieConfig describes the browser session cookie
type CookieConfig struct {
	Name   string
	Domain string
	Path   string
	Secure bool
	// MaxAge in seconds; zero makes it a browser-session cookie
	MaxAge int
}

// BrowserSessionMW identifies the browser session by cookie, issuing a new id
// when the cookie is missing or malformed, and puts its auth store on the context.
func BrowserSessionMW(resolver domain.StoreResolver, cookie CookieConfig, logger *slog.Logger) gin.HandlerFunc {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var store domain.AuthStore
		sessionID, err := c.Cookie(cookie.Name)
		if err != nil || !services.ValidSessionID(sessionID) {
			sessionID, store, err = resolver.Issue(ctx)
			if err == nil {
				setSessionCookie(c, cookie, sessionID)
			}
		} else {
			store, err = resolver.Resolve(ctx, sessionID)
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to resolve session store", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Session unavailable"})
			c.Abort()
			return
		}

		c.Set(resolverKey, resolver)
		c.Set(cookieKey, cookie)
		WithAuthStore(c, sessionID, store)
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, cookie CookieConfig, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookie.Name, sessionID, cookie.MaxAge, cookie.Path, cookie.Domain, cookie.Secure, true)
}

// SessionRenewal is a new browser session prepared for a sign-in. The
// request keeps its old id until Commit.
type SessionRenewal struct {
	ID    string
	Store domain.AuthStore

	c        *gin.Context
	resolver domain.StoreResolver
	cookie   CookieConfig
	previous string
}

// RenewSession issues a new session so a sign-in never upgrades an id the
// client already held, which could have been planted by someone else
func RenewSession(c *gin.Context) (*SessionRenewal, error) {
	v, ok := c.Get(resolverKey)
	if !ok {
		return nil, fmt.Errorf("%w: no session resolver on request", domain.ErrNoSession)
	}
	resolver := v.(domain.StoreResolver)
	cv, _ := c.Get(cookieKey)
	cookie, _ := cv.(CookieConfig)

	id, store, err := resolver.Issue(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return &SessionRenewal{
		ID:       id,
		Store:    store,
		c:        c,
		resolver: resolver,
		cookie:   cookie,
		previous: SessionIDFrom(c),
	}, nil
}

// Commit hands the new id to the browser and retires the previous session
func (r *SessionRenewal) Commit() {
	setSessionCookie(r.c, r.cookie, r.ID)
	WithAuthStore(r.c, r.ID, r.Store)
	if r.previous != "" && r.previous != r.ID {
		r.resolver.Retire(r.c.Request.Context(), r.previous)
	}
}

// Discard drops the unused new session after a failed sign-in
func (r *SessionRenewal) Discard() {
	r.resolver.Retire(r.c.Request.Context(), r.ID)
}

// AuthStoreFrom returns the auth store BrowserSessionMW attached to the request
func AuthStoreFrom(c *gin.Context) (domain.AuthStore, bool) {
	v, ok := c.Get(storeKey)
	if !ok {
		return nil, false
	}
	store, ok := v.(domain.AuthStore)
	return store, ok
}

// SessionIDFrom returns the browser session id of the request
func SessionIDFrom(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

// UserFrom returns the user RouteGuard loaded for the request
func UserFrom(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}

// WithStoreResolver makes resolver available to RenewSession without
// BrowserSessionMW, for tests and embedding callers
func WithStoreResolver(c *gin.Context, resolver domain.StoreResolver, cookie CookieConfig) {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	c.Set(resolverKey, resolver)
	c.Set(cookieKey, cookie)
}

// WithAuthStore attaches a store directly, for tests and embedding callers
func WithAuthStore(c *gin.Context, sessionID string, store domain.AuthStore) {
	c.Set(sessionIDKey, sessionID)
	c.Set(storeKey, store)
}

// WithUser attaches the current user the way RouteGuard does
func WithUser(c *gin.Context, user *domain.User) {
	c.Set(userKey, user)
}
