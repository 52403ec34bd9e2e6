package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/http/middleware"
)

// SessionHandlers serves the signed-in user's pages and device session management
type SessionHandlers struct {
	authSvc domain.AuthService
	logger  *slog.Logger
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(authSvc domain.AuthService, logger *slog.Logger) *SessionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandlers{authSvc: authSvc, logger: logger}
}

// Home renders the public landing page, which is also where denied visitors end up
func (h *SessionHandlers) Home(c *gin.Context) {
	store, _, ok := sessionFrom(c)
	if !ok {
		return
	}
	state := store.State()
	var user *domain.User
	if state.IsAuthenticated {
		user = state.User
	}
	renderPage(c, http.StatusOK, "home", gin.H{"Title": "Welcome", "User": user})
}

// Me returns the current user (requires authentication)
func (h *SessionHandlers) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"user": user,
			"role": user.RoleName(),
		},
	})
}

// Dashboard renders the signed-in landing page (requires authentication)
func (h *SessionHandlers) Dashboard(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	renderPage(c, http.StatusOK, "dashboard", gin.H{"Title": "Dashboard", "User": user})
}

// Admin serves the administration area (requires the admin capability)
func (h *SessionHandlers) Admin(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	if middleware.WantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{
				"message": "Welcome to the administration area",
				"user":    user,
			},
		})
		return
	}
	renderPage(c, http.StatusOK, "admin", gin.H{"Title": "Administration", "User": user})
}

// ListSessions lists the user's active device sessions
func (h *SessionHandlers) ListSessions(c *gin.Context) {
	store, sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	sessions, err := h.authSvc.ListSessions(c.Request.Context(), sessionID, store)
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "failed to list device sessions", "error", err)
		resp := mapError(err, "Failed to list sessions")
		c.JSON(resp.Status, resp.body())
		return
	}
	if sessions == nil {
		sessions = []domain.DeviceSession{}
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

// RevokeSession ends one of the user's device sessions
func (h *SessionHandlers) RevokeSession(c *gin.Context) {
	store, sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}
	deviceSessionID := c.Param("id")
	if deviceSessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID is required"})
		return
	}

	if err := h.authSvc.RevokeSession(c.Request.Context(), sessionID, store, deviceSessionID); err != nil {
		h.logger.WarnContext(c.Request.Context(), "failed to revoke device session", "device_session", deviceSessionID, "error", err)
		resp := mapError(err, "Failed to revoke session")
		c.JSON(resp.Status, resp.body())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"message": "Session revoked",
			"id":      deviceSessionID,
		},
	})
}
