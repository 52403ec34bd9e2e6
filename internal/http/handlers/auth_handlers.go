package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/http/middleware"
)

// AuthHandlers handles the login, registration and session lifecycle routes
type AuthHandlers struct {
	authSvc             domain.AuthService
	registrationEnabled bool
	logger              *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authSvc domain.AuthService, registrationEnabled bool, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		authSvc:             authSvc,
		registrationEnabled: registrationEnabled,
		logger:              logger,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
	Redirect string `json:"redirect" form:"redirect"`
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Email       string `json:"email" form:"email" binding:"required,email"`
	Password    string `json:"password" form:"password" binding:"required,min=8"`
	FirstName   string `json:"first_name" form:"first_name"`
	LastName    string `json:"last_name" form:"last_name"`
	PhoneNumber string `json:"phone_number" form:"phone_number"`
	Redirect    string `json:"redirect" form:"redirect"`
}

// LoginPage renders the sign-in form, or forwards visitors who are already signed in
func (h *AuthHandlers) LoginPage(c *gin.Context) {
	store, _, ok := sessionFrom(c)
	if !ok {
		return
	}
	target := middleware.SafeReturnPath(c.Query("redirect"))
	if store.State().IsAuthenticated {
		c.Redirect(http.StatusFound, target)
		return
	}
	renderPage(c, http.StatusOK, "login", gin.H{
		"Title":               "Sign in",
		"Redirect":            target,
		"RegistrationEnabled": h.registrationEnabled,
	})
}

// RegisterPage renders the registration form
func (h *AuthHandlers) RegisterPage(c *gin.Context) {
	if !h.registrationEnabled {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	renderPage(c, http.StatusOK, "register", gin.H{
		"Title":    "Create an account",
		"Redirect": middleware.SafeReturnPath(c.Query("redirect")),
	})
}

// Login handles user login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, "login", errorResponse{Status: http.StatusBadRequest, Message: err.Error()}, req.Email, req.Redirect)
		return
	}
	renewal, ok := h.renewSession(c)
	if !ok {
		return
	}

	user, err := h.authSvc.Login(c.Request.Context(), renewal.ID, renewal.Store, req.Email, req.Password)
	if err != nil {
		renewal.Discard()
		h.logger.InfoContext(c.Request.Context(), "login failed", "error", err)
		h.fail(c, "login", mapError(err, "Login failed"), req.Email, req.Redirect)
		return
	}
	renewal.Commit()

	target := middleware.SafeReturnPath(req.Redirect)
	if isFormPost(c) {
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"user":     user,
			"redirect": target,
		},
	})
}

// Register handles user registration
func (h *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, "register", errorResponse{Status: http.StatusBadRequest, Message: err.Error()}, req.Email, req.Redirect)
		return
	}
	renewal, ok := h.renewSession(c)
	if !ok {
		return
	}

	user, err := h.authSvc.Register(c.Request.Context(), renewal.ID, renewal.Store, domain.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		renewal.Discard()
		h.logger.InfoContext(c.Request.Context(), "registration failed", "error", err)
		h.fail(c, "register", mapError(err, "Registration failed"), req.Email, req.Redirect)
		return
	}
	renewal.Commit()

	target := middleware.SafeReturnPath(req.Redirect)
	if isFormPost(c) {
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"user":     user,
			"redirect": target,
		},
	})
}

// Refresh renews the session's token pair
func (h *AuthHandlers) Refresh(c *gin.Context) {
	store, sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	if err := h.authSvc.Refresh(c.Request.Context(), sessionID, store); err != nil {
		resp := mapError(err, "Token refresh failed")
		c.JSON(resp.Status, resp.body())
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stateView(store.State())})
}

// Logout ends the session; local state is cleared even when the backend is unreachable
func (h *AuthHandlers) Logout(c *gin.Context) {
	store, sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	if err := h.authSvc.Logout(c.Request.Context(), sessionID, store); err != nil {
		h.logger.WarnContext(c.Request.Context(), "logout failed", "error", err)
		resp := mapError(err, "Logout failed")
		c.JSON(resp.Status, resp.body())
		return
	}

	if isFormPost(c) {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"message": "Logged out successfully",
		},
	})
}

// State reports the session's auth state without exposing tokens
func (h *AuthHandlers) State(c *gin.Context) {
	store, _, ok := sessionFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stateView(store.State())})
}

// renewSession prepares the session a sign-in will run under
func (h *AuthHandlers) renewSession(c *gin.Context) (*middleware.SessionRenewal, bool) {
	renewal, err := middleware.RenewSession(c)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to issue session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session unavailable"})
		return nil, false
	}
	return renewal, true
}

// fail answers a failed form or JSON submission
func (h *AuthHandlers) fail(c *gin.Context, page string, resp errorResponse, email, redirect string) {
	if isFormPost(c) {
		title := "Sign in"
		if page == "register" {
			title = "Create an account"
		}
		renderPage(c, resp.Status, page, gin.H{
			"Title":               title,
			"Error":               resp.Message,
			"FieldErrors":         nonNil(resp.Fields),
			"Email":               email,
			"Redirect":            middleware.SafeReturnPath(redirect),
			"RegistrationEnabled": h.registrationEnabled,
		})
		return
	}
	c.JSON(resp.Status, resp.body())
}

func nonNil(fields map[string]string) map[string]string {
	if fields == nil {
		return map[string]string{}
	}
	return fields
}
