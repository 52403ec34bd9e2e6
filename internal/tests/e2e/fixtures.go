package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/websession/domain"
)

// Test accounts known to the fake authentication API
const (
	MemberEmail    = "ada@example.com"
	MemberPassword = "correct-horse"
	AdminEmail     = "root@example.com"
	AdminPassword  = "battery-staple"
)

type fakeAccount struct {
	user     domain.User
	password string
}

// FakeBackend is an in-process authentication API with rotating refresh tokens
type FakeBackend struct {
	Server *httptest.Server

	mu        sync.Mutex
	accounts  map[string]*fakeAccount // by email
	access    map[string]string       // access token -> email
	refresh   map[string]string       // refresh token -> email
	devices   map[string][]domain.DeviceSession
	seq       int
	accessTTL int64
	down      bool
	calls     map[string]int
}

// NewFakeBackend starts the fake API with one member and one superuser
func NewFakeBackend() *FakeBackend {
	gin.SetMode(gin.TestMode)
	f := &FakeBackend{
		accounts:  map[string]*fakeAccount{},
		access:    map[string]string{},
		refresh:   map[string]string{},
		devices:   map[string][]domain.DeviceSession{},
		accessTTL: 900,
		calls:     map[string]int{},
	}
	f.addAccount(domain.User{Email: MemberEmail, FirstName: "Ada", LastName: "Lovelace", IsActive: true}, MemberPassword)
	f.addAccount(domain.User{Email: AdminEmail, FirstName: "Root", IsActive: true, IsSuperuser: true}, AdminPassword)

	r := gin.New()
	api := r.Group("/api/v1", f.gate)
	api.POST("/auth/login", f.login)
	api.POST("/auth/register", f.register)
	api.POST("/auth/refresh", f.refreshTokens)
	api.POST("/auth/logout", f.logout)
	api.GET("/users/me", f.authenticated, f.me)
	api.GET("/sessions/me", f.authenticated, f.listDevices)
	api.DELETE("/sessions/:id", f.authenticated, f.revokeDevice)

	f.Server = httptest.NewServer(r)
	return f
}

// BaseURL is the API root the gateway is configured with
func (f *FakeBackend) BaseURL() string { return f.Server.URL + "/api/v1" }

func (f *FakeBackend) Close() { f.Server.Close() }

// SetAccessTTL changes the expires_in of tokens issued from now on
func (f *FakeBackend) SetAccessTTL(seconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessTTL = seconds
}

// SetDown makes every endpoint answer 503
func (f *FakeBackend) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// RevokeAll invalidates every token issued to email
func (f *FakeBackend) RevokeAll(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, owner := range f.access {
		if owner == email {
			delete(f.access, tok)
		}
	}
	for tok, owner := range f.refresh {
		if owner == email {
			delete(f.refresh, tok)
		}
	}
}

// Calls returns how often the named endpoint was hit
func (f *FakeBackend) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *FakeBackend) addAccount(u domain.User, password string) *fakeAccount {
	f.seq++
	u.ID = fmt.Sprintf("user-%d", f.seq)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	u.CreatedAt = &created
	acc := &fakeAccount{user: u, password: password}
	f.accounts[u.Email] = acc
	f.devices[u.Email] = []domain.DeviceSession{
		{ID: "device-" + u.ID, DeviceName: "Firefox on Linux", LastUsedAt: created, CreatedAt: created},
	}
	return acc
}

// issue must be called with f.mu held
func (f *FakeBackend) issue(acc *fakeAccount) gin.H {
	f.seq++
	accessToken := fmt.Sprintf("access-%d", f.seq)
	refreshToken := fmt.Sprintf("refresh-%d", f.seq)
	f.access[accessToken] = acc.user.Email
	f.refresh[refreshToken] = acc.user.Email
	user := acc.user
	return gin.H{
		"user":          user,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    f.accessTTL,
	}
}

func (f *FakeBackend) gate(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[strings.TrimPrefix(c.FullPath(), "/api/v1")]++
	if f.down {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "maintenance"})
		c.Abort()
	}
}

func (f *FakeBackend) authenticated(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	f.mu.Lock()
	email, ok := f.access[token]
	f.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or expired token"})
		c.Abort()
		return
	}
	c.Set("email", email)
	c.Set("token", token)
	c.Next()
}

func (f *FakeBackend) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[req.Email]
	if !ok || acc.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password"})
		return
	}
	c.JSON(http.StatusOK, f.issue(acc))
}

func (f *FakeBackend) register(c *gin.Context) {
	var req domain.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[req.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"errors": []gin.H{
			{"code": "EMAIL_TAKEN", "message": "Email already registered", "field": "email"},
		}})
		return
	}
	acc := f.addAccount(domain.User{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		IsActive:    true,
	}, req.Password)
	// Like many APIs, registration returns the account without signing it in
	c.JSON(http.StatusCreated, gin.H{"user": acc.user})
}

func (f *FakeBackend) refreshTokens(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.refresh[req.RefreshToken]
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid refresh token"})
		return
	}
	delete(f.refresh, req.RefreshToken)
	c.JSON(http.StatusOK, f.issue(f.accounts[email]))
}

func (f *FakeBackend) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.access, token)
	delete(f.refresh, req.RefreshToken)
	c.Status(http.StatusNoContent)
}

func (f *FakeBackend) me(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.accounts[c.GetString("email")].user)
}

func (f *FakeBackend) listDevices(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.devices[c.GetString("email")])
}

func (f *FakeBackend) revokeDevice(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := c.GetString("email")
	devices := f.devices[email]
	for i, d := range devices {
		if d.ID == c.Param("id") {
			f.devices[email] = append(devices[:i], devices[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
}
