// Package backend is the HTTP client for the external backend API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/metrics"
)

// Config holds the backend connection settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client implements domain.BackendClient
type Client struct {
	http    *resty.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a backend client. A nil logger uses slog.Default.
func NewClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "websession"
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	return &Client{http: httpClient, logger: logger, metrics: m}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login implements domain.BackendClient
func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var result domain.AuthResult
	err := c.do(ctx, "login", c.http.R().
		SetBody(loginRequest{Email: email, Password: password}).
		SetResult(&result), http.MethodPost, "/auth/login")
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Register implements domain.BackendClient. The returned tokens may be empty
// when the backend does not sign the new user in.
func (c *Client) Register(ctx context.Context, input domain.RegisterInput) (*domain.AuthResult, error) {
	var result domain.AuthResult
	err := c.do(ctx, "register", c.http.R().
		SetBody(input).
		SetResult(&result), http.MethodPost, "/auth/register")
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh implements domain.BackendClient
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	var result domain.AuthResult
	err := c.do(ctx, "refresh", c.http.R().
		SetBody(refreshRequest{RefreshToken: refreshToken}).
		SetResult(&result), http.MethodPost, "/auth/refresh")
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout implements domain.BackendClient
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return c.do(ctx, "logout", c.http.R().
		SetAuthToken(accessToken).
		SetBody(refreshRequest{RefreshToken: refreshToken}), http.MethodPost, "/auth/logout")
}

// CurrentUser implements domain.BackendClient
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	var user domain.User
	err := c.do(ctx, "current_user", c.http.R().
		SetAuthToken(accessToken).
		SetResult(&user), http.MethodGet, "/users/me")
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListSessions implements domain.BackendClient
func (c *Client) ListSessions(ctx context.Context, accessToken string) ([]domain.DeviceSession, error) {
	var sessions []domain.DeviceSession
	err := c.do(ctx, "list_sessions", c.http.R().
		SetAuthToken(accessToken).
		SetResult(&sessions), http.MethodGet, "/sessions/me")
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.DeviceSession{}
	}
	return sessions, nil
}

// RevokeSession implements domain.BackendClient
func (c *Client) RevokeSession(ctx context.Context, accessToken, sessionID string) error {
	return c.do(ctx, "revoke_session", c.http.R().
		SetAuthToken(accessToken).
		SetPathParam("id", sessionID), http.MethodDelete, "/sessions/{id}")
}

func (c *Client) do(ctx context.Context, operation string, req *resty.Request, method, path string) error {
	start := time.Now()
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		c.metrics.ObserveBackendRequest(operation, 0, time.Since(start).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "backend request failed", "operation", operation, "error", err)
		return fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, operation, err)
	}
	c.metrics.ObserveBackendRequest(operation, resp.StatusCode(), time.Since(start).Seconds())

	if resp.IsError() {
		return parseAPIError(resp.StatusCode(), resp.Body())
	}
	return nil
}

// errorBody covers both error shapes the backend produces:
// {"errors":[{"code","message","field"}]} and {"detail": "..."}.
type errorBody struct {
	Errors []domain.APIErrorDetail `json:"errors"`
	Detail json.RawMessage         `json:"detail"`
}

type validationDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func parseAPIError(status int, body []byte) *domain.APIError {
	apiErr := &domain.APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Errors = []domain.APIErrorDetail{{Message: http.StatusText(status)}}
		return apiErr
	}
	if len(eb.Errors) > 0 {
		apiErr.Errors = eb.Errors
		return apiErr
	}

	if len(eb.Detail) > 0 {
		var msg string
		if err := json.Unmarshal(eb.Detail, &msg); err == nil {
			apiErr.Errors = []domain.APIErrorDetail{{Message: msg}}
			return apiErr
		}
		var details []validationDetail
		if err := json.Unmarshal(eb.Detail, &details); err == nil {
			for _, d := range details {
				apiErr.Errors = append(apiErr.Errors, domain.APIErrorDetail{
					Message: d.Msg,
					Field:   fieldFromLoc(d.Loc),
				})
			}
			return apiErr
		}
	}

	apiErr.Errors = []domain.APIErrorDetail{{Message: http.StatusText(status)}}
	return apiErr
}

// fieldFromLoc returns the last string element of a location path such as ["body","email"]
func fieldFromLoc(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok && s != "body" {
			return s
		}
	}
	return ""
}

var _ domain.BackendClient = (*Client)(nil)
