package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/http/middleware"
)

// errorResponse is the JSON error shape: a banner message plus optional field messages
type errorResponse struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (r errorResponse) body() gin.H {
	body := gin.H{"error": r.Message}
	if len(r.Fields) > 0 {
		body["errors"] = r.Fields
	}
	return body
}

// mapError translates a flow error into a response. Storage and crypto
// failures never leak; they become fallback with a 500.
func mapError(err error, fallback string) errorResponse {
	var apiErr *domain.APIError
	errors.As(err, &apiErr)
	general, fields := "", map[string]string(nil)
	if apiErr != nil {
		general, fields = apiErr.GeneralMessage(), apiErr.FieldErrors()
	}
	orDefault := func(msg string) string {
		if general != "" {
			return general
		}
		return msg
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errorResponse{Status: http.StatusUnauthorized, Message: "Invalid email or password"}
	case errors.Is(err, domain.ErrRegistrationDisabled):
		return errorResponse{Status: http.StatusForbidden, Message: "Registration is disabled"}
	case errors.Is(err, domain.ErrFeatureDisabled):
		return errorResponse{Status: http.StatusForbidden, Message: "This feature is disabled"}
	case errors.Is(err, domain.ErrBackendUnavailable):
		return errorResponse{Status: http.StatusServiceUnavailable, Message: "Service temporarily unavailable, please try again"}
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrRefreshFailed), errors.Is(err, domain.ErrUnauthorized):
		return errorResponse{Status: http.StatusUnauthorized, Message: "Authentication required"}
	case errors.Is(err, domain.ErrValidation):
		status := http.StatusUnprocessableEntity
		if apiErr != nil && apiErr.StatusCode == http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		return errorResponse{Status: status, Message: orDefault("Please correct the highlighted fields"), Fields: fields}
	case errors.Is(err, domain.ErrConflict):
		return errorResponse{Status: http.StatusConflict, Message: orDefault("An account with this email already exists"), Fields: fields}
	case errors.Is(err, domain.ErrForbidden):
		return errorResponse{Status: http.StatusForbidden, Message: orDefault("Access denied")}
	case errors.Is(err, domain.ErrResourceNotFound):
		return errorResponse{Status: http.StatusNotFound, Message: orDefault("Not found")}
	default:
		return errorResponse{Status: http.StatusInternalServerError, Message: fallback}
	}
}

// sessionFrom returns the browser session of the request, answering 500 when it is missing
func sessionFrom(c *gin.Context) (domain.AuthStore, string, bool) {
	store, ok := middleware.AuthStoreFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session unavailable"})
		return nil, "", false
	}
	return store, middleware.SessionIDFrom(c), true
}

// isFormPost reports whether the request came from a server-rendered form
func isFormPost(c *gin.Context) bool {
	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		return true
	}
	return false
}

// stateView is the public projection of a session state; tokens never leave the server
func stateView(state domain.SessionState) gin.H {
	return gin.H{
		"is_authenticated": state.IsAuthenticated,
		"is_loading":       state.IsLoading,
		"user":             state.User,
		"token_expires_at": state.TokenExpiresAt,
	}
}
