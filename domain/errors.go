package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Configuration errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Storage errors
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUnknownStorage     = errors.New("unknown storage method")
)

// Encryption errors
var (
	ErrDecryption = errors.New("decryption failed")
	ErrKeyRotated = errors.New("encryption key has been rotated")
)

// Session errors
var (
	ErrInvalidTokenPair = errors.New("token pair requires access and refresh tokens")
	ErrNoSession        = errors.New("no active session")
	ErrRefreshFailed    = errors.New("token refresh failed")
)

// Feature errors
var (
	ErrRegistrationDisabled = errors.New("registration is disabled")
	ErrFeatureDisabled      = errors.New("feature is disabled")
)

// Backend errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("resource already exists")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// APIErrorDetail is one entry of a backend error list
type APIErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// APIError is a structured error returned by the backend
type APIError struct {
	StatusCode int
	Errors     []APIErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		if d.Field != "" {
			msgs = append(msgs, d.Field+": "+d.Message)
			continue
		}
		msgs = append(msgs, d.Message)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// Unwrap maps the status code onto a sentinel so callers can use errors.Is
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrResourceNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrBackendUnavailable
	default:
		return nil
	}
}

// FieldErrors returns field level messages keyed by field name
func (e *APIError) FieldErrors() map[string]string {
	out := make(map[string]string)
	for _, d := range e.Errors {
		if d.Field == "" {
			continue
		}
		if _, exists := out[d.Field]; !exists {
			out[d.Field] = d.Message
		}
	}
	return out
}

// GeneralMessage returns the first error not tied to a field
func (e *APIError) GeneralMessage() string {
	for _, d := range e.Errors {
		if d.Field == "" {
			return d.Message
		}
	}
	return ""
}
