package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, expected: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, expected: ErrForbidden},
		{name: "not found", status: http.StatusNotFound, expected: ErrResourceNotFound},
		{name: "conflict", status: http.StatusConflict, expected: ErrConflict},
		{name: "bad request", status: http.StatusBadRequest, expected: ErrValidation},
		{name: "unprocessable entity", status: http.StatusUnprocessableEntity, expected: ErrValidation},
		{name: "server error", status: http.StatusBadGateway, expected: ErrBackendUnavailable},
		{name: "unmapped status", status: http.StatusTeapot, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status}
			if tt.expected == nil {
				if err.Unwrap() != nil {
					t.Errorf("expected no sentinel, got %v", err.Unwrap())
				}
				return
			}

			// Wrapping must not hide the sentinel
			wrapped := fmt.Errorf("login: %w", err)
			if !errors.Is(wrapped, tt.expected) {
				t.Errorf("expected errors.Is(%v) to hold for status %d", tt.expected, tt.status)
			}

			var apiErr *APIError
			if !errors.As(wrapped, &apiErr) {
				t.Fatal("expected errors.As to find the APIError")
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
		})
	}
}

func TestAPIError_Messages(t *testing.T) {
	err := &APIError{
		StatusCode: http.StatusBadRequest,
		Errors: []APIErrorDetail{
			{Code: "VAL_001", Message: "Invalid email", Field: "email"},
			{Code: "VAL_002", Message: "duplicate email message", Field: "email"},
			{Code: "VAL_003", Message: "Password too short", Field: "password"},
			{Code: "GEN_001", Message: "Please fix the highlighted fields"},
		},
	}

	fields := err.FieldErrors()
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(fields))
	}
	if fields["email"] != "Invalid email" {
		t.Errorf("expected first email message to win, got %q", fields["email"])
	}
	if fields["password"] != "Password too short" {
		t.Errorf("unexpected password message %q", fields["password"])
	}
	if got := err.GeneralMessage(); got != "Please fix the highlighted fields" {
		t.Errorf("unexpected general message %q", got)
	}

	expected := "backend returned status 400: email: Invalid email; email: duplicate email message; password: Password too short; Please fix the highlighted fields"
	if err.Error() != expected {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestAPIError_EmptyDetails(t *testing.T) {
	err := &APIError{StatusCode: http.StatusInternalServerError}
	if err.Error() != "backend returned status 500" {
		t.Errorf("unexpected error string %q", err.Error())
	}
	if err.GeneralMessage() != "" {
		t.Error("expected empty general message")
	}
	if len(err.FieldErrors()) != 0 {
		t.Error("expected no field errors")
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidConfig, ErrKeyNotFound, ErrStorageUnavailable, ErrUnknownStorage,
		ErrDecryption, ErrKeyRotated, ErrInvalidTokenPair, ErrNoSession, ErrRefreshFailed,
		ErrRegistrationDisabled, ErrFeatureDisabled, ErrInvalidCredentials, ErrUnauthorized,
		ErrForbidden, ErrResourceNotFound, ErrValidation, ErrConflict, ErrBackendUnavailable,
	}

	for i, a := range sentinels {
		if a.Error() == "" {
			t.Errorf("sentinel %d has an empty message", i)
		}
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %q should not match %q", a, b)
			}
		}
	}
}
