package middleware

import "testing"

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"empty", "", "/"},
		{"plain path", "/dashboard", "/dashboard"},
		{"path with query", "/dashboard?tab=2&x=y", "/dashboard?tab=2&x=y"},
		{"absolute url", "https://evil.example/phish", "/"},
		{"protocol relative", "//evil.example/phish", "/"},
		{"backslash trick", "/\\evil.example", "/"},
		{"javascript scheme", "javascript:alert(1)", "/"},
		{"relative without slash", "dashboard", "/"},
		{"header injection", "/dashboard\r\nSet-Cookie: x=1", "/"},
		{"fragment dropped", "/settings#profile", "/settings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeReturnPath(tt.raw); got != tt.expected {
				t.Errorf("SafeReturnPath(%q) = %q, expected %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestLoginURL(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		expected string
	}{
		{"root target omitted", "/", "/login"},
		{"unsafe target omitted", "//evil.example", "/login"},
		{"target escaped", "/admin?view=all", "/login?redirect=%2Fadmin%3Fview%3Dall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LoginURL("/login", tt.target); got != tt.expected {
				t.Errorf("LoginURL(%q) = %q, expected %q", tt.target, got, tt.expected)
			}
		})
	}
}
