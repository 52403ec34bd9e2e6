package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/you/websession/domain"
)

// JWTInspector implements domain.TokenInspector.
// Signatures are not checked: the gateway only needs the expiry to schedule
// refreshes, and the backend verifies every token it receives.
type JWTInspector struct {
	parser *jwt.Parser
}

// NewJWTInspector creates a new inspector
func NewJWTInspector() domain.TokenInspector {
	return &JWTInspector{parser: jwt.NewParser()}
}

// ExpiresAt implements domain.TokenInspector. ok is false for opaque tokens
// and for JWTs without an exp claim.
func (j *JWTInspector) ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := j.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
