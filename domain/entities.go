package domain

import "time"

// User represents the profile record returned by the backend
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// RoleName returns the policy role the user acts under
func (u *User) RoleName() string {
	if u != nil && u.IsSuperuser {
		return "admin"
	}
	return "user"
}

// DisplayName returns the best human readable name available
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// TokenPair is the access/refresh credential set issued by the backend
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is when the access token stops being accepted; entries written
	// before it was recorded leave it nil
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether both tokens are present.
// A pair missing either token means there is no session.
func (p *TokenPair) Valid() bool {
	return p != nil && p.AccessToken != "" && p.RefreshToken != ""
}

// SessionState is a snapshot of one browser session's auth state
type SessionState struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	TokenExpiresAt  *time.Time
	IsLoading       bool
}

// AuthResult represents a successful login, registration or refresh
type AuthResult struct {
	User         *User  `json:"user,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// RegisterInput carries the fields of a registration form
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// DeviceSession represents one of the user's active sessions on the backend
type DeviceSession struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"device_name,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Location   string    `json:"location,omitempty"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
	IsCurrent  bool      `json:"is_current"`
}

// StorageMethod selects where the token pair lives between requests
type StorageMethod string

const (
	// StorageMethodLocal keeps the encrypted pair in the persistent key/value store
	StorageMethodLocal StorageMethod = "localStorage"
	// StorageMethodCookie delegates persistence to server-set HTTP-only cookies
	StorageMethodCookie StorageMethod = "cookie"
)

// Valid reports whether the method is one of the known storage methods
func (m StorageMethod) Valid() bool {
	return m == StorageMethodLocal || m == StorageMethodCookie
}

// Capability names a protected area of the application
type Capability string

const (
	CapabilityDashboard Capability = "dashboard"
	CapabilityAdmin     Capability = "admin"
)
