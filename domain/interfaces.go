package domain

import (
	"context"
	"time"
)

// KeyValueStore defines the storage medium operations used for session data
type KeyValueStore interface {
	// Get returns ErrKeyNotFound when the key is absent or expired
	Get(ctx context.Context, key string) (string, error)
	// Set writes the value; a zero ttl means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Encryptor defines session-scoped credential encryption
type Encryptor interface {
	EncryptData(ctx context.Context, plaintext string) (string, error)
	DecryptData(ctx context.Context, ciphertext string) (string, error)
	ClearEncryptionKey(ctx context.Context) error
	KeyEpoch() uint64
}

// TokenStorage persists the token pair between requests.
// Read failures are never surfaced: they mean "no session".
type TokenStorage interface {
	Method() StorageMethod
	SaveTokens(ctx context.Context, pair TokenPair) error
	GetTokens(ctx context.Context) *TokenPair
	ClearTokens(ctx context.Context)
	IsStorageAvailable(ctx context.Context) bool
}

// TokenInspector reads metadata from access tokens without verifying them
type TokenInspector interface {
	ExpiresAt(token string) (time.Time, bool)
}

// AuthStore is the single source of truth for one browser session's auth state
type AuthStore interface {
	State() SessionState
	Loaded() <-chan struct{}
	LoadAuthFromStorage(ctx context.Context)
	SetAuth(ctx context.Context, user *User, accessToken, refreshToken string, expiresIn int64) error
	SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error
	SetUser(user *User)
	ClearAuth(ctx context.Context)
	IsTokenExpired() bool
	NeedsRefresh() bool
}

// StoreResolver finds the auth store of a browser session
type StoreResolver interface {
	Resolve(ctx context.Context, sessionID string) (AuthStore, error)
	// Issue starts a session under a new id with an empty, already loaded store
	Issue(ctx context.Context) (string, AuthStore, error)
	// Retire clears whatever a session holds and forgets its id
	Retire(ctx context.Context, sessionID string)
}

// BackendClient defines the calls made to the external backend API
type BackendClient interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
	ListSessions(ctx context.Context, accessToken string) ([]DeviceSession, error)
	RevokeSession(ctx context.Context, accessToken, sessionID string) error
}

// AuthService defines the authentication flows run on behalf of a browser session
type AuthService interface {
	Login(ctx context.Context, sessionID string, store AuthStore, email, password string) (*User, error)
	Register(ctx context.Context, sessionID string, store AuthStore, input RegisterInput) (*User, error)
	Refresh(ctx context.Context, sessionID string, store AuthStore) error
	EnsureFresh(ctx context.Context, sessionID string, store AuthStore) error
	CurrentUser(ctx context.Context, sessionID string, store AuthStore) (*User, error)
	Logout(ctx context.Context, sessionID string, store AuthStore) error
	ListSessions(ctx context.Context, sessionID string, store AuthStore) ([]DeviceSession, error)
	RevokeSession(ctx context.Context, sessionID string, store AuthStore, deviceSessionID string) error
}

// SessionKeeper is the subset of AuthService the route guard depends on
type SessionKeeper interface {
	EnsureFresh(ctx context.Context, sessionID string, store AuthStore) error
	CurrentUser(ctx context.Context, sessionID string, store AuthStore) (*User, error)
}

// CapabilityChecker defines authorization policy lookups
type CapabilityChecker interface {
	HasCapability(user *User, capability Capability) (bool, error)
}

// CasbinEnforcer interface defines the methods we need from Casbin enforcer
type CasbinEnforcer interface {
	AddPolicy(params ...interface{}) (bool, error)
	Enforce(rvals ...interface{}) (bool, error)
	GetPolicy() ([][]string, error)
	SavePolicy() error
}
