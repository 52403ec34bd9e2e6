package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/crypto"
	"github.com/you/websession/internal/infrastructure/metrics"
	"github.com/you/websession/internal/infrastructure/repositories"
	"github.com/you/websession/internal/infrastructure/storage"
)

// SessionManagerConfig configures a SessionManager
type SessionManagerConfig struct {
	StorageMethod domain.StorageMethod
	// Persistent holds the encrypted token entries
	Persistent domain.KeyValueStore
	// Volatile holds the session keys
	Volatile    domain.KeyValueStore
	KeyTTL      time.Duration
	LoadTimeout time.Duration
	Store       AuthStoreOptions
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type sessionEntry struct {
	store    *AuthStoreImpl
	lastSeen time.Time
}

// SessionManager hands out one auth store per browser session
type SessionManager struct {
	cfg SessionManagerConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionManager creates a manager with no sessions
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if !cfg.StorageMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStorage, cfg.StorageMethod)
	}
	if cfg.StorageMethod == domain.StorageMethodLocal && (cfg.Persistent == nil || cfg.Volatile == nil) {
		return nil, fmt.Errorf("%s storage requires persistent and volatile stores", cfg.StorageMethod)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store.Logger == nil {
		cfg.Store.Logger = cfg.Logger
	}
	now := cfg.Store.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		cfg:      cfg,
		now:      now,
		sessions: make(map[string]*sessionEntry),
	}, nil
}

// NewSessionID returns a fresh browser session id
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id looks like an id from NewSessionID
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Resolve implements domain.StoreResolver. A session seen for the first time
// gets its own cipher, storage and store, and starts loading in the background.
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (domain.AuthStore, error) {
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", domain.ErrNoSession)
	}

	m.mu.Lock()
	if entry, ok := m.sessions[sessionID]; ok {
		entry.lastSeen = m.now()
		m.mu.Unlock()
		return entry.store, nil
	}

	tokenStorage, err := m.newTokenStorage(sessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	store := NewAuthStore(tokenStorage, m.cfg.Store)
	m.sessions[sessionID] = &sessionEntry{store: store, lastSeen: m.now()}
	count := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Metrics.SetSessionStores(count)
	go m.load(sessionID, store)
	return store, nil
}

// Issue implements domain.StoreResolver. Nothing can be persisted under an id
// that did not exist, so the store skips loading.
func (m *SessionManager) Issue(ctx context.Context) (string, domain.AuthStore, error) {
	sessionID := NewSessionID()
	tokenStorage, err := m.newTokenStorage(sessionID)
	if err != nil {
		return "", nil, err
	}
	store := NewAuthStore(tokenStorage, m.cfg.Store)
	store.finishLoading()

	m.mu.Lock()
	m.sessions[sessionID] = &sessionEntry{store: store, lastSeen: m.now()}
	count := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Metrics.SetSessionStores(count)
	m.cfg.Logger.DebugContext(ctx, "session issued", "session_id", sessionID)
	return sessionID, store, nil
}

// Retire implements domain.StoreResolver. Stored tokens and the session key
// are removed even when the store was already swept from memory.
func (m *SessionManager) Retire(ctx context.Context, sessionID string) {
	if !ValidSessionID(sessionID) {
		return
	}
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessionStores(count)

	if ok {
		entry.store.ClearAuth(ctx)
	} else if tokenStorage, err := m.newTokenStorage(sessionID); err == nil {
		tokenStorage.ClearTokens(ctx)
	}
	m.cfg.Logger.DebugContext(ctx, "session retired", "session_id", sessionID)
}

func (m *SessionManager) load(sessionID string, store *AuthStoreImpl) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LoadTimeout)
	defer cancel()
	store.LoadAuthFromStorage(ctx)
	m.cfg.Logger.DebugContext(ctx, "session loaded", "session_id", sessionID, "authenticated", store.State().IsAuthenticated)
}

func (m *SessionManager) newTokenStorage(sessionID string) (domain.TokenStorage, error) {
	opts := storage.Options{
		Logger:  m.cfg.Logger.With("session_id", sessionID),
		Metrics: m.cfg.Metrics,
		// The entry is unreadable once its key is gone
		TTL: m.cfg.KeyTTL,
	}
	if m.cfg.StorageMethod != domain.StorageMethodLocal {
		return storage.NewTokenStorage(m.cfg.StorageMethod, nil, nil, opts)
	}
	keys := repositories.NewNamespacedStore(m.cfg.Volatile, "key:"+sessionID)
	entries := repositories.NewNamespacedStore(m.cfg.Persistent, "tokens:"+sessionID)
	cipher := crypto.NewSessionCipher(keys, m.cfg.KeyTTL)
	return storage.NewTokenStorage(m.cfg.StorageMethod, entries, cipher, opts)
}

// Forget drops the in-memory store of a session
func (m *SessionManager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessionStores(count)
}

// Sweep drops stores not used for maxIdle and returns how many were dropped.
// Persisted tokens stay, so a returning visitor is restored on the next request.
func (m *SessionManager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	dropped := 0
	for id, entry := range m.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Metrics.SetSessionStores(count)
	return dropped
}

// RunSweeper sweeps every interval until ctx is done
func (m *SessionManager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				m.cfg.Logger.InfoContext(ctx, "swept idle sessions", "count", n)
			}
		}
	}
}

// Len returns the number of stores held in memory
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ domain.StoreResolver = (*SessionManager)(nil)
