// Package storage keeps a browser session's token pair between requests.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you/websession/domain"
	"github.com/you/websession/internal/infrastructure/metrics"
)

const (
	// TokensKey is the entry holding the encrypted token pair
	TokensKey = "auth_tokens"
	// ProbeKey is written and removed to check the medium is writable
	ProbeKey = "__storage_test__"
)

// Options carries the optional collaborators of a token storage
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// TTL bounds how long an encrypted pair outlives its last write; zero keeps it until cleared
	TTL time.Duration
}

// NewTokenStorage returns the storage implementation for method
func NewTokenStorage(method domain.StorageMethod, kv domain.KeyValueStore, enc domain.Encryptor, opts Options) (domain.TokenStorage, error) {
	switch method {
	case domain.StorageMethodLocal:
		if kv == nil || enc == nil {
			return nil, fmt.Errorf("%s storage requires a key/value store and an encryptor", method)
		}
		return NewLocalEncryptedStorage(kv, enc, opts), nil
	case domain.StorageMethodCookie:
		return NewServerManagedStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStorage, method)
	}
}

// LocalEncryptedStorage keeps the pair encrypted in a key/value store
type LocalEncryptedStorage struct {
	kv      domain.KeyValueStore
	enc     domain.Encryptor
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLocalEncryptedStorage creates a storage writing through enc into kv
func NewLocalEncryptedStorage(kv domain.KeyValueStore, enc domain.Encryptor, opts Options) *LocalEncryptedStorage {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalEncryptedStorage{
		kv:      kv,
		enc:     enc,
		ttl:     opts.TTL,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Method implements domain.TokenStorage
func (s *LocalEncryptedStorage) Method() domain.StorageMethod {
	return domain.StorageMethodLocal
}

// SaveTokens implements domain.TokenStorage
func (s *LocalEncryptedStorage) SaveTokens(ctx context.Context, pair domain.TokenPair) error {
	if !pair.Valid() {
		return domain.ErrInvalidTokenPair
	}
	if err := s.probe(ctx); err != nil {
		s.metrics.RecordStorageError("save")
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	sealed, err := s.enc.EncryptData(ctx, string(data))
	if err != nil {
		s.metrics.RecordStorageError("encrypt")
		return fmt.Errorf("%w: failed to encrypt tokens: %w", domain.ErrStorageUnavailable, err)
	}
	if err := s.kv.Set(ctx, TokensKey, sealed, s.ttl); err != nil {
		s.metrics.RecordStorageError("save")
		return fmt.Errorf("%w: failed to write tokens: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// GetTokens implements domain.TokenStorage. Entries that cannot be decrypted
// or do not decode into a complete pair are removed.
func (s *LocalEncryptedStorage) GetTokens(ctx context.Context) *domain.TokenPair {
	sealed, err := s.kv.Get(ctx, TokensKey)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			s.metrics.RecordStorageError("read")
			s.logger.WarnContext(ctx, "failed to read stored tokens", "error", err)
		}
		return nil
	}

	plain, err := s.enc.DecryptData(ctx, sealed)
	if err != nil {
		s.discard(ctx, "undecryptable", err)
		return nil
	}

	pair, err := decodePair(plain)
	if err != nil {
		s.discard(ctx, "invalid", err)
		return nil
	}
	return pair
}

// ClearTokens implements domain.TokenStorage
func (s *LocalEncryptedStorage) ClearTokens(ctx context.Context) {
	if err := s.kv.Delete(ctx, TokensKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.metrics.RecordStorageError("clear")
		s.logger.ErrorContext(ctx, "failed to remove stored tokens", "error", err)
	}
	if err := s.enc.ClearEncryptionKey(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear encryption key", "error", err)
	}
}

// IsStorageAvailable implements domain.TokenStorage
func (s *LocalEncryptedStorage) IsStorageAvailable(ctx context.Context) bool {
	return s.probe(ctx) == nil
}

func (s *LocalEncryptedStorage) probe(ctx context.Context) error {
	if err := s.kv.Set(ctx, ProbeKey, ProbeKey, 0); err != nil {
		return err
	}
	return s.kv.Delete(ctx, ProbeKey)
}

func (s *LocalEncryptedStorage) discard(ctx context.Context, reason string, cause error) {
	s.metrics.RecordCorruptedEntry()
	s.logger.WarnContext(ctx, "discarding stored tokens", "reason", reason, "error", cause)
	if err := s.kv.Delete(ctx, TokensKey); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.logger.ErrorContext(ctx, "failed to remove corrupted tokens", "error", err)
	}
}

// decodePair accepts only a JSON object whose two tokens are non-empty strings
func decodePair(plain string) (*domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := json.Unmarshal([]byte(plain), &pair); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if !pair.Valid() {
		return nil, domain.ErrInvalidTokenPair
	}
	return &pair, nil
}

var _ domain.TokenStorage = (*LocalEncryptedStorage)(nil)

// ServerManagedStorage is used when the backend owns the tokens through
// HTTP-only cookies. Nothing is persisted on this side.
type ServerManagedStorage struct{}

// NewServerManagedStorage creates the cookie mode storage
func NewServerManagedStorage() *ServerManagedStorage {
	return &ServerManagedStorage{}
}

// Method implements domain.TokenStorage
func (ServerManagedStorage) Method() domain.StorageMethod { return domain.StorageMethodCookie }

// SaveTokens implements domain.TokenStorage
func (ServerManagedStorage) SaveTokens(context.Context, domain.TokenPair) error { return nil }

// GetTokens implements domain.TokenStorage
func (ServerManagedStorage) GetTokens(context.Context) *domain.TokenPair { return nil }

// ClearTokens implements domain.TokenStorage
func (ServerManagedStorage) ClearTokens(context.Context) {}

// IsStorageAvailable implements domain.TokenStorage
func (ServerManagedStorage) IsStorageAvailable(context.Context) bool { return true }

var _ domain.TokenStorage = ServerManagedStorage{}
