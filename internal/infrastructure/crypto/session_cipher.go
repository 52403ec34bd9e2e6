// Package crypto encrypts credentials at rest under a session-scoped key.
//
// The key lives in a volatile key/value store and carries an epoch. Every new key
// (after a clear or after the old one expired) advances the epoch, and every
// ciphertext records the epoch it was sealed under, so data from an earlier key
// fails with domain.ErrKeyRotated instead of failing by accident.
//
// Ciphertext layout, base64 (standard) encoded:
//
//	epoch (8 bytes, big endian) || nonce (12 bytes) || AES-256-GCM sealed data
//
// The epoch bytes are bound to the seal as additional authenticated data.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/you/websession/domain"
)

const (
	// EncryptionKeyName is the volatile store entry holding the key record
	EncryptionKeyName = "encryption_key"

	keySize    = 32
	epochSize  = 8
	nonceSize  = 12
	headerSize = epochSize + nonceSize
)

type keyRecord struct {
	Epoch uint64 `json:"epoch"`
	Key   []byte `json:"key"`
}

// SessionCipher implements domain.Encryptor
type SessionCipher struct {
	keys   domain.KeyValueStore
	keyTTL time.Duration
	random io.Reader

	mu    sync.Mutex
	epoch uint64
}

// NewSessionCipher creates a cipher whose key is cached in keys for keyTTL
func NewSessionCipher(keys domain.KeyValueStore, keyTTL time.Duration) *SessionCipher {
	return &SessionCipher{
		keys:   keys,
		keyTTL: keyTTL,
		random: rand.Reader,
	}
}

// EncryptData implements domain.Encryptor
func (c *SessionCipher) EncryptData(ctx context.Context, plaintext string) (string, error) {
	rec, err := c.loadOrCreateKey(ctx)
	if err != nil {
		return "", err
	}
	aead, err := newAEAD(rec.Key)
	if err != nil {
		return "", err
	}

	payload := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	binary.BigEndian.PutUint64(payload[:epochSize], rec.Epoch)
	if _, err := io.ReadFull(c.random, payload[epochSize:headerSize]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	payload = aead.Seal(payload, payload[epochSize:headerSize], []byte(plaintext), payload[:epochSize])
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptData implements domain.Encryptor
func (c *SessionCipher) DecryptData(ctx context.Context, ciphertext string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode payload: %v", domain.ErrDecryption, err)
	}
	if len(payload) < headerSize {
		return "", fmt.Errorf("%w: payload is too short", domain.ErrDecryption)
	}

	rec, err := c.loadKey(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %w", domain.ErrDecryption, domain.ErrKeyRotated)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	epoch := binary.BigEndian.Uint64(payload[:epochSize])
	if epoch != rec.Epoch {
		return "", fmt.Errorf("%w: %w (sealed under epoch %d, current %d)", domain.ErrDecryption, domain.ErrKeyRotated, epoch, rec.Epoch)
	}

	aead, err := newAEAD(rec.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	plaintext, err := aead.Open(nil, payload[epochSize:headerSize], payload[headerSize:], payload[:epochSize])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

// ClearEncryptionKey implements domain.Encryptor.
// Everything sealed before the call becomes unreadable.
func (c *SessionCipher) ClearEncryptionKey(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, err := c.readRecord(ctx); err == nil && rec.Epoch > c.epoch {
		c.epoch = rec.Epoch
	}
	if err := c.keys.Delete(ctx, EncryptionKeyName); err != nil {
		return fmt.Errorf("delete encryption key: %w", err)
	}
	return nil
}

// KeyEpoch implements domain.Encryptor. It is the epoch of the most recent
// key, zero before the first one.
func (c *SessionCipher) KeyEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *SessionCipher) loadKey(ctx context.Context) (*keyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readRecord(ctx)
}

// loadOrCreateKey serialises creation so concurrent first encrypts share one key
func (c *SessionCipher) loadOrCreateKey(ctx context.Context) (*keyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.readRecord(ctx)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return nil, err
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(c.random, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	// Every new key starts a new epoch, whether the old one was cleared or expired
	c.epoch++
	rec = &keyRecord{Epoch: c.epoch, Key: key}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := c.keys.Set(ctx, EncryptionKeyName, string(data), c.keyTTL); err != nil {
		return nil, fmt.Errorf("store encryption key: %w", err)
	}
	return rec, nil
}

// readRecord must be called with c.mu held
func (c *SessionCipher) readRecord(ctx context.Context) (*keyRecord, error) {
	raw, err := c.keys.Get(ctx, EncryptionKeyName)
	if err != nil {
		return nil, err
	}
	var rec keyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || len(rec.Key) != keySize {
		// A corrupt record is as good as no key
		return nil, domain.ErrKeyNotFound
	}
	if rec.Epoch > c.epoch {
		c.epoch = rec.Epoch
	}
	return &rec, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

var _ domain.Encryptor = (*SessionCipher)(nil)
