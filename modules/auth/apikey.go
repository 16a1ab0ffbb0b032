package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"
)

// APIKey describes a key accepted by the middleware.
type APIKey struct {
	ID        string
	Subject   string
	Roles     []string
	ExpiresAt time.Time
}

// APIKeyStore resolves presented keys.
type APIKeyStore interface {
	Lookup(ctx context.Context, key string) (*APIKey, error)
}

// MemoryAPIKeyStore keeps SHA-256 digests of keys in memory.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]APIKey
}

// NewMemoryAPIKeyStore creates an empty store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[[sha256.Size]byte]APIKey)}
}

// Add stores info under key.
func (s *MemoryAPIKeyStore) Add(key string, info APIKey) error {
	digest := sha256.Sum256([]byte(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[digest]; ok {
		return ErrAPIKeyExists
	}
	s.keys[digest] = info
	return nil
}

// Revoke removes every key with the given ID.
func (s *MemoryAPIKeyStore) Revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for digest, info := range s.keys {
		if info.ID == id {
			delete(s.keys, digest)
		}
	}
}

// Lookup implements APIKeyStore.
func (s *MemoryAPIKeyStore) Lookup(_ context.Context, key string) (*APIKey, error) {
	digest := sha256.Sum256([]byte(key))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for stored, info := range s.keys {
		if subtle.ConstantTimeCompare(stored[:], digest[:]) == 1 {
			return &info, nil
		}
	}
	return nil, ErrAPIKeyInvalid
}
