// Package keys holds key-store backends. Keys are persisted wrapped
// only; nothing in this package ever sees plaintext key material.
package keys

import (
	"context"
	"fmt"
	"sync"

	"custodia/internal/domain"
)

// MemoryStore is a mutex-guarded in-process key store. It backs tests
// and single-node deployments; the db package provides the durable one.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]domain.WrappedKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]domain.WrappedKey)}
}

func (s *MemoryStore) Save(_ context.Context, key domain.WrappedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.KeyID]; exists {
		return fmt.Errorf("key %s already exists", key.KeyID)
	}
	s.keys[key.KeyID] = cloneKey(key)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, keyID string) (domain.WrappedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyID]
	if !ok {
		return domain.WrappedKey{}, fmt.Errorf("key %s: %w", keyID, domain.ErrKeyUnknown)
	}
	return cloneKey(key), nil
}

func (s *MemoryStore) Update(_ context.Context, key domain.WrappedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.KeyID]; !ok {
		return fmt.Errorf("key %s: %w", key.KeyID, domain.ErrKeyUnknown)
	}
	s.keys[key.KeyID] = cloneKey(key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.WrappedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WrappedKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, cloneKey(key))
	}
	return out, nil
}

func cloneKey(key domain.WrappedKey) domain.WrappedKey {
	wrapped := make([]byte, len(key.Wrapped))
	copy(wrapped, key.Wrapped)
	key.Wrapped = wrapped
	return key
}
