package memory

import (
	"context"
	"sync"
	"time"

	"quiz-gateway/internal/domain"
)

// KVStore is an in-memory implementation of app.KVStore with per-key expiry.
type KVStore struct {
	clock   func() time.Time
	mu      sync.RWMutex
	entries map[string]kvEntry
}

type kvEntry struct {
	value     string
	expiresAt time.Time
}

func NewKVStore() *KVStore {
	return &KVStore{
		clock:   time.Now,
		entries: make(map[string]kvEntry),
	}
}

func (s *KVStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", domain.ErrKeyNotFound
	}
	return entry.value, nil
}

// Set stores value; a non-positive ttl never expires.
func (s *KVStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := kvEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
