// Package tokenstore provides TTL-bounded one-shot token storage. The
// in-memory store backs development and tests; Redis backs distributed
// deployments.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"shopcore/pkg/sentinel"
)

// InMemory keeps token keys with their expiry instant. Expired keys are
// dropped lazily on access.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	// now is swappable for expiry tests.
	now func() time.Time
}

// NewInMemory creates an empty in-memory token store.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the store's clock. Test hook.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

func (s *InMemory) Put(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.now().Add(ttl)
	return nil
}

func (s *InMemory) Consume(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, key)
	if s.now().After(expiry) {
		return sentinel.ErrNotFound
	}
	return nil
}
