package audit

import (
	"context"
	"sync"
)

// InMemoryStore is an append-only in-memory audit sink.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemoryStore creates an empty audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByAccount(ctx context.Context, accountID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0)
	for _, e := range s.events {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}
