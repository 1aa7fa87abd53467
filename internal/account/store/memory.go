package store

import (
	"context"
	"strings"
	"sync"

	"shopcore/internal/account/models"
	"shopcore/pkg/sentinel"
)

// InMemory keeps accounts in maps guarded by one mutex. The version check in
// Update gives callers the same optimistic concurrency behavior as the
// Postgres store, so service-level CAS retry loops are exercised in tests.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	byEmail  map[string]string
}

// NewInMemory creates an empty in-memory account store.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[string]models.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(account.Email)
	if _, taken := s.byEmail[key]; taken {
		return sentinel.ErrAlreadyUsed
	}

	account.Version = 1
	s.accounts[account.ID] = *account
	s.byEmail[key] = account.ID
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &account, nil
}

func (s *InMemory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	account := s.accounts[id]
	return &account, nil
}

// Update applies account if its version still matches the stored one, then
// bumps the version. A mismatch means another writer won the race.
func (s *InMemory) Update(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != account.Version {
		return sentinel.ErrConflict
	}

	account.Version++
	s.accounts[account.ID] = *account
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
