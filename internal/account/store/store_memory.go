package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"verity/internal/account/models"
	"verity/internal/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore stores accounts in memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*models.Account
}

// New constructs an empty in-memory account store.
func New() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (s *InMemoryStore) Save(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == account.Email && existing.ID != account.ID {
			return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
		}
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, accountID uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if account, ok := s.accounts[accountID]; ok {
		cp := *account
		return &cp, nil
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.Email == email {
			cp := *account
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

// UpdateEmail sets a new verified email address on the account.
func (s *InMemoryStore) UpdateEmail(_ context.Context, accountID uuid.UUID, email string, now time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	account.Email = email
	account.EmailVerified = true
	account.UpdatedAt = now
	cp := *account
	return &cp, nil
}

// UpdatePhone sets a new verified phone number on the account.
func (s *InMemoryStore) UpdatePhone(_ context.Context, accountID uuid.UUID, phone string, now time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	account.Phone = phone
	account.PhoneVerified = true
	account.UpdatedAt = now
	cp := *account
	return &cp, nil
}
