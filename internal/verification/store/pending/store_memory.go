package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"verity/internal/sentinel"
	"verity/internal/verification/models"
)

// InMemoryStore keeps pending registrations in memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	pending map[uuid.UUID]*models.PendingRegistration
}

// New constructs an empty in-memory pending-registration store.
func New() *InMemoryStore {
	return &InMemoryStore{pending: make(map[uuid.UUID]*models.PendingRegistration)}
}

// Save upserts by email: a repeated registration start replaces the earlier
// staging record rather than accumulating duplicates.
func (s *InMemoryStore) Save(_ context.Context, reg *models.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.pending {
		if existing.Email == reg.Email && id != reg.ID {
			delete(s.pending, id)
		}
	}
	cp := *reg
	s.pending[reg.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.PendingRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, reg := range s.pending {
		if reg.Email == email {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
	}
	delete(s.pending, id)
	return nil
}

// DeleteExpired purges staging records whose expiry has passed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, reg := range s.pending {
		if now.After(reg.ExpiresAt) {
			delete(s.pending, id)
			n++
		}
	}
	return n, nil
}
