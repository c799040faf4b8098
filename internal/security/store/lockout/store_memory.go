package lockout

import (
	"context"
	"sync"
	"time"

	"verity/internal/security/models"
)

// InMemoryStore keeps lockout rows in memory for tests and development.
// At most one row exists per identifier key.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.AccountLockout
}

// New constructs an empty in-memory lockout store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.AccountLockout)}
}

// Get returns the row for the key, or nil when none exists.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.AccountLockout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, exists := s.records[key]; exists {
		cp := *record
		return &cp, nil
	}
	return nil, nil
}

// Upsert creates or replaces the single row for the key.
func (s *InMemoryStore) Upsert(_ context.Context, record *models.AccountLockout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.Identifier] = &cp
	return nil
}

// ListUnresolvedExpired returns rows still marked locked whose expiry has
// passed, for the bulk sweep.
func (s *InMemoryStore) ListUnresolvedExpired(_ context.Context, now time.Time) ([]*models.AccountLockout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccountLockout
	for _, record := range s.records {
		if !record.Unlocked && !now.Before(record.ExpiresAt) {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}
