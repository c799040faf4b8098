package store

import (
	"context"
	"sync"

	"verity/internal/ratelimit/models"
)

// InMemoryStore keeps rate-limit windows in memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.RateLimitRecord
}

// New constructs an empty in-memory rate-limit store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.RateLimitRecord)}
}

// Get returns the record for the key, or nil when none exists.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.RateLimitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, exists := s.records[key]; exists {
		cp := *record
		return &cp, nil
	}
	return nil, nil
}

// Upsert creates or replaces the single record for the key.
func (s *InMemoryStore) Upsert(_ context.Context, record *models.RateLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.Identifier] = &cp
	return nil
}

// Delete removes the record outright. Deleting a missing record is a no-op.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
