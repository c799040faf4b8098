package event

import (
	"context"
	"sync"
	"time"

	"verity/internal/identity"
	"verity/internal/security/models"
)

// InMemoryStore keeps security events in memory for tests and development.
// Append order is preserved; listings return newest first.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*models.SecurityEvent
}

// New constructs an empty in-memory event store.
func New() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// CountByKindSince counts events of one kind for the identifier with
// creation time at or after the cutoff.
func (s *InMemoryStore) CountByKindSince(_ context.Context, ident identity.Identifier, kind models.EventKind, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.events {
		if e.Kind == kind && matches(e, ident) && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListByIdentifier returns events for the identifier, newest first,
// optionally filtered by kind and capped at limit (0 means no cap).
func (s *InMemoryStore) ListByIdentifier(_ context.Context, ident identity.Identifier, kind *models.EventKind, limit int) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SecurityEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !matches(e, ident) {
			continue
		}
		if kind != nil && e.Kind != *kind {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListByKind returns events of one kind across all identifiers, newest first.
func (s *InMemoryStore) ListByKind(_ context.Context, kind models.EventKind, limit int) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SecurityEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.Kind != kind {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountsByKind aggregates event totals for the identifier.
func (s *InMemoryStore) CountsByKind(_ context.Context, ident identity.Identifier) (map[models.EventKind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[models.EventKind]int)
	for _, e := range s.events {
		if matches(e, ident) {
			totals[e.Kind]++
		}
	}
	return totals, nil
}

func matches(e *models.SecurityEvent, ident identity.Identifier) bool {
	if ident.IsEmail() {
		return e.Email == ident.Value()
	}
	userID, ok := ident.UserID()
	return ok && e.UserID != nil && *e.UserID == userID
}
