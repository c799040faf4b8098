package code

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verity/internal/identity"
	"verity/internal/sentinel"
	"verity/internal/verification/models"
)

// InMemoryStore keeps verification codes in memory for tests and development.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes []*models.VerificationCode
}

// New constructs an empty in-memory code store.
func New() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(_ context.Context, code *models.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes = append(s.codes, &cp)
	return nil
}

// FindActive returns the most recently created code for the identifier and
// operation that is neither verified nor invalidated. Expiry is the
// service's concern; expired rows are still returned.
func (s *InMemoryStore) FindActive(_ context.Context, ident identity.Identifier, op models.OperationType) (*models.VerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.VerificationCode
	for _, c := range s.codes {
		if !matches(c, ident, op) || c.Verified || c.Invalidated {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("active code not found: %w", sentinel.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, code *models.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.codes {
		if c.ID == code.ID {
			cp := *code
			s.codes[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("code not found: %w", sentinel.ErrNotFound)
}

// InvalidateActive marks every non-verified, non-invalidated code for the
// pair as invalidated. Returns the number of rows touched.
func (s *InMemoryStore) InvalidateActive(_ context.Context, ident identity.Identifier, op models.OperationType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.codes {
		if matches(c, ident, op) && !c.Verified && !c.Invalidated {
			c.Invalidated = true
			n++
		}
	}
	return n, nil
}

// DeleteCreatedBefore removes codes older than the cutoff regardless of
// status. This is the audit-retention sweep, a superset of expiry.
func (s *InMemoryStore) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.codes[:0]
	var n int64
	for _, c := range s.codes {
		if c.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.codes = kept
	return n, nil
}

func matches(c *models.VerificationCode, ident identity.Identifier, op models.OperationType) bool {
	if c.Operation != op {
		return false
	}
	if ident.IsEmail() {
		return c.Email == ident.Value()
	}
	userID, ok := ident.UserID()
	return ok && c.UserID != nil && *c.UserID == userID
}
