package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verity/internal/identity"
	smodels "verity/internal/security/models"
	lockoutstore "verity/internal/security/store/lockout"
	vmodels "verity/internal/verification/models"
	codestore "verity/internal/verification/store/code"
	pendingstore "verity/internal/verification/store/pending"
	"verity/pkg/requesttime"
)

type ServiceSuite struct {
	suite.Suite
	codes    *codestore.InMemoryStore
	pending  *pendingstore.InMemoryStore
	lockouts *lockoutstore.InMemoryStore
	svc      *Service
	now      time.Time
	ctx      context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.codes = codestore.New()
	s.pending = pendingstore.New()
	s.lockouts = lockoutstore.New()

	svc, err := New(s.codes, s.pending, s.lockouts)
	s.Require().NoError(err)
	s.svc = svc

	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seedCode(email string, createdAt time.Time) {
	s.Require().NoError(s.codes.Create(context.Background(), &vmodels.VerificationCode{
		ID:          uuid.New(),
		Email:       email,
		CodeHash:    "hash",
		Operation:   vmodels.OpRegistration,
		MaxAttempts: 3,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(15 * time.Minute),
	}))
}

func (s *ServiceSuite) TestPurgeOldCodes() {
	s.seedCode("old@example.com", s.now.Add(-25*time.Hour))
	s.seedCode("fresh@example.com", s.now.Add(-23*time.Hour))

	s.Equal(int64(1), s.svc.PurgeOldCodes(s.ctx))

	_, err := s.codes.FindActive(context.Background(), identity.ByEmail("old@example.com"), vmodels.OpRegistration)
	s.Error(err)
	_, err = s.codes.FindActive(context.Background(), identity.ByEmail("fresh@example.com"), vmodels.OpRegistration)
	s.NoError(err)
}

func (s *ServiceSuite) TestResolveExpiredLockouts() {
	expired := &smodels.AccountLockout{
		Identifier: "email:stale@example.com",
		Reason:     "too many failed verification attempts",
		LockedAt:   s.now.Add(-2 * time.Hour),
		ExpiresAt:  s.now.Add(-time.Hour),
	}
	active := &smodels.AccountLockout{
		Identifier: "email:active@example.com",
		Reason:     "too many failed verification attempts",
		LockedAt:   s.now,
		ExpiresAt:  s.now.Add(time.Hour),
	}
	s.Require().NoError(s.lockouts.Upsert(context.Background(), expired))
	s.Require().NoError(s.lockouts.Upsert(context.Background(), active))

	s.Equal(int64(1), s.svc.ResolveExpiredLockouts(s.ctx))

	record, err := s.lockouts.Get(context.Background(), "email:stale@example.com")
	s.Require().NoError(err)
	s.True(record.Unlocked)
	s.Require().NotNil(record.UnlockedAt)
	s.Equal(s.now, *record.UnlockedAt)

	record, err = s.lockouts.Get(context.Background(), "email:active@example.com")
	s.Require().NoError(err)
	s.False(record.Unlocked)
}

func (s *ServiceSuite) TestResolveIsIdempotent() {
	s.Require().NoError(s.lockouts.Upsert(context.Background(), &smodels.AccountLockout{
		Identifier: "email:stale@example.com",
		LockedAt:   s.now.Add(-2 * time.Hour),
		ExpiresAt:  s.now.Add(-time.Hour),
	}))

	s.Equal(int64(1), s.svc.ResolveExpiredLockouts(s.ctx))
	s.Equal(int64(0), s.svc.ResolveExpiredLockouts(s.ctx))
}

func (s *ServiceSuite) TestPurgeExpiredRegistrations() {
	s.Require().NoError(s.pending.Save(context.Background(), &vmodels.PendingRegistration{
		ID:        uuid.New(),
		Email:     "stale@example.com",
		CreatedAt: s.now.Add(-25 * time.Hour),
		ExpiresAt: s.now.Add(-time.Hour),
	}))
	s.Require().NoError(s.pending.Save(context.Background(), &vmodels.PendingRegistration{
		ID:        uuid.New(),
		Email:     "fresh@example.com",
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(24 * time.Hour),
	}))

	s.Equal(int64(1), s.svc.PurgeExpiredRegistrations(s.ctx))

	_, err := s.pending.FindByEmail(context.Background(), "stale@example.com")
	s.Error(err)
	_, err = s.pending.FindByEmail(context.Background(), "fresh@example.com")
	s.NoError(err)
}

func (s *ServiceSuite) TestSweepsSwallowStoreErrors() {
	svc, err := New(&failingCodeStore{}, &failingPendingStore{}, &failingLockoutStore{})
	s.Require().NoError(err)

	s.Equal(int64(0), svc.PurgeOldCodes(s.ctx))
	s.Equal(int64(0), svc.ResolveExpiredLockouts(s.ctx))
	s.Equal(int64(0), svc.PurgeExpiredRegistrations(s.ctx))
}

type failingCodeStore struct{}

func (f *failingCodeStore) DeleteCreatedBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

type failingPendingStore struct{}

func (f *failingPendingStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("store down")
}

type failingLockoutStore struct{}

func (f *failingLockoutStore) ListUnresolvedExpired(context.Context, time.Time) ([]*smodels.AccountLockout, error) {
	return nil, errors.New("store down")
}

func (f *failingLockoutStore) Upsert(context.Context, *smodels.AccountLockout) error {
	return errors.New("store down")
}
