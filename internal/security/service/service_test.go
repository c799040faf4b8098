package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verity/internal/identity"
	"verity/internal/security/models"
	eventstore "verity/internal/security/store/event"
	lockoutstore "verity/internal/security/store/lockout"
	vmodels "verity/internal/verification/models"
	"verity/pkg/requestcontext"
	"verity/pkg/requesttime"
)

type ServiceSuite struct {
	suite.Suite
	events   *eventstore.InMemoryStore
	lockouts *lockoutstore.InMemoryStore
	svc      *Service
	now      time.Time
	ctx      context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.events = eventstore.New()
	s.lockouts = lockoutstore.New()
	svc, err := New(s.events, s.lockouts)
	s.Require().NoError(err)
	s.svc = svc
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) at(t time.Time) context.Context {
	return requesttime.WithTime(context.Background(), t)
}

func (s *ServiceSuite) TestLogEventFillsDefaults() {
	ctx := requestcontext.WithClientMetadata(s.ctx, "203.0.113.9", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	event := &models.SecurityEvent{Email: "user@example.com", Kind: models.EventCodeSent}
	s.Require().NoError(s.svc.LogEvent(ctx, event))

	stored, err := s.events.ListByIdentifier(ctx, identity.ByEmail("user@example.com"), nil, 10)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)

	got := stored[0]
	s.NotEqual(uuid.Nil, got.ID)
	s.Equal(s.now, got.CreatedAt)
	s.Equal("203.0.113.9", got.Origin)
	s.NotEmpty(got.ClientInfo)
	s.NotNil(got.Metadata)
}

func (s *ServiceSuite) TestLogEventRejectsNil() {
	s.Error(s.svc.LogEvent(s.ctx, nil))
}

func (s *ServiceSuite) TestLockTriggersAtThresholdNotBefore() {
	ident := identity.ByEmail("user@example.com")

	for i := 0; i < 9; i++ {
		s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, false, "1.2.3.4"))
	}
	locked, err := s.svc.IsLocked(s.ctx, ident)
	s.Require().NoError(err)
	s.False(locked, "nine failures must not lock")

	// The tenth failure counts itself and trips the lock.
	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, false, "1.2.3.4"))
	locked, err = s.svc.IsLocked(s.ctx, ident)
	s.Require().NoError(err)
	s.True(locked)

	lockedEvents, err := s.events.ListByIdentifier(s.ctx, ident, kindPtr(models.EventAccountLocked), 10)
	s.Require().NoError(err)
	s.Len(lockedEvents, 1)
}

func (s *ServiceSuite) TestOldFailuresAgeOut() {
	ident := identity.ByEmail("user@example.com")

	for i := 0; i < 9; i++ {
		s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, false, ""))
	}

	// Over an hour later the earlier failures are outside the window.
	later := s.at(s.now.Add(2 * time.Hour))
	s.Require().NoError(s.svc.RecordVerificationAttempt(later, ident, vmodels.OpRegistration, false, ""))

	locked, err := s.svc.IsLocked(later, ident)
	s.Require().NoError(err)
	s.False(locked)
}

func (s *ServiceSuite) TestSuccessNeverLocks() {
	ident := identity.ByEmail("user@example.com")

	for i := 0; i < 20; i++ {
		s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, true, ""))
	}

	locked, err := s.svc.IsLocked(s.ctx, ident)
	s.Require().NoError(err)
	s.False(locked)
}

func (s *ServiceSuite) TestLazyUnlockPersists() {
	ident := identity.ByUserID(uuid.New())
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "manual"))

	// At expiry the lock resolves on read.
	atExpiry := s.at(s.now.Add(time.Hour))
	locked, err := s.svc.IsLocked(atExpiry, ident)
	s.Require().NoError(err)
	s.False(locked)

	record, err := s.lockouts.Get(context.Background(), ident.String())
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.True(record.Unlocked)
	s.Require().NotNil(record.UnlockedAt)
	s.Equal(s.now.Add(time.Hour), *record.UnlockedAt)
}

func (s *ServiceSuite) TestLockWhileActiveIsNoOp() {
	ident := identity.ByEmail("user@example.com")
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "first"))
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "second"))

	record, err := s.lockouts.Get(context.Background(), ident.String())
	s.Require().NoError(err)
	s.Equal("first", record.Reason)
}

func (s *ServiceSuite) TestRelockAfterExpiry() {
	ident := identity.ByEmail("user@example.com")
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "first"))

	later := s.at(s.now.Add(2 * time.Hour))
	s.Require().NoError(s.svc.LockAccount(later, ident, "second"))

	record, err := s.lockouts.Get(context.Background(), ident.String())
	s.Require().NoError(err)
	s.Equal("second", record.Reason)
	s.False(record.Unlocked)
}

func (s *ServiceSuite) TestUnlockAccount() {
	ident := identity.ByEmail("user@example.com")
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "abuse"))
	s.Require().NoError(s.svc.UnlockAccount(s.ctx, ident))

	locked, err := s.svc.IsLocked(s.ctx, ident)
	s.Require().NoError(err)
	s.False(locked)

	events, err := s.events.ListByIdentifier(s.ctx, ident, kindPtr(models.EventAccountUnlocked), 10)
	s.Require().NoError(err)
	s.Len(events, 1)

	// Unlocking again is a no-op and does not duplicate the event.
	s.Require().NoError(s.svc.UnlockAccount(s.ctx, ident))
	events, err = s.events.ListByIdentifier(s.ctx, ident, kindPtr(models.EventAccountUnlocked), 10)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *ServiceSuite) TestUnlockWithoutLockIsNoOp() {
	s.NoError(s.svc.UnlockAccount(s.ctx, identity.ByEmail("nobody@example.com")))
}

func (s *ServiceSuite) TestGetFailureCount() {
	ident := identity.ByEmail("user@example.com")

	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, false, ""))
	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpEmailChange, false, ""))
	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, true, ""))

	count, err := s.svc.GetFailureCount(s.ctx, ident, time.Hour)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *ServiceSuite) TestQueriesFailClosed() {
	svc, err := New(&failingEventStore{}, s.lockouts)
	s.Require().NoError(err)

	ident := identity.ByEmail("user@example.com")
	s.Empty(svc.EventsByIdentifier(s.ctx, ident, nil, 10))
	s.Empty(svc.EventsByKind(s.ctx, models.EventCodeSent, 10))
	s.Empty(svc.RecentFailures(s.ctx, 10))

	stats := svc.Stats(s.ctx, ident)
	s.Require().NotNil(stats)
	s.Empty(stats.TotalsByKind)
}

func (s *ServiceSuite) TestStats() {
	ident := identity.ByEmail("user@example.com")
	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, false, ""))
	s.Require().NoError(s.svc.RecordVerificationAttempt(s.ctx, ident, vmodels.OpRegistration, true, ""))
	s.Require().NoError(s.svc.LockAccount(s.ctx, ident, "manual"))

	stats := s.svc.Stats(s.ctx, ident)
	s.Require().NotNil(stats)
	s.Equal(1, stats.TotalsByKind[models.EventVerificationFailed])
	s.Equal(1, stats.TotalsByKind[models.EventVerificationSuccess])
	s.Equal(1, stats.TotalsByKind[models.EventAccountLocked])
	s.True(stats.CurrentlyLocked)
	s.Require().NotNil(stats.LastLockedAt)
	s.Equal(s.now, *stats.LastLockedAt)
}

func kindPtr(k models.EventKind) *models.EventKind {
	return &k
}

type failingEventStore struct{}

func (f *failingEventStore) Append(context.Context, *models.SecurityEvent) error {
	return errors.New("store down")
}

func (f *failingEventStore) CountByKindSince(context.Context, identity.Identifier, models.EventKind, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func (f *failingEventStore) ListByIdentifier(context.Context, identity.Identifier, *models.EventKind, int) ([]*models.SecurityEvent, error) {
	return nil, errors.New("store down")
}

func (f *failingEventStore) ListByKind(context.Context, models.EventKind, int) ([]*models.SecurityEvent, error) {
	return nil, errors.New("store down")
}

func (f *failingEventStore) CountsByKind(context.Context, identity.Identifier) (map[models.EventKind]int, error) {
	return nil, errors.New("store down")
}
