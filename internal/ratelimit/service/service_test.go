package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verity/internal/identity"
	"verity/internal/ratelimit/models"
	"verity/internal/ratelimit/store"
	"verity/pkg/requesttime"
)

type ServiceSuite struct {
	suite.Suite
	store *store.InMemoryStore
	svc   *Service
	now   time.Time
	ctx   context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.New()
	svc, err := New(s.store)
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

func (s *ServiceSuite) TestQuotaCountsDown() {
	ident := identity.ByEmail("user@example.com")

	expected := []int{4, 3, 2, 1, 0}
	for _, want := range expected {
		check := s.svc.Check(s.ctx, ident)
		s.True(check.Allowed)
		s.Equal(want, check.RemainingAttempts)
		s.svc.RecordAttempt(s.ctx, ident)
	}

	check := s.svc.Check(s.ctx, ident)
	s.False(check.Allowed)
	s.Equal(0, check.RemainingAttempts)
	s.Require().NotNil(check.ResetAt)
	s.Equal(s.now.Add(time.Hour), *check.ResetAt)
	s.Equal(60, check.WaitMinutes)
}

func (s *ServiceSuite) TestWindowResets() {
	ident := identity.ByEmail("user@example.com")

	for i := 0; i < 5; i++ {
		s.svc.RecordAttempt(s.ctx, ident)
	}
	s.False(s.svc.Check(s.ctx, ident).Allowed)

	later := s.at(s.now.Add(time.Hour + time.Minute))
	check := s.svc.Check(later, ident)
	s.True(check.Allowed)
	s.Equal(4, check.RemainingAttempts)

	// Recording after expiry starts a fresh window rather than extending
	// the stale one.
	s.svc.RecordAttempt(later, ident)
	record, err := s.store.Get(context.Background(), ident.String())
	s.Require().NoError(err)
	s.Equal(1, record.Attempts)
	s.Equal(s.now.Add(time.Hour+time.Minute), record.WindowStart)
}

func (s *ServiceSuite) TestIdentifiersAreIndependent() {
	first := identity.ByEmail("first@example.com")
	second := identity.ByEmail("second@example.com")

	for i := 0; i < 5; i++ {
		s.svc.RecordAttempt(s.ctx, first)
	}

	s.False(s.svc.Check(s.ctx, first).Allowed)
	s.True(s.svc.Check(s.ctx, second).Allowed)
}

func (s *ServiceSuite) TestWaitMinutesRoundsUp() {
	ident := identity.ByEmail("user@example.com")
	for i := 0; i < 5; i++ {
		s.svc.RecordAttempt(s.ctx, ident)
	}

	// 30m30s left in the window reports 31 minutes.
	later := s.at(s.now.Add(29*time.Minute + 30*time.Second))
	check := s.svc.Check(later, ident)
	s.False(check.Allowed)
	s.Equal(31, check.WaitMinutes)
}

func (s *ServiceSuite) TestFailsOpenOnStoreError() {
	svc, err := New(&failingStore{})
	s.Require().NoError(err)

	ident := identity.ByEmail("user@example.com")
	check := svc.Check(s.ctx, ident)
	s.True(check.Allowed)
	s.Equal(4, check.RemainingAttempts)

	// Recording swallows the failure too.
	svc.RecordAttempt(s.ctx, ident)
}

func (s *ServiceSuite) TestReset() {
	ident := identity.ByEmail("user@example.com")
	for i := 0; i < 5; i++ {
		s.svc.RecordAttempt(s.ctx, ident)
	}
	s.False(s.svc.Check(s.ctx, ident).Allowed)

	s.Require().NoError(s.svc.Reset(s.ctx, ident))

	check := s.svc.Check(s.ctx, ident)
	s.True(check.Allowed)
	s.Equal(4, check.RemainingAttempts)
}

func (s *ServiceSuite) TestRemainingWait() {
	ident := identity.ByEmail("user@example.com")

	wait, err := s.svc.RemainingWait(s.ctx, ident)
	s.Require().NoError(err)
	s.Equal(time.Duration(0), wait)

	for i := 0; i < 5; i++ {
		s.svc.RecordAttempt(s.ctx, ident)
	}

	later := s.at(s.now.Add(15 * time.Minute))
	wait, err = s.svc.RemainingWait(later, ident)
	s.Require().NoError(err)
	s.Equal(45*time.Minute, wait)
}

func (s *ServiceSuite) TestCustomConfig() {
	svc, err := New(s.store, WithConfig(Config{MaxAttempts: 2, Window: 10 * time.Minute}))
	s.Require().NoError(err)

	ident := identity.ByEmail("user@example.com")
	svc.RecordAttempt(s.ctx, ident)
	svc.RecordAttempt(s.ctx, ident)

	check := svc.Check(s.ctx, ident)
	s.False(check.Allowed)
	s.Equal(10, check.WaitMinutes)
}

type failingStore struct{}

func (f *failingStore) Get(context.Context, string) (*models.RateLimitRecord, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) Upsert(context.Context, *models.RateLimitRecord) error {
	return errors.New("store down")
}

func (f *failingStore) Delete(context.Context, string) error {
	return errors.New("store down")
}
