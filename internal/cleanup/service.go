// Package cleanup holds the three idempotent sweeps that reconcile stale
// state: old verification codes, expired lockouts, and expired pending
// registrations. Each is independently schedulable; the core does not
// self-schedule. A sweep never aborts the run on a storage error — errors
// are logged and that cycle simply does nothing.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"verity/internal/platform/metrics"
	"verity/internal/security/models"
	"verity/pkg/requesttime"
)

// CodeStore is the retention surface of the verification code store.
type CodeStore interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingStore is the retention surface of the pending registration store.
type PendingStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LockoutStore exposes unresolved expired lockouts for bulk resolution.
type LockoutStore interface {
	ListUnresolvedExpired(ctx context.Context, now time.Time) ([]*models.AccountLockout, error)
	Upsert(ctx context.Context, record *models.AccountLockout) error
}

// Config holds the sweep parameters.
type Config struct {
	// CodeRetention is how long code rows are kept after creation. This is
	// an audit-retention cutoff, a superset of the 15-minute expiry rule.
	CodeRetention time.Duration
}

// DefaultConfig returns the production sweep parameters.
func DefaultConfig() Config {
	return Config{
		CodeRetention: 24 * time.Hour,
	}
}

// Service runs the sweeps. Sweeps only ever narrow state, so they can run
// concurrently with request-triggered operations without invalidating an
// in-flight legitimate verification.
type Service struct {
	codes    CodeStore
	pending  PendingStore
	lockouts LockoutStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(codes CodeStore, pending PendingStore, lockouts LockoutStore, opts ...Option) (*Service, error) {
	if codes == nil || pending == nil || lockouts == nil {
		return nil, fmt.Errorf("code, pending, and lockout stores are required")
	}

	svc := &Service{
		codes:    codes,
		pending:  pending,
		lockouts: lockouts,
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// PurgeOldCodes removes verification codes created before the retention
// cutoff, regardless of status. Returns the number of rows removed.
func (s *Service) PurgeOldCodes(ctx context.Context) int64 {
	cutoff := requesttime.Now(ctx).Add(-s.config.CodeRetention)
	n, err := s.codes.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "code retention sweep failed", "error", err)
		return 0
	}
	s.logSweep(ctx, "code_retention", n)
	return n
}

// ResolveExpiredLockouts marks unresolved lockouts whose expiry has passed
// as unlocked, applying the same resolution rule as the lazy check.
func (s *Service) ResolveExpiredLockouts(ctx context.Context) int64 {
	now := requesttime.Now(ctx)
	records, err := s.lockouts.ListUnresolvedExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "lockout sweep failed", "error", err)
		return 0
	}

	var n int64
	for _, record := range records {
		if !record.ResolveIfExpired(now) {
			continue
		}
		if err := s.lockouts.Upsert(ctx, record); err != nil {
			s.logger.ErrorContext(ctx, "lockout sweep could not resolve record",
				"identifier", record.Identifier,
				"error", err,
			)
			continue
		}
		n++
	}
	if s.metrics != nil && n > 0 {
		s.metrics.LockoutsResolved.Add(float64(n))
	}
	s.logSweep(ctx, "lockout_resolution", n)
	return n
}

// PurgeExpiredRegistrations removes pending registrations whose 24-hour
// expiry has passed.
func (s *Service) PurgeExpiredRegistrations(ctx context.Context) int64 {
	n, err := s.pending.DeleteExpired(ctx, requesttime.Now(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "pending registration sweep failed", "error", err)
		return 0
	}
	s.logSweep(ctx, "pending_registrations", n)
	return n
}

func (s *Service) logSweep(ctx context.Context, sweep string, affected int64) {
	if s.metrics != nil && affected > 0 {
		s.metrics.SweepRowsPurged.WithLabelValues(sweep).Add(float64(affected))
	}
	s.logger.InfoContext(ctx, "sweep completed",
		"sweep", sweep,
		"affected", affected,
		"event", "cleanup_sweep",
		"log_type", "audit",
	)
}
