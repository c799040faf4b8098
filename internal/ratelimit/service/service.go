package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"verity/internal/identity"
	"verity/internal/platform/metrics"
	"verity/internal/ratelimit/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requesttime"
)

// Store holds one fixed window per identifier key. Get returns nil for a
// missing record; Delete on a missing record is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (*models.RateLimitRecord, error)
	Upsert(ctx context.Context, record *models.RateLimitRecord) error
	Delete(ctx context.Context, key string) error
}

// Config holds the fixed-window parameters.
type Config struct {
	MaxAttempts int           // codes an identifier may request per window
	Window      time.Duration // fixed window length
}

// DefaultConfig returns the production rate-limit parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      time.Hour,
	}
}

// Service decides whether a new code may be issued for an identifier.
// Rate limiting must never itself become an availability outage: storage
// errors during checks fail open, and recording is best-effort.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	config  Config
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}

	svc := &Service{
		store:  store,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// Check reports whether the identifier may request another code. A missing
// or expired window counts as full availability. Storage errors fail open.
func (s *Service) Check(ctx context.Context, ident identity.Identifier) *models.CheckResult {
	now := requesttime.Now(ctx)

	record, err := s.store.Get(ctx, ident.String())
	if err != nil {
		s.logger.WarnContext(ctx, "rate limit check failed open",
			"identifier", ident.String(),
			"error", err,
		)
		return s.fullQuota()
	}

	if record == nil || record.Expired(now) {
		return s.fullQuota()
	}

	if record.Attempts >= s.config.MaxAttempts {
		if s.metrics != nil {
			s.metrics.RateLimitRejected.Inc()
		}
		resetAt := record.ExpiresAt
		return &models.CheckResult{
			Allowed:     false,
			ResetAt:     &resetAt,
			WaitMinutes: waitMinutes(now, record.ExpiresAt),
		}
	}

	resetAt := record.ExpiresAt
	return &models.CheckResult{
		Allowed:           true,
		RemainingAttempts: s.config.MaxAttempts - record.Attempts - 1,
		ResetAt:           &resetAt,
	}
}

// RecordAttempt counts one code request against the identifier's window:
// missing record starts a window at 1, an expired window resets to 1, an
// active window increments. Errors are swallowed; recording is best-effort
// telemetry, not a blocking guarantee.
func (s *Service) RecordAttempt(ctx context.Context, ident identity.Identifier) {
	now := requesttime.Now(ctx)
	key := ident.String()

	record, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limit record skipped", "identifier", key, "error", err)
		return
	}

	if record == nil || record.Expired(now) {
		record = &models.RateLimitRecord{
			Identifier:  key,
			Attempts:    1,
			WindowStart: now,
			ExpiresAt:   now.Add(s.config.Window),
		}
	} else {
		record.Attempts++
	}

	if err := s.store.Upsert(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "rate limit record skipped", "identifier", key, "error", err)
	}
}

// RemainingWait returns how long until the identifier's window resets.
// Zero when no active window caps the identifier.
func (s *Service) RemainingWait(ctx context.Context, ident identity.Identifier) (time.Duration, error) {
	now := requesttime.Now(ctx)
	record, err := s.store.Get(ctx, ident.String())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get rate limit record")
	}
	if record == nil || record.Expired(now) || record.Attempts < s.config.MaxAttempts {
		return 0, nil
	}
	return record.ExpiresAt.Sub(now), nil
}

// Reset deletes the identifier's window outright (administrative override).
func (s *Service) Reset(ctx context.Context, ident identity.Identifier) error {
	if err := s.store.Delete(ctx, ident.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	s.logger.InfoContext(ctx, "rate limit reset",
		"identifier", ident.String(),
		"event", "rate_limit_reset",
		"log_type", "audit",
	)
	return nil
}

func (s *Service) fullQuota() *models.CheckResult {
	return &models.CheckResult{
		Allowed:           true,
		RemainingAttempts: s.config.MaxAttempts - 1,
	}
}

func waitMinutes(now, expiry time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Minutes()))
}
