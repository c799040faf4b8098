package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"verity/internal/device"
	"verity/internal/identity"
	"verity/internal/platform/metrics"
	"verity/internal/security/models"
	vmodels "verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"
	"verity/pkg/requesttime"
)

// EventStore is the append-only audit log collaborator.
type EventStore interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	CountByKindSince(ctx context.Context, ident identity.Identifier, kind models.EventKind, since time.Time) (int, error)
	ListByIdentifier(ctx context.Context, ident identity.Identifier, kind *models.EventKind, limit int) ([]*models.SecurityEvent, error)
	ListByKind(ctx context.Context, kind models.EventKind, limit int) ([]*models.SecurityEvent, error)
	CountsByKind(ctx context.Context, ident identity.Identifier) (map[models.EventKind]int, error)
}

// LockoutStore holds the single lock row per identifier key.
type LockoutStore interface {
	Get(ctx context.Context, key string) (*models.AccountLockout, error)
	Upsert(ctx context.Context, record *models.AccountLockout) error
	ListUnresolvedExpired(ctx context.Context, now time.Time) ([]*models.AccountLockout, error)
}

// Config holds the failure-volume lockout parameters.
type Config struct {
	FailureThreshold int           // failures within the window that trigger a lock
	FailureWindow    time.Duration // trailing window for failure counting
	LockDuration     time.Duration // how long a triggered lock holds
}

// DefaultConfig returns the production lockout parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 10,
		FailureWindow:    time.Hour,
		LockDuration:     time.Hour,
	}
}

// Service is the security monitor: it records every security-relevant event,
// counts recent failures, and locks/unlocks accounts on failure volume.
type Service struct {
	events   EventStore
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

func New(events EventStore, lockouts LockoutStore, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if lockouts == nil {
		return nil, fmt.Errorf("lockout store is required")
	}

	svc := &Service{
		events:   events,
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

// LogEvent appends one audit entry. Missing ID, timestamp, origin, client
// descriptor, and metadata are filled in; metadata is never nil.
func (s *Service) LogEvent(ctx context.Context, event *models.SecurityEvent) error {
	if event == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "event is required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requesttime.Now(ctx)
	}
	if event.Origin == "" {
		event.Origin = requestcontext.ClientIP(ctx)
	}
	if event.ClientInfo == "" {
		event.ClientInfo = device.Describe(requestcontext.UserAgent(ctx))
	}
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}

	if err := s.events.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append security event")
	}

	s.logAudit(ctx, string(event.Kind),
		"email", event.Email,
		"user_id", event.UserID,
		"origin", event.Origin,
	)
	return nil
}

// IsLocked reports whether the identifier is currently locked. A lockout
// whose expiry has passed is resolved to unlocked here, as a side effect, if
// no sweep got to it first.
func (s *Service) IsLocked(ctx context.Context, ident identity.Identifier) (bool, error) {
	record, err := s.lockouts.Get(ctx, ident.String())
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get lockout record")
	}
	if record == nil {
		return false, nil
	}

	now := requesttime.Now(ctx)
	if record.ResolveIfExpired(now) {
		// Self-healing lazy unlock. Persisting is best-effort: the sweep
		// applies the same rule in bulk if this write is lost.
		if err := s.lockouts.Upsert(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to persist lazy unlock",
				"identifier", ident.String(),
				"error", err,
			)
		} else if s.metrics != nil {
			s.metrics.LockoutsResolved.Inc()
		}
		return false, nil
	}

	return !record.Unlocked, nil
}

// GetFailureCount counts verification failures for the identifier within the
// trailing window.
func (s *Service) GetFailureCount(ctx context.Context, ident identity.Identifier, window time.Duration) (int, error) {
	since := requesttime.Now(ctx).Add(-window)
	count, err := s.events.CountByKindSince(ctx, ident, models.EventVerificationFailed, since)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count verification failures")
	}
	return count, nil
}

// LockAccount upserts a lockout for the identifier and logs a locked event.
// No-op when an unresolved lockout already exists.
func (s *Service) LockAccount(ctx context.Context, ident identity.Identifier, reason string) error {
	key := ident.String()
	record, err := s.lockouts.Get(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to get lockout record")
	}

	now := requesttime.Now(ctx)
	if record != nil {
		record.ResolveIfExpired(now)
		if !record.Unlocked {
			return nil
		}
	}

	lock := &models.AccountLockout{
		Identifier: key,
		Reason:     reason,
		LockedAt:   now,
		ExpiresAt:  now.Add(s.config.LockDuration),
	}
	if err := s.lockouts.Upsert(ctx, lock); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert lockout record")
	}

	if s.metrics != nil {
		s.metrics.LockoutsTriggered.Inc()
	}
	s.logAudit(ctx, "account_lockout_triggered",
		"identifier", key,
		"reason", reason,
		"locked_until", lock.ExpiresAt,
	)

	return s.LogEvent(ctx, s.eventFor(ident, models.EventAccountLocked, map[string]string{"reason": reason}))
}

// UnlockAccount resolves an existing lockout and logs an unlocked event.
// No-op when no lockout exists or it is already resolved.
func (s *Service) UnlockAccount(ctx context.Context, ident identity.Identifier) error {
	key := ident.String()
	record, err := s.lockouts.Get(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to get lockout record")
	}
	if record == nil || record.Unlocked {
		return nil
	}

	now := requesttime.Now(ctx)
	record.Unlocked = true
	record.UnlockedAt = &now
	if err := s.lockouts.Upsert(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert lockout record")
	}

	if s.metrics != nil {
		s.metrics.LockoutsResolved.Inc()
	}
	s.logAudit(ctx, "account_lockout_cleared", "identifier", key)

	return s.LogEvent(ctx, s.eventFor(ident, models.EventAccountUnlocked, nil))
}

// RecordVerificationAttempt logs the outcome of a code submission and, on
// failure, locks the account once the trailing failure count reaches the
// threshold. The triggering attempt is logged first so it counts toward the
// threshold.
func (s *Service) RecordVerificationAttempt(ctx context.Context, ident identity.Identifier, op vmodels.OperationType, success bool, origin string) error {
	kind := models.EventVerificationFailed
	if success {
		kind = models.EventVerificationSuccess
	}

	event := s.eventFor(ident, kind, map[string]string{"operation": op.String()})
	event.Origin = origin
	if err := s.LogEvent(ctx, event); err != nil {
		return err
	}

	if success {
		return nil
	}

	count, err := s.GetFailureCount(ctx, ident, s.config.FailureWindow)
	if err != nil {
		return err
	}
	if count >= s.config.FailureThreshold {
		return s.LockAccount(ctx, ident, "too many failed verification attempts")
	}
	return nil
}

// eventFor builds an event skeleton with the identifier mapped onto the
// right field for its kind.
func (s *Service) eventFor(ident identity.Identifier, kind models.EventKind, metadata map[string]string) *models.SecurityEvent {
	event := &models.SecurityEvent{Kind: kind, Metadata: metadata}
	if ident.IsEmail() {
		event.Email = ident.Value()
	} else if userID, ok := ident.UserID(); ok {
		id := userID
		event.UserID = &id
	}
	return event
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
