package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	accountmodels "verity/internal/account/models"
	"verity/internal/identity"
	"verity/internal/notify"
	"verity/internal/platform/metrics"
	"verity/internal/verification/models"
	"verity/internal/verification/tracer"
)

// CodeStore is the persistence collaborator for verification codes.
// FindActive returns sentinel.ErrNotFound (wrapped) when no active code exists.
type CodeStore interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	FindActive(ctx context.Context, ident identity.Identifier, op models.OperationType) (*models.VerificationCode, error)
	Update(ctx context.Context, code *models.VerificationCode) error
	InvalidateActive(ctx context.Context, ident identity.Identifier, op models.OperationType) (int64, error)
}

// PendingStore stages unverified registrations.
type PendingStore interface {
	Save(ctx context.Context, reg *models.PendingRegistration) error
	FindByEmail(ctx context.Context, email string) (*models.PendingRegistration, error)
}

// AccountStore reads and mutates permanent accounts.
// Find methods return sentinel.ErrNotFound (wrapped) when no account exists.
type AccountStore interface {
	FindByID(ctx context.Context, accountID uuid.UUID) (*accountmodels.Account, error)
	FindByEmail(ctx context.Context, email string) (*accountmodels.Account, error)
	UpdateEmail(ctx context.Context, accountID uuid.UUID, email string, now time.Time) (*accountmodels.Account, error)
	UpdatePhone(ctx context.Context, accountID uuid.UUID, phone string, now time.Time) (*accountmodels.Account, error)
}

// Promoter atomically turns a pending registration into a permanent account.
type Promoter interface {
	Promote(ctx context.Context, reg *models.PendingRegistration, account *accountmodels.Account) error
}

// Config holds the verification engine parameters.
type Config struct {
	CodeTTL     time.Duration // code lifetime
	MaxAttempts int           // wrong submissions tolerated per code
	PendingTTL  time.Duration // pending registration lifetime
}

// DefaultConfig returns the production verification parameters.
func DefaultConfig() Config {
	return Config{
		CodeTTL:     15 * time.Minute,
		MaxAttempts: 3,
		PendingTTL:  24 * time.Hour,
	}
}

// Service is the verification engine: it generates, stores, and validates
// codes, enforces expiry and per-code attempt limits, and applies the
// operation side effects on success.
type Service struct {
	codes    CodeStore
	pending  PendingStore
	accounts AccountStore
	promoter Promoter
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	config   Config

	// echoCodes surfaces plaintext codes in logs when delivery fails.
	// Diagnostic channel for non-production environments only.
	echoCodes bool
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithEchoCodes enables the development diagnostic channel: plaintext codes
// are logged when delivery fails. Never enable in production.
func WithEchoCodes(enabled bool) Option {
	return func(s *Service) {
		s.echoCodes = enabled
	}
}

func New(codes CodeStore, pending PendingStore, accounts AccountStore, promoter Promoter, notifier notify.Notifier, opts ...Option) (*Service, error) {
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending registration store is required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if promoter == nil {
		return nil, fmt.Errorf("promoter is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	svc := &Service{
		codes:    codes,
		pending:  pending,
		accounts: accounts,
		promoter: promoter,
		notifier: notifier,
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc, nil
}
