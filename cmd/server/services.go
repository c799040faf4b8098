package main

import (
	"log/slog"

	"verity/internal/account/store"
	"verity/internal/notify"
	"verity/internal/platform/config"
	"verity/internal/platform/database"
	"verity/internal/platform/metrics"
	ratelimitservice "verity/internal/ratelimit/service"
	ratelimitstore "verity/internal/ratelimit/store"
	securityservice "verity/internal/security/service"
	eventstore "verity/internal/security/store/event"
	lockoutstore "verity/internal/security/store/lockout"
	"verity/internal/verification/service"
	codestore "verity/internal/verification/store/code"
	pendingstore "verity/internal/verification/store/pending"
	"verity/internal/verification/store/registration"
	"verity/internal/verification/tracer"
)

// services bundles the wired domain services handed to the transport layer.
type services struct {
	verification *service.Service
	ratelimit    *ratelimitservice.Service
	security     *securityservice.Service
}

// buildServices assembles the store and service graph. With a database pool
// all state lives in Postgres; without one the process runs fully in memory,
// which is the development and test mode.
func buildServices(cfg config.Server, pool *database.Pool, m *metrics.Metrics, log *slog.Logger) (*services, error) {
	var (
		codes    service.CodeStore
		pending  service.PendingStore
		accounts service.AccountStore
		promoter service.Promoter

		events   securityservice.EventStore
		lockouts securityservice.LockoutStore
		limits   ratelimitservice.Store
	)

	if pool != nil {
		db := pool.DB()
		codes = codestore.NewPostgres(db)
		pending = pendingstore.NewPostgres(db)
		accounts = store.NewPostgres(db)
		promoter = registration.NewPostgres(db)
		events = eventstore.NewPostgres(db)
		lockouts = lockoutstore.NewPostgres(db)
		limits = ratelimitstore.NewPostgres(db)
	} else {
		accountMem := store.New()
		pendingMem := pendingstore.New()
		codes = codestore.New()
		pending = pendingMem
		accounts = accountMem
		promoter = registration.NewMemory(accountMem, pendingMem)
		events = eventstore.New()
		lockouts = lockoutstore.New()
		limits = ratelimitstore.New()
	}

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		log.Warn("no SMTP host configured, using in-memory notifier")
		notifier = notify.NewMemory()
	}

	verification, err := service.New(codes, pending, accounts, promoter, notifier,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(tracer.NewOTel()),
		service.WithEchoCodes(cfg.EchoCodes),
	)
	if err != nil {
		return nil, err
	}

	ratelimit, err := ratelimitservice.New(limits,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	security, err := securityservice.New(events, lockouts,
		securityservice.WithLogger(log),
		securityservice.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &services{
		verification: verification,
		ratelimit:    ratelimit,
		security:     security,
	}, nil
}
