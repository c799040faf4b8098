package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"verity/internal/cleanup"
	"verity/internal/platform/config"
	"verity/internal/platform/database"
	"verity/internal/platform/logger"
	"verity/internal/platform/metrics"
	lockoutstore "verity/internal/security/store/lockout"
	codestore "verity/internal/verification/store/code"
	pendingstore "verity/internal/verification/store/pending"
)

// The sweeper runs the three retention sweeps once and exits. It is meant to
// be invoked by an external scheduler (cron, systemd timer, k8s CronJob);
// nothing in the server process depends on it running.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		log.Error("VERITY_DATABASE_URL is required, sweeps are meaningless against in-memory state")
		os.Exit(1)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := pool.DB()
	svc, err := cleanup.New(
		codestore.NewPostgres(db),
		pendingstore.NewPostgres(db),
		lockoutstore.NewPostgres(db),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(metrics.New()),
	)
	if err != nil {
		log.Error("cleanup wiring failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// The sweeps are independent; run them concurrently. Each sweep handles
	// its own store errors and reports zero rows on failure.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.PurgeOldCodes(ctx)
		return nil
	})
	g.Go(func() error {
		svc.ResolveExpiredLockouts(ctx)
		return nil
	})
	g.Go(func() error {
		svc.PurgeExpiredRegistrations(ctx)
		return nil
	})
	_ = g.Wait()

	log.Info("sweeps complete")
}
