package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"verity/internal/platform/config"
	"verity/internal/platform/database"
	"verity/internal/platform/logger"
	"verity/internal/platform/metrics"
	httptransport "verity/internal/transport/http"
	"verity/migrations"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing verity",
		"addr", cfg.Addr,
		"postgres", cfg.DatabaseURL != "",
		"smtp", cfg.SMTPHost != "",
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		if err := migrations.Apply(context.Background(), pool.DB()); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()

	deps, err := buildServices(cfg, pool, m, log)
	if err != nil {
		log.Error("service wiring failed", "error", err)
		os.Exit(1)
	}

	verificationHandler := httptransport.NewVerificationHandler(deps.verification, deps.ratelimit, deps.security, log)
	adminHandler := httptransport.NewAdminHandler(deps.security, deps.ratelimit)

	var health httptransport.HealthChecker
	if pool != nil {
		health = pool
	}
	router := httptransport.NewRouter(verificationHandler, adminHandler, httptransport.RouterConfig{
		AdminJWTKey: []byte(cfg.AdminJWTKey),
		Health:      health,
	}, log)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
