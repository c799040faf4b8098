package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. Domain knobs (attempt
// ceilings, windows, TTLs) live with their owning modules; only deployment
// concerns belong here.
type Server struct {
	Addr        string
	DatabaseURL string
	LogLevel    string

	// SMTP settings for the outbound notifier. When Host is empty the
	// process falls back to the in-memory echo notifier (development mode).
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// AdminJWTKey signs/verifies bearer tokens for the admin audit surface.
	AdminJWTKey string

	// EchoCodes surfaces plaintext codes through the diagnostic channel when
	// delivery fails. Never enable in production.
	EchoCodes bool

	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VERITY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	smtpPort := 587
	if v := os.Getenv("VERITY_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			smtpPort = port
		}
	}

	adminKey := os.Getenv("VERITY_ADMIN_JWT_KEY")
	if adminKey == "" {
		// Use a default for development - should be overridden in production
		adminKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("VERITY_DATABASE_URL"),
		LogLevel:        os.Getenv("VERITY_LOG_LEVEL"),
		SMTPHost:        os.Getenv("VERITY_SMTP_HOST"),
		SMTPPort:        smtpPort,
		SMTPUser:        os.Getenv("VERITY_SMTP_USER"),
		SMTPPass:        os.Getenv("VERITY_SMTP_PASS"),
		SMTPFrom:        os.Getenv("VERITY_SMTP_FROM"),
		AdminJWTKey:     adminKey,
		EchoCodes:       os.Getenv("VERITY_ECHO_CODES") == "true",
		ShutdownTimeout: 10 * time.Second,
	}
}
