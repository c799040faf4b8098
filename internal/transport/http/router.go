package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verity/internal/platform/middleware"
	"verity/pkg/requesttime"

	httpjson "verity/internal/transport/http/json"
)

// HealthChecker reports backing store health for the readiness endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig carries the transport-level wiring the router needs beyond
// the handlers themselves.
type RouterConfig struct {
	AdminJWTKey []byte
	Metadata    *middleware.MetadataConfig
	Health      HealthChecker
}

// NewRouter wires the public verification endpoints and the operator surface
// behind admin auth.
func NewRouter(verification *VerificationHandler, admin *AdminHandler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewMetadata(cfg.Metadata).Handler)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleHealth(cfg.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/verification", func(r chi.Router) {
		r.Post("/register", verification.handleRegister)
		r.Post("/register/resend", verification.handleRegisterResend)
		r.Post("/register/validate", verification.handleRegisterValidate)
		r.Post("/email-change", verification.handleEmailChange)
		r.Post("/email-change/validate", verification.handleEmailChangeValidate)
		r.Post("/phone-change", verification.handlePhoneChange)
		r.Post("/phone-change/validate", verification.handlePhoneChangeValidate)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(cfg.AdminJWTKey, logger))
		r.Get("/events", admin.handleEvents)
		r.Get("/events/kind/{kind}", admin.handleEventsByKind)
		r.Get("/failures", admin.handleRecentFailures)
		r.Get("/stats", admin.handleStats)
		r.Post("/unlock", admin.handleUnlock)
		r.Post("/ratelimit/reset", admin.handleRateLimitReset)
	})

	return r
}

func handleHealth(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Health(r.Context()); err != nil {
				httpjson.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		httpjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
