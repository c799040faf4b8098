package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	CodesIssued       *prometheus.CounterVec
	CodesValidated    *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
	LockoutsTriggered prometheus.Counter
	LockoutsResolved  prometheus.Counter
	NotifyFailures    prometheus.Counter
	SweepRowsPurged   *prometheus.CounterVec
	ValidationLatency prometheus.Histogram
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_codes_issued_total",
			Help: "Total number of verification codes issued, labeled by operation type",
		}, []string{"operation"}),
		CodesValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_codes_validated_total",
			Help: "Total number of code validations, labeled by operation type and outcome",
		}, []string{"operation", "outcome"}),
		RateLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_rate_limit_rejected_total",
			Help: "Total number of code requests rejected by the rate limiter",
		}),
		LockoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_lockouts_triggered_total",
			Help: "Total number of account lockouts triggered by failure volume",
		}),
		LockoutsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_lockouts_resolved_total",
			Help: "Total number of lockouts resolved, lazily or by sweep",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_notify_failures_total",
			Help: "Total number of failed notification deliveries",
		}),
		SweepRowsPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_sweep_rows_purged_total",
			Help: "Total rows purged or resolved by cleanup sweeps, labeled by sweep",
		}, []string{"sweep"}),
		ValidationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_validation_latency_seconds",
			Help:    "Latency of code validation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementCodesIssued increments the issued counter for an operation type.
func (m *Metrics) IncrementCodesIssued(operation string) {
	m.CodesIssued.WithLabelValues(operation).Inc()
}

// IncrementCodesValidated increments the validation counter for an outcome.
func (m *Metrics) IncrementCodesValidated(operation, outcome string) {
	m.CodesValidated.WithLabelValues(operation, outcome).Inc()
}
