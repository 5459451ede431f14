package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by stage (password|totp|backup_code)
	// and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atrium_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"stage", "result"},
	)

	// Registrations counts account registrations by result (created|rejected).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atrium_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atrium_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// BackupCodesConsumed counts recovery codes spent via the backup path.
	BackupCodesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atrium_backup_codes_consumed_total",
			Help: "Total number of backup codes consumed",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atrium_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
