package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProvisionRuns counts finished provisioning runs by terminal outcome
	// ("success" or the failure reason).
	ProvisionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "onboard", Name: "provision_runs_total", Help: "Number of finished provisioning runs by outcome."},
		[]string{"outcome"},
	)
	// SyncRetries counts replication-lag retries by bind stage.
	SyncRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "onboard", Name: "provision_sync_retries_total", Help: "Number of portal-sync retries by bind stage."},
		[]string{"stage"},
	)
	// RunDuration observes wall time of a full provisioning run.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "onboard", Name: "provision_run_duration_seconds", Help: "Duration of provisioning runs.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120}},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "onboard", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "onboard", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(ProvisionRuns)
	reg.MustRegister(SyncRetries)
	reg.MustRegister(RunDuration)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
