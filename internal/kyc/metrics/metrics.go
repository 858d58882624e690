package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the KYC module.
// Tracks transition outcomes, status cache efficiency and readiness checks.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	StatusCacheLookups *prometheus.CounterVec
	ReadinessChecks    *prometheus.CounterVec
	NotifyFailures     prometheus.Counter
}

// New registers the KYC metrics on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_kyc_transitions_total",
			Help: "KYC transitions attempted, by action and outcome (ok or error code)",
		}, []string{"action", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loankyc_kyc_transition_duration_seconds",
			Help:    "Duration of KYC transitions including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action"}),
		StatusCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_kyc_status_cache_lookups_total",
			Help: "Status cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		ReadinessChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_kyc_readiness_checks_total",
			Help: "Submission readiness evaluations by result",
		}, []string{"ready"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "loankyc_kyc_notify_failures_total",
			Help: "Notifications that could not be dispatched after commit",
		}),
	}
}

// ObserveTransition records one transition attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCacheLookup(result string) {
	m.StatusCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementReadiness(ready bool) {
	label := "false"
	if ready {
		label = "true"
	}
	m.ReadinessChecks.WithLabelValues(label).Inc()
}
