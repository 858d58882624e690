package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers loan application transitions.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	Created            prometheus.Counter
	RequestedAmount    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_application_transitions_total",
			Help: "Loan application transitions attempted, by action and outcome",
		}, []string{"action", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loankyc_application_transition_duration_seconds",
			Help:    "Duration of loan application transitions including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action"}),
		Created: f.NewCounter(prometheus.CounterOpts{
			Name: "loankyc_applications_created_total",
			Help: "Loan applications opened",
		}),
		RequestedAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loankyc_application_requested_amount",
			Help:    "Requested principal of new applications",
			Buckets: prometheus.ExponentialBuckets(1000, 2.5, 10),
		}),
	}
}

func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveCreated(amount float64) {
	m.Created.Inc()
	m.RequestedAmount.Observe(amount)
}
