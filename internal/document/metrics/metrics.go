package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the document registry.
type Metrics struct {
	Operations  *prometheus.CounterVec
	UploadBytes prometheus.Histogram
	ScanResults *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_document_operations_total",
			Help: "Document registry operations, by operation and outcome",
		}, []string{"operation", "outcome"}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loankyc_document_upload_bytes",
			Help:    "Size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 6),
		}),
		ScanResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loankyc_document_scan_results_total",
			Help: "Scanner verdicts received",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveOperation(op, outcome string) {
	m.Operations.WithLabelValues(op, outcome).Inc()
}
