// Package metrics provides Prometheus metrics for credential verification.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains verification outcome metrics.
type Metrics struct {
	VerificationsTotal  *prometheus.CounterVec // by source (ledger, record, both) and validity
	ConflictsTotal      *prometheus.CounterVec // by conflict reason
	SourceFailuresTotal *prometheus.CounterVec // by source and error kind
	VerifyDuration      prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verifications_total",
			Help: "Total number of verification queries by answering source and validity",
		}, []string{"source", "valid"}),

		ConflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verification_conflicts_total",
			Help: "Total number of ledger/record disagreements by reason",
		}, []string{"reason"}),

		SourceFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verification_source_failures_total",
			Help: "Total number of failed source lookups during verification",
		}, []string{"source", "kind"}),

		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_verification_duration_seconds",
			Help:    "Duration of verification queries",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// RecordResult records a completed verification.
func (m *Metrics) RecordResult(source string, valid bool, durationSeconds float64) {
	m.VerificationsTotal.WithLabelValues(source, strconv.FormatBool(valid)).Inc()
	m.VerifyDuration.Observe(durationSeconds)
}

// RecordConflict records one disagreement reason.
func (m *Metrics) RecordConflict(reason string) {
	m.ConflictsTotal.WithLabelValues(reason).Inc()
}

// RecordSourceFailure records a lookup that failed for a reason other than not-found.
func (m *Metrics) RecordSourceFailure(source, kind string) {
	m.SourceFailuresTotal.WithLabelValues(source, kind).Inc()
}
