// Package metrics provides Prometheus metrics for the minting pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains minting outcome and latency metrics.
type Metrics struct {
	MintsTotal          *prometheus.CounterVec // by outcome (confirmed, pending, failed)
	MintFailuresTotal   *prometheus.CounterVec // by error kind and failed stage
	MintDurationSeconds prometheus.Histogram   // full Building->terminal run
	StageDuration       *prometheus.HistogramVec
	BatchSize           prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		MintsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_mints_total",
			Help: "Total number of mint runs by outcome",
		}, []string{"outcome"}),

		MintFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_mint_failures_total",
			Help: "Total number of failed mint runs by error kind and stage",
		}, []string{"kind", "stage"}),

		MintDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_mint_duration_seconds",
			Help:    "Duration of mint runs including confirmation",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_mint_stage_duration_seconds",
			Help:    "Time spent in each mint stage",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"stage"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_mint_batch_size",
			Help:    "Number of requests per batch mint",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// RecordOutcome records a terminal mint outcome.
func (m *Metrics) RecordOutcome(outcome string, durationSeconds float64) {
	m.MintsTotal.WithLabelValues(outcome).Inc()
	m.MintDurationSeconds.Observe(durationSeconds)
}

// RecordFailure records a failed run's classification.
func (m *Metrics) RecordFailure(kind, stage string) {
	m.MintFailuresTotal.WithLabelValues(kind, stage).Inc()
}

// ObserveStage records time spent in a stage.
func (m *Metrics) ObserveStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// ObserveBatch records a batch size.
func (m *Metrics) ObserveBatch(size int) {
	m.BatchSize.Observe(float64(size))
}
