// Package metrics provides Prometheus metrics for indexer access.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains indexer cache and resilience metrics.
type Metrics struct {
	CacheHitsTotal   *prometheus.CounterVec // by lookup type (asset, tx)
	CacheMissesTotal *prometheus.CounterVec // by lookup type (asset, tx)

	RequestDurationSeconds *prometheus.HistogramVec // upstream call latency by operation
	ShortCircuitsTotal     prometheus.Counter       // calls rejected while the breaker is open
	BreakerOpen            prometheus.Gauge         // 1 while the breaker is open
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_indexer_cache_hits_total",
			Help: "Total number of indexer cache hits by lookup type",
		}, []string{"type"}),

		CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_indexer_cache_misses_total",
			Help: "Total number of indexer cache misses by lookup type",
		}, []string{"type"}),

		RequestDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_indexer_request_duration_seconds",
			Help:    "Duration of upstream indexer calls by operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),

		ShortCircuitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_indexer_short_circuits_total",
			Help: "Total number of indexer calls rejected by the open circuit",
		}),

		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_indexer_breaker_open",
			Help: "Whether the indexer circuit breaker is open (1) or closed (0)",
		}),
	}
}

// RecordCacheHit records a cache hit for the given lookup type.
func (m *Metrics) RecordCacheHit(lookupType string) {
	m.CacheHitsTotal.WithLabelValues(lookupType).Inc()
}

// RecordCacheMiss records a cache miss for the given lookup type.
func (m *Metrics) RecordCacheMiss(lookupType string) {
	m.CacheMissesTotal.WithLabelValues(lookupType).Inc()
}

// ObserveRequest records the duration of an upstream call.
func (m *Metrics) ObserveRequest(operation string, durationSeconds float64) {
	m.RequestDurationSeconds.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordShortCircuit records a call rejected by the open breaker.
func (m *Metrics) RecordShortCircuit() {
	m.ShortCircuitsTotal.Inc()
}

// SetBreakerOpen updates the breaker state gauge.
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
