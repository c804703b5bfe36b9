package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP and credential-record metrics of the server.
// Mint, verification and indexer metrics live next to their packages.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec

	CredentialsCreated prometheus.Counter
	CredentialsRevoked prometheus.Counter
	IssueOutcomes      *prometheus.CounterVec
	EventPublishErrors prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		CredentialsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_credentials_created_total",
			Help: "Total number of credential records created",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_credentials_revoked_total",
			Help: "Total number of credential records revoked",
		}),
		IssueOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_credential_issues_total",
			Help: "Issue attempts on credential records by outcome",
		}, []string{"outcome"}),
		EventPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_credential_event_publish_errors_total",
			Help: "Lifecycle events that could not be published",
		}),
	}
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) IncrementCredentialsCreated() {
	m.CredentialsCreated.Inc()
}

func (m *Metrics) IncrementCredentialsRevoked() {
	m.CredentialsRevoked.Inc()
}

// IncrementIssueOutcome counts one issue attempt: confirmed, pending, failed or refused.
func (m *Metrics) IncrementIssueOutcome(outcome string) {
	m.IssueOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementEventPublishErrors() {
	m.EventPublishErrors.Inc()
}
