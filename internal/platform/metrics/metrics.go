package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the engine. A single struct is
// wired through constructors so handlers and services share registrations.
type Metrics struct {
	OwnersCreated       prometheus.Counter
	RecordsStored       prometheus.Counter
	IntegrityMismatches prometheus.Counter

	TokensIssued   prometheus.Counter
	TokensConsumed prometheus.Counter
	TokensDenied   *prometheus.CounterVec

	SyncRuns *prometheus.CounterVec

	ConsumeDuration prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		OwnersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custoda_owners_created_total",
			Help: "Total number of data owners created.",
		}),
		RecordsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custoda_records_stored_total",
			Help: "Total number of unified records written.",
		}),
		IntegrityMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custoda_integrity_mismatches_total",
			Help: "Total number of record hash mismatches detected on read or audit.",
		}),
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custoda_capability_tokens_issued_total",
			Help: "Total number of capability tokens issued.",
		}),
		TokensConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custoda_capability_tokens_consumed_total",
			Help: "Total number of successful capability token validations.",
		}),
		TokensDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custoda_capability_tokens_denied_total",
			Help: "Capability token validations rejected, by reason code.",
		}, []string{"reason"}),
		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custoda_sync_runs_total",
			Help: "Synchronization runs, by side and outcome.",
		}, []string{"side", "outcome"}),
		ConsumeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custoda_token_consume_duration_ms",
			Help:    "Latency of capability token validate-and-consume in milliseconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

// DeniedReason records a rejected token validation. Nil-safe so services can
// run without metrics in tests.
func (m *Metrics) DeniedReason(reason string) {
	if m == nil {
		return
	}
	m.TokensDenied.WithLabelValues(reason).Inc()
}
