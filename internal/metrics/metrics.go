// Package metrics exposes Prometheus instrumentation for identity
// reconciliation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Identify outcomes.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeMerged           = "merged"
	OutcomeMatched          = "matched"
	OutcomeError            = "error"
)

// Metrics provides observability for the reconciliation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Identify calls by outcome
	IdentifyOutcome *prometheus.CounterVec

	// Primaries demoted to secondary while merging link-groups
	DemotedPrimaries prometheus.Counter

	// Full identify latency, store transaction included
	IdentifyLatency prometheus.Histogram

	// HTTP requests by route and status code
	HTTPRequests *prometheus.CounterVec

	// Requests rejected by the rate limiter
	RateLimited prometheus.Counter
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		IdentifyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactlink_identify_total",
			Help: "Total identify calls by outcome",
		}, []string{"outcome"}),

		DemotedPrimaries: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_demoted_primaries_total",
			Help: "Total primary contacts demoted to secondary by a merge",
		}),

		IdentifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactlink_identify_duration_seconds",
			Help:    "Duration of identify calls including the store transaction",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactlink_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		}, []string{"route", "code"}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
	}
}

// IncrementOutcome records the outcome of an identify call.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.IdentifyOutcome.WithLabelValues(outcome).Inc()
	}
}

// AddDemoted records primaries demoted by a merge.
func (m *Metrics) AddDemoted(n int) {
	if m != nil && n > 0 {
		m.DemotedPrimaries.Add(float64(n))
	}
}

// ObserveIdentifyLatency records the duration of an identify call.
func (m *Metrics) ObserveIdentifyLatency(d time.Duration) {
	if m != nil {
		m.IdentifyLatency.Observe(d.Seconds())
	}
}

// IncrementHTTPRequest records a served HTTP request.
func (m *Metrics) IncrementHTTPRequest(route, code string) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, code).Inc()
	}
}

// IncrementRateLimited records a rejected request.
func (m *Metrics) IncrementRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
