// Package metrics exposes the Prometheus instrumentation for the compute
// endpoint, grounded on gateway/middleware/observability.go's
// counter/histogram pair but scoped to formula evaluation rather than raw
// HTTP request/response timing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram the query gateway registers.
type Metrics struct {
	Registry *prometheus.Registry

	ComputeTotal         *prometheus.CounterVec
	ComputeDuration      *prometheus.HistogramVec
	ComputationCacheHits *prometheus.CounterVec
	RangeReuseOutcomes   *prometheus.CounterVec
}

// New constructs and registers the metric set under the given namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		ComputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compute_total",
			Help:      "Total formula evaluations, by formula type/name and outcome.",
		}, []string{"type", "name", "outcome"}),
		ComputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Duration of formula evaluations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "name"}),
		ComputationCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computation_cache_hit_total",
			Help:      "Computation cache lookups on the range path, by result (hit when the stored chain was reused or extended, miss otherwise).",
		}, []string{"result"}),
		RangeReuseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_reuse_outcome_total",
			Help:      "Outcomes of the range-reuse protocol (spec §4.7): continuous-chain reuse vs full recompute.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(m.ComputeTotal, m.ComputeDuration, m.ComputationCacheHits, m.RangeReuseOutcomes)
	return m
}
