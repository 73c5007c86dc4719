package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search scopes.
const (
	ScopeRepository = "repository"
	ScopeRoot       = "root"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors for search operations.
// A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - repogrep_searches_total{scope,outcome}
//   - repogrep_search_duration_seconds{scope}
//   - repogrep_search_results{scope} - records before pagination
//   - repogrep_grep_invocations_total{outcome}
//   - repogrep_grep_duration_seconds
type Metrics struct {
	SearchesTotal   *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	SearchResults   *prometheus.HistogramVec
	GrepInvocations *prometheus.CounterVec
	GrepDuration    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repogrep_searches_total",
				Help: "Total number of search operations",
			},
			[]string{"scope", "outcome"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repogrep_search_duration_seconds",
				Help:    "Duration of search operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"scope"},
		),
		SearchResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repogrep_search_results",
				Help:    "Number of result records produced before pagination",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"scope"},
		),
		GrepInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repogrep_grep_invocations_total",
				Help: "Total number of git grep invocations",
			},
			[]string{"outcome"},
		),
		GrepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "repogrep_grep_duration_seconds",
				Help:    "Duration of a single git grep invocation in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		gatherer: reg,
	}
}

// RecordSearch records a finished search operation.
func (m *Metrics) RecordSearch(scope string, results int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.SearchesTotal.WithLabelValues(scope, outcome).Inc()
	m.SearchDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResults.WithLabelValues(scope).Observe(float64(results))
	}
}

// RecordGrep records a single git grep invocation.
func (m *Metrics) RecordGrep(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GrepInvocations.WithLabelValues(outcome).Inc()
	m.GrepDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
