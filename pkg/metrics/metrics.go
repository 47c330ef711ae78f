// Package metrics defines the Prometheus metric collectors used by the index
// and query services and exposes an HTTP handler for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryResultsCount    prometheus.Histogram
	QueryHeads           prometheus.Histogram
	BudgetExhaustedTotal prometheus.Counter
	LookupBatchesTotal   prometheus.Counter
	QueueOfferTimeouts   prometheus.Counter
	QueriesInFlight      prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal prometheus.Counter

	IndexGeneration     prometheus.Gauge
	IndexDocuments      prometheus.Gauge
	IndexSwitchesTotal  *prometheus.CounterVec
	IndexSwitchDuration prometheus.Histogram
	ConstructionsTotal  *prometheus.CounterVec
	PendingCloses       prometheus.Gauge

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	latencyBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_queries_total",
				Help: "Total queries by outcome (ok, partial, zero_result, not_loaded, rejected, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: latencyBuckets,
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_query_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		QueryHeads: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_query_heads",
				Help:    "Number of scheduled query heads per query.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),
		BudgetExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_query_budget_exhausted_total",
				Help: "Queries that hit their deadline and returned partial results.",
			},
		),
		LookupBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_lookup_batches_total",
				Help: "Candidate batches handed from lookup to ranking.",
			},
		),
		QueueOfferTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_queue_offer_timeouts_total",
				Help: "Lookup batches dropped because the ranking queue stayed full until the deadline.",
			},
		),
		QueriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_queries_in_flight",
				Help: "Queries currently executing.",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits by tier.",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation_loaded_timestamp_seconds",
				Help: "Creation time of the serving index generation.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Documents in the serving index generation.",
			},
		),
		IndexSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_switches_total",
				Help: "Index generation switches by status.",
			},
			[]string{"status"},
		),
		IndexSwitchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_switch_duration_seconds",
				Help:    "Time to promote and load a new generation.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		ConstructionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_constructions_total",
				Help: "Index construction runs by status.",
			},
			[]string{"status"},
		),
		PendingCloses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_pending_closes",
				Help: "Retired generations waiting out their close grace period.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.QueryHeads,
		m.BudgetExhaustedTotal,
		m.LookupBatchesTotal,
		m.QueueOfferTimeouts,
		m.QueriesInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexGeneration,
		m.IndexDocuments,
		m.IndexSwitchesTotal,
		m.IndexSwitchDuration,
		m.ConstructionsTotal,
		m.PendingCloses,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered creates collectors on a private registry, for tests and
// tools that must not touch the global one.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
