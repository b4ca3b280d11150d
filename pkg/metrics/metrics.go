// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing, so components can be built without metrics in
// tests.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	CacheEvictionsTotal  *prometheus.CounterVec
	CacheExpiredTotal    *prometheus.CounterVec
	CacheSize            *prometheus.GaugeVec
	IndexRebuildsTotal   *prometheus.CounterVec
	IndexRebuildDuration prometheus.Histogram
	IndexEntities        *prometheus.GaugeVec
	IndexSkippedRecords  *prometheus.CounterVec
	AggregationLatency   *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
	StoreRetriesTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route, status and result cache outcome (hit, miss, none).",
			},
			[]string{"method", "path", "status", "cache"},
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
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Result cache hits by strategy.",
			},
			[]string{"strategy"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Result cache misses by strategy, including expired reads.",
			},
			[]string{"strategy"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_evictions_total",
				Help: "Entries evicted to make room for new keys.",
			},
			[]string{"strategy"},
		),
		CacheExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_expired_total",
				Help: "Entries purged after their TTL, lazily or by the sweeper.",
			},
			[]string{"strategy"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "result_cache_entries",
				Help: "Entries currently held by the result cache.",
			},
			[]string{"strategy"},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_index_rebuilds_total",
				Help: "Index rebuilds by outcome (ok, error, throttled).",
			},
			[]string{"status"},
		),
		IndexRebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "entity_index_rebuild_duration_seconds",
				Help:    "Wall time of a full index rebuild including the store fetch.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		IndexEntities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "entity_index_entities",
				Help: "Distinct entities in the current index snapshot.",
			},
			[]string{"kind"},
		),
		IndexSkippedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_index_skipped_records_total",
				Help: "Malformed records skipped during index builds.",
			},
			[]string{"kind"},
		),
		AggregationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregation_latency_seconds",
				Help:    "Aggregation latency by query and source (scan, pushdown).",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"query", "source"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		StoreRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_store_retries_total",
				Help: "Store operations retried after a failed attempt.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheExpiredTotal,
		m.CacheSize,
		m.IndexRebuildsTotal,
		m.IndexRebuildDuration,
		m.IndexEntities,
		m.IndexSkippedRecords,
		m.AggregationLatency,
		m.CircuitBreakerState,
		m.StoreRetriesTotal,
	)

	return m
}

// ObserveRebuild records one rebuild outcome.
func (m *Metrics) ObserveRebuild(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.IndexRebuildsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.IndexRebuildDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetIndexEntities(kind string, n, skipped int) {
	if m == nil {
		return
	}
	m.IndexEntities.WithLabelValues(kind).Set(float64(n))
	if skipped > 0 {
		m.IndexSkippedRecords.WithLabelValues(kind).Add(float64(skipped))
	}
}

func (m *Metrics) ObserveAggregation(query, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationLatency.WithLabelValues(query, source).Observe(d.Seconds())
}

// CacheHit and friends are called by the result cache strategies.
func (m *Metrics) CacheHit(strategy string) {
	if m != nil {
		m.CacheHitsTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) CacheMiss(strategy string) {
	if m != nil {
		m.CacheMissesTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) CacheEvicted(strategy string, n int) {
	if m != nil && n > 0 {
		m.CacheEvictionsTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

func (m *Metrics) CacheExpired(strategy string, n int) {
	if m != nil && n > 0 {
		m.CacheExpiredTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

func (m *Metrics) SetCacheSize(strategy string, n int) {
	if m != nil {
		m.CacheSize.WithLabelValues(strategy).Set(float64(n))
	}
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

func (m *Metrics) StoreRetried(operation string) {
	if m != nil {
		m.StoreRetriesTotal.WithLabelValues(operation).Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
