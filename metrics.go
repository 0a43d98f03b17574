package velox

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for velox's request
// lifecycle and reliability layers, plus a Snapshot() accessor for the
// small set of aggregate counters the client exposes without a scrape.
// Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	requestsQueued   prometheus.Gauge

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	rateLimiterTokens   *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	deduplicationHits *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec

	registry *prometheus.Registry

	startedAt time.Time
	total     int64
	succeeded int64
	failed    int64
}

// NewMetricsCollector creates a metrics collector on a fresh registry of its
// own, not the global default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry *prometheus.Registry) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_requests_total", Help: "Total number of HTTP requests made"},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{Name: "velox_request_duration_seconds", Help: "Duration of HTTP requests in seconds", Buckets: prometheus.DefBuckets},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{Name: "velox_requests_in_flight", Help: "Number of admitted, in-flight requests"},
			[]string{"method", "endpoint"},
		),
		requestsQueued: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{Name: "velox_requests_queued", Help: "Number of requests waiting for admission"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_retries_total", Help: "Total number of retry attempts"},
			[]string{"method", "endpoint", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{Name: "velox_circuit_breaker_state", Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)"},
			[]string{"name"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{Name: "velox_rate_limiter_tokens", Help: "Current number of available rate limiter tokens"},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_cache_hits_total", Help: "Total number of cache hits"},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_cache_misses_total", Help: "Total number of cache misses"},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{Name: "velox_cache_size", Help: "Current number of entries in cache"},
			[]string{"name"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_deduplication_hits_total", Help: "Total number of deduplication hits"},
			[]string{"method", "endpoint"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{Name: "velox_errors_total", Help: "Total number of errors encountered"},
			[]string{"type", "method", "endpoint"},
		),
		registry:  registry,
		startedAt: time.Now(),
	}
	return mc
}

// RecordRequest records request count and duration, and updates the
// aggregate success/failure counters Snapshot reports. statusCode <= 0
// means the request failed before producing an HTTP status.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Observe(duration.Seconds())
	atomic.AddInt64(&mc.total, 1)
	if statusCode > 0 && statusCode < 400 {
		atomic.AddInt64(&mc.succeeded, 1)
	} else {
		atomic.AddInt64(&mc.failed, 1)
	}
}

func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

func (mc *MetricsCollector) RecordQueued(n int) {
	if mc == nil {
		return
	}
	mc.requestsQueued.Set(float64(n))
}

func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (mc *MetricsCollector) RecordRateLimiterTokens(name string, tokens float64) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(name).Set(tokens)
}

func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry for scraping.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}

// Snapshot is the aggregate view a caller can poll without scraping
// Prometheus: totals, success rate, and throughput since construction.
type Snapshot struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	PendingRequests    int
	QueuedRequests     int
	UptimeSeconds      float64
	RequestsPerSecond  float64
	SuccessRate        float64
}

// Snapshot reports the aggregate counters as of now. pending and queued
// come from the caller (the dispatch engine) since the collector itself
// only observes completed requests.
func (mc *MetricsCollector) Snapshot(pending, queued int) Snapshot {
	if mc == nil {
		return Snapshot{}
	}
	total := atomic.LoadInt64(&mc.total)
	succeeded := atomic.LoadInt64(&mc.succeeded)
	failed := atomic.LoadInt64(&mc.failed)
	uptime := time.Since(mc.startedAt).Seconds()

	var rps, successRate float64
	if uptime > 0 {
		rps = float64(total) / uptime
	}
	if total > 0 {
		successRate = float64(succeeded) / float64(total)
	}

	return Snapshot{
		TotalRequests:      total,
		SuccessfulRequests: succeeded,
		FailedRequests:     failed,
		PendingRequests:    pending,
		QueuedRequests:     queued,
		UptimeSeconds:      uptime,
		RequestsPerSecond:  rps,
		SuccessRate:        successRate,
	}
}
