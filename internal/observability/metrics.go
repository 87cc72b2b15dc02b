package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abrennan/tv-schedule-service/internal/window"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// EPG provider call rate. Watch for: error vs success ratio.
	EPGCallsTotal *prometheus.CounterVec

	// EPG provider latency per request. Watch for: upstream degradation, timeout risk.
	EPGCallDuration *prometheus.HistogramVec

	// Total schedule lookups across both query operations.
	ScheduleQueriesTotal prometheus.Counter

	// Day-bucket cache hits and misses. Hit rate = hits/(hits+misses).
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Day buckets discarded after a failed fetch. Watch for: any sustained rate.
	BucketRollbacksTotal prometheus.Counter

	// Concurrent fetches observed for the same missing day. Watch for:
	// hot days worth enabling coalescing for.
	DuplicateFetchesTotal prometheus.Counter

	// Cache warming runs, failures, and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per breaker (0 closed, 1 half-open, 2 open).
	circuitBreakerState       *prometheus.GaugeVec
	circuitBreakerTransitions *prometheus.CounterVec

	daysCachedOnce      sync.Once
	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	EPGCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epgCallsTotal",
			Help: "Total number of EPG provider calls",
		},
		[]string{"status"},
	)
	EPGCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epgCallDurationSeconds",
			Help:    "EPG provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	ScheduleQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduleQueriesTotal",
			Help: "Total number of schedule lookups",
		},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of day-bucket cache hits",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of day-bucket cache misses",
		},
	)
	BucketRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketRollbacksTotal",
			Help: "Day buckets removed after a failed fetch",
		},
	)
	DuplicateFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicateFetchesTotal",
			Help: "Fetches started while another fetch for the same day was in flight",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one failed day",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)
	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		EPGCallsTotal, EPGCallDuration,
		ScheduleQueriesTotal, CacheHitsTotal, CacheMissesTotal,
		BucketRollbacksTotal, DuplicateFetchesTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
		circuitBreakerState, circuitBreakerTransitions,
	)
}

// SetCircuitBreakerState publishes the current breaker state.
func SetCircuitBreakerState(breaker string, state float64) {
	circuitBreakerState.WithLabelValues(breaker).Set(state)
}

// RecordCircuitBreakerTransition counts one breaker state transition.
func RecordCircuitBreakerTransition(breaker, from, to string) {
	circuitBreakerTransitions.WithLabelValues(breaker, from, to).Inc()
}

// RegisterDaysCachedGauge registers a gauge backed by the store's current
// bucket count. Call once from main after the store is constructed.
func RegisterDaysCachedGauge(count func() int) {
	daysCachedOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "daysCached",
				Help: "Day buckets currently held in the cache",
			},
			func() float64 { return float64(count()) },
		))
	})
}

// RegisterRateLimitGauges registers sliding-window load and denial gauges
// for the rate-limited path. Call from main after config load.
func RegisterRateLimitGauges(requests, denials *window.Counter, win time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting the rate-limited path in the sliding window",
				},
				func() float64 { return float64(requests.CountSince(win)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(denials.CountSince(win)) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
