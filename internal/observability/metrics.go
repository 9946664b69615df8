// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Extraction metrics
	PostsScanned        prometheus.Counter
	CandidatesExtracted *prometheus.CounterVec

	// Resolution metrics
	ResolutionMisses     *prometheus.CounterVec
	WeakTickerSuppressed prometheus.Counter
	PoolAddressesMapped  prometheus.Counter

	// Persistence metrics
	MentionPlanRows *prometheus.CounterVec

	// Pricing metrics
	PriceOutcomes     *prometheus.CounterVec
	MaxSinceTokens    *prometheus.CounterVec
	CandlesFetched    *prometheus.CounterVec
	CandleCacheServed prometheus.Counter

	// Market data metrics
	MarketCallLatency *prometheus.HistogramVec
	MarketCallsTotal  *prometheus.CounterVec
	GateWaitSeconds   prometheus.Histogram
	GateThrottles     *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mention_lab"
	}

	return &Metrics{
		// Extraction metrics
		PostsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "posts_scanned_total",
			Help:      "Total number of posts scanned for mentions",
		}),
		CandidatesExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "candidates_total",
			Help:      "Total number of raw mention candidates by source kind",
		}, []string{"kind"}),

		// Resolution metrics
		ResolutionMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "misses_total",
			Help:      "Candidates dropped because resolution failed, by issue kind",
		}, []string{"kind"}),
		WeakTickerSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "weak_ticker_suppressed_total",
			Help:      "Weak ticker resolutions suppressed for lack of in-post corroboration",
		}),
		PoolAddressesMapped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "pool_addresses_mapped_total",
			Help:      "Pool addresses replaced by their base token mint",
		}),

		// Persistence metrics
		MentionPlanRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assemble",
			Name:      "plan_rows_total",
			Help:      "Mention rows planned by action (insert, update, noop)",
		}, []string{"action"}),

		// Pricing metrics
		PriceOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "price_at_outcomes_total",
			Help:      "Price-at-mention outcomes by reason",
		}, []string{"reason"}),
		MaxSinceTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "max_since_tokens_total",
			Help:      "Tokens processed by the max-since engine by status",
		}, []string{"status"}),
		CandlesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "candles_fetched_total",
			Help:      "Candles fetched from upstream by timeframe",
		}, []string{"timeframe"}),
		CandleCacheServed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "candles_from_cache_total",
			Help:      "Day candles served from the candle store instead of upstream",
		}),

		// Market data metrics
		MarketCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "call_duration_seconds",
			Help:      "Market data API call latency by endpoint",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		MarketCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "calls_total",
			Help:      "Market data API calls by endpoint and status class",
		}, []string{"endpoint", "status"}),
		GateWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a pacing slot",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		GateThrottles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "throttled_total",
			Help:      "Throttling responses absorbed by backoff, by operation",
		}, []string{"op"}),

		// Cache metrics
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result",
		}, []string{"cache", "result"}),

		// Run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of runs by phase and status",
		}, []string{"phase", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Run duration in seconds by phase",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"phase"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful scheduled cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPostsScanned increments the scanned posts counter.
func RecordPostsScanned(n int) {
	DefaultMetrics.PostsScanned.Add(float64(n))
}

// RecordCandidate increments the extracted candidates counter.
func RecordCandidate(kind string) {
	DefaultMetrics.CandidatesExtracted.WithLabelValues(kind).Inc()
}

// RecordResolutionMiss records a dropped candidate.
func RecordResolutionMiss(kind string) {
	DefaultMetrics.ResolutionMisses.WithLabelValues(kind).Inc()
}

// RecordWeakTickerSuppressed records a consensus suppression.
func RecordWeakTickerSuppressed() {
	DefaultMetrics.WeakTickerSuppressed.Inc()
}

// RecordPoolAddressMapped records a pool address canonicalized to its mint.
func RecordPoolAddressMapped() {
	DefaultMetrics.PoolAddressesMapped.Inc()
}

// RecordPlan records planned mention writes.
func RecordPlan(insert, update, noop int) {
	DefaultMetrics.MentionPlanRows.WithLabelValues("insert").Add(float64(insert))
	DefaultMetrics.MentionPlanRows.WithLabelValues("update").Add(float64(update))
	DefaultMetrics.MentionPlanRows.WithLabelValues("noop").Add(float64(noop))
}

// RecordPriceOutcome records one price-at-mention result.
func RecordPriceOutcome(reason string) {
	DefaultMetrics.PriceOutcomes.WithLabelValues(reason).Inc()
}

// RecordMaxSinceToken records one token processed by the max-since engine.
func RecordMaxSinceToken(status string) {
	DefaultMetrics.MaxSinceTokens.WithLabelValues(status).Inc()
}

// RecordCandlesFetched records candles received from upstream.
func RecordCandlesFetched(timeframe string, n int) {
	DefaultMetrics.CandlesFetched.WithLabelValues(timeframe).Add(float64(n))
}

// RecordCandlesFromCache records day candles served from the candle store.
func RecordCandlesFromCache(n int) {
	DefaultMetrics.CandleCacheServed.Add(float64(n))
}

// RecordMarketCall records a market data API call.
func RecordMarketCall(endpoint, status string, seconds float64) {
	DefaultMetrics.MarketCallLatency.WithLabelValues(endpoint).Observe(seconds)
	DefaultMetrics.MarketCallsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordGateWait records time spent waiting for a pacing slot.
func RecordGateWait(seconds float64) {
	DefaultMetrics.GateWaitSeconds.Observe(seconds)
}

// RecordGateThrottle records a throttling response absorbed by backoff.
func RecordGateThrottle(op string) {
	DefaultMetrics.GateThrottles.WithLabelValues(op).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordRun records a finished run phase.
func RecordRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordCycleSuccess sets the last successful cycle timestamp.
func RecordCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}
