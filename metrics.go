package viralquill

import (
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the shared quota budget. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	retriesTotal *prometheus.CounterVec

	quotaReadsUsed  prometheus.Gauge
	quotaWritesUsed prometheus.Gauge
	quotaLevel      prometheus.Gauge
	quotaDenied     *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	rateLimitRemaining *prometheus.GaugeVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "viralquill_requests_total",
				Help: "Total number of platform API calls made",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "viralquill_request_duration_seconds",
				Help:    "Duration of platform API calls in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "viralquill_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"endpoint", "attempt"},
		),
		quotaReadsUsed: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "viralquill_quota_reads_used",
				Help: "Read units consumed in the current monthly period",
			},
		),
		quotaWritesUsed: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "viralquill_quota_writes_used",
				Help: "Write units consumed in the current monthly period",
			},
		),
		quotaLevel: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "viralquill_quota_level",
				Help: "Degradation level (0=normal, 1=warning, 2=critical, 3=exhausted)",
			},
		),
		quotaDenied: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "viralquill_quota_denied_total",
				Help: "Operations denied by the local quota gate",
			},
			[]string{"kind"},
		),
		cacheHits: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "viralquill_cache_hits_total",
				Help: "Lookups served from the local cache at zero quota cost",
			},
		),
		cacheMisses: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "viralquill_cache_misses_total",
				Help: "Lookups that had to go to the platform API",
			},
		),
		rateLimitRemaining: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "viralquill_rate_limit_remaining",
				Help: "Remaining calls in the platform's window, per endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordRequest records one completed (or terminally failed) API call.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	mc.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	mc.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetry records one scheduled retry attempt.
func (mc *MetricsCollector) RecordRetry(endpoint string, attempt int) {
	mc.retriesTotal.WithLabelValues(endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordQuota publishes the tracker's current usage and degradation level.
func (mc *MetricsCollector) RecordQuota(state QuotaState, level QuotaLevel) {
	mc.quotaReadsUsed.Set(float64(state.ReadsUsed))
	mc.quotaWritesUsed.Set(float64(state.WritesUsed))
	mc.quotaLevel.Set(float64(level))
}

// RecordQuotaDenied records a gate denial of the given kind (read,
// system_read, write).
func (mc *MetricsCollector) RecordQuotaDenied(kind string) {
	mc.quotaDenied.WithLabelValues(kind).Inc()
}

// RecordCacheHit records a lookup served locally.
func (mc *MetricsCollector) RecordCacheHit() {
	mc.cacheHits.Inc()
}

// RecordCacheMiss records a lookup that went to transport.
func (mc *MetricsCollector) RecordCacheMiss() {
	mc.cacheMisses.Inc()
}

// RecordRateLimit publishes the remaining window budget for an endpoint.
func (mc *MetricsCollector) RecordRateLimit(endpoint string, remaining int) {
	if remaining < 0 || remaining > math.MaxInt32 {
		return
	}
	mc.rateLimitRemaining.WithLabelValues(endpoint).Set(float64(remaining))
}
