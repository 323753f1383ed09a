package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names, one spelling shared by code, tests, and dashboards.
const (
	MetricHTTPRequestsTotal     = "alert311_http_requests_total"
	MetricHTTPRequestDuration   = "alert311_http_request_duration_seconds"
	MetricHTTPRequestSizeBytes  = "alert311_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "alert311_http_response_size_bytes"
	MetricRateLimitRequests     = "alert311_ratelimit_checks_total"
	MetricRateLimitBlocked      = "alert311_ratelimit_blocked_total"
	MetricRateLimitRedisErrors  = "alert311_ratelimit_redis_errors_total"
)

// httpLabels key every HTTP series; path is the normalized route pattern,
// never the raw URL.
var httpLabels = []string{"method", "path", "status"}

// Metrics holds the collectors shared by the HTTP and rate-limit
// middleware. NewMetrics leaves them unregistered so tests can build
// throwaway instances; Register attaches them to a registry once at
// startup.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
}

// NewMetrics creates all middleware collectors.
func NewMetrics() *Metrics {
	sizeBuckets := prometheus.ExponentialBuckets(128, 8, 7)
	return &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests served.",
		}, httpLabels),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "Request latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, httpLabels),
		httpRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestSizeBytes,
			Help:    "Request body size in bytes.",
			Buckets: sizeBuckets,
		}, httpLabels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "Response body size in bytes.",
			Buckets: sizeBuckets,
		}, httpLabels),
		rateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Rate-limit checks performed.",
		}, []string{"endpoint", "key_type"}),
		rateLimitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by the rate limiter.",
		}, []string{"endpoint", "key_type"}),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures during rate limiting; each one is a fail-open.",
		}),
	}
}

// Register attaches every collector to reg. It fails on the first
// collision so a double registration is caught at startup.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors lists every collector, in a stable order.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestSize,
		m.httpResponseSize,
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
	}
}

// IncRateLimitRequests counts one rate-limit check for an endpoint.
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	m.rateLimitRequests.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitBlocked counts one rejected request.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	m.rateLimitBlocked.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitRedisErrors counts one fail-open event.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}

// ObserveHTTPRequest records one served request across all four HTTP series.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestSize.With(labels).Observe(float64(requestSize))
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}
