package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is additive instrumentation on top of the coordinator's
// operations: the spec's Non-goals exclude rewards/scoring logic, not
// observability, so this is carried regardless (SPEC_FULL §4.0 ambient
// stack). Registered against a private registry rather than the global
// default so multiple Servers in the same process (tests) never
// double-register collectors.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewMetrics constructs a Metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_http_requests_total",
			Help: "Total HTTP requests handled, by method, path, and status.",
		}, []string{"method", "path", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestLatency)
	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler exposes the registry for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
