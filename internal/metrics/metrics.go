package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the gateway-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chassis",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chassis",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "service", "domain", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chassis",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "service", "domain"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chassis",
			Subsystem: "ws",
			Name:      "open_connections",
			Help:      "Current number of open WebSocket connections.",
		},
	)

	wsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chassis",
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Total number of WebSocket events processed.",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		wsConnections,
		wsEvents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks an HTTP request as started.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks an HTTP request as finished.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one dispatched HTTP request. Service and domain
// come from the addressing headers so cardinality stays bounded by the schema.
func RecordHTTPRequest(method, service, domain string, status int, duration time.Duration) {
	if service == "" {
		service = "unknown"
	}
	if domain == "" {
		domain = "unknown"
	}
	httpRequests.WithLabelValues(method, service, domain, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, service, domain).Observe(duration.Seconds())
}

// ConnectionOpened records a new WebSocket connection.
func ConnectionOpened() { wsConnections.Inc() }

// ConnectionClosed records a closed WebSocket connection.
func ConnectionClosed() { wsConnections.Dec() }

// RecordWSEvent records one processed WebSocket event.
func RecordWSEvent(event, outcome string) {
	wsEvents.WithLabelValues(event, outcome).Inc()
}
