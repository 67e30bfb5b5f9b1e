package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requests         prometheus.Counter
	errors           prometheus.Counter
	operationLatency *prometheus.HistogramVec
	framesRouted     *prometheus.CounterVec
	messagesStored   *prometheus.CounterVec
	storeFailures    *prometheus.CounterVec
	outboxDropped    prometheus.Counter
	connections      prometheus.Gauge

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glooo_http_requests_total",
			Help: "HTTP requests handled.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glooo_http_errors_total",
			Help: "HTTP requests answered with an error status.",
		}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glooo_operation_duration_seconds",
			Help:    "Latency of engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		framesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glooo_frames_routed_total",
			Help: "Inbound websocket frames by kind and outcome.",
		}, []string{"kind", "outcome"}),
		messagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glooo_messages_stored_total",
			Help: "Messages written to the store.",
		}, []string{"kind"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glooo_store_failures_total",
			Help: "Failed store writes on the routing path.",
		}, []string{"kind"}),
		outboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glooo_outbox_dropped_total",
			Help: "Outbound frames discarded by the drop-oldest policy.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glooo_ws_connections",
			Help: "Currently registered websocket sessions.",
		}),
		systemStartTime: time.Now(),
	}

	mc.registry.MustRegister(
		mc.requests,
		mc.errors,
		mc.operationLatency,
		mc.framesRouted,
		mc.messagesStored,
		mc.storeFailures,
		mc.outboxDropped,
		mc.connections,
		collectors.NewGoCollector(),
	)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() { mc.requests.Inc() }

func (mc *MetricsCollector) IncrementErrors() { mc.errors.Inc() }

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationLatency.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) FrameRouted(kind, outcome string) {
	mc.framesRouted.WithLabelValues(kind, outcome).Inc()
}

func (mc *MetricsCollector) MessageStored(kind string) {
	mc.messagesStored.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) StoreFailure(kind string) {
	mc.storeFailures.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) OutboxDropped() { mc.outboxDropped.Inc() }

func (mc *MetricsCollector) SetConnections(n int) { mc.connections.Set(float64(n)) }

func (mc *MetricsCollector) Uptime() time.Duration { return time.Since(mc.systemStartTime) }

// Handler exposes the collector's registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}

// Registry is exposed for tests that gather values directly.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }
