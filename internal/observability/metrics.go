// Package observability provides the relay's metrics, logging, and
// tracing plumbing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the relay's Prometheus metrics.
type Metrics struct {
	// ActiveConnections tracks currently registered connections.
	ActiveConnections prometheus.Gauge

	// MessagesTotal counts wire messages.
	// Labels: type (wire discriminator), direction (inbound|outbound)
	MessagesTotal *prometheus.CounterVec

	// HandlerDuration measures per-message dispatch latency in seconds.
	// Labels: type
	HandlerDuration *prometheus.HistogramVec

	// FanoutDeliveries counts per-connection event deliveries.
	// Labels: event, status (sent|dropped)
	FanoutDeliveries *prometheus.CounterVec

	// ErrorsTotal counts failures reported to clients by error code.
	ErrorsTotal *prometheus.CounterVec

	// RateLimited counts messages rejected by the rate limiter.
	RateLimited prometheus.Counter

	// PresenceTransitions counts online/offline transitions.
	// Labels: state (online|offline)
	PresenceTransitions *prometheus.CounterVec

	// TypingSweeps counts compensating stops emitted by the typing sweep.
	TypingSweeps prometheus.Counter

	// LivenessEvictions counts connections evicted for inactivity.
	LivenessEvictions prometheus.Counter
}

// NewMetrics creates and registers all relay metrics with a fresh
// registry. The registry is returned alongside for the metrics
// endpoint handler.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of live websocket connections",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Total wire messages by type and direction",
		}, []string{"type", "direction"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_handler_duration_seconds",
			Help:    "Per-message dispatch latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"type"}),
		FanoutDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fanout_deliveries_total",
			Help: "Per-connection event deliveries by event type and status",
		}, []string{"event", "status"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Failures reported to clients by error code",
		}, []string{"code"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Messages rejected by the rate limiter",
		}),
		PresenceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_presence_transitions_total",
			Help: "Online/offline transitions by state",
		}, []string{"state"}),
		TypingSweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_typing_sweep_stops_total",
			Help: "Compensating typing stops emitted by the sweep",
		}),
		LivenessEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_liveness_evictions_total",
			Help: "Connections evicted for inactivity",
		}),
	}
	return m, reg
}
