package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the protocol-level metrics for a bridge instance.
type Metrics struct {
	// Envelope traffic
	MessagesSent     *prometheus.CounterVec
	MessagesReceived prometheus.Counter
	Dispatched       *prometheus.CounterVec

	// Trust boundary
	SecurityRejections *prometheus.CounterVec
	ValidationFailures prometheus.Counter

	// Request correlation
	RequestsResolved *prometheus.CounterVec
	RequestTimeouts  prometheus.Counter
	PendingRequests  prometheus.Gauge

	// Shared state
	StateUpdatesApplied prometheus.Counter
	StateUpdatesDropped prometheus.Counter

	// Transport
	Connected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all protocol metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total envelopes handed to the transport",
			},
			[]string{"type"},
		),
		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total raw deliveries received from the transport",
			},
		),
		Dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "messages",
				Name:      "dispatched_total",
				Help:      "Total envelopes dispatched to registered handlers",
			},
			[]string{"type"},
		),
		SecurityRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "security",
				Name:      "rejections_total",
				Help:      "Inbound messages rejected at the trust boundary",
			},
			[]string{"reason"},
		),
		ValidationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "codec",
				Name:      "validation_failures_total",
				Help:      "Inbound messages failing envelope schema validation",
			},
		),
		RequestsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "requests",
				Name:      "resolved_total",
				Help:      "Pending requests resolved, by outcome",
			},
			[]string{"outcome"},
		),
		RequestTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "requests",
				Name:      "timeouts_total",
				Help:      "Pending requests rejected by timeout",
			},
		),
		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridge",
				Subsystem: "requests",
				Name:      "pending",
				Help:      "Currently outstanding pending requests",
			},
		),
		StateUpdatesApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "state",
				Name:      "updates_applied_total",
				Help:      "Remote shared-state updates applied",
			},
		),
		StateUpdatesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "state",
				Name:      "updates_dropped_total",
				Help:      "Remote shared-state updates dropped as stale",
			},
		),
		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridge",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Whether the transport currently reports the peer reachable (0/1)",
			},
		),
	}
}

// collectors returns every metric for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesSent,
		m.MessagesReceived,
		m.Dispatched,
		m.SecurityRejections,
		m.ValidationFailures,
		m.RequestsResolved,
		m.RequestTimeouts,
		m.PendingRequests,
		m.StateUpdatesApplied,
		m.StateUpdatesDropped,
		m.Connected,
	}
}
