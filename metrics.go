package parley

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the node's Prometheus collectors. Each Node owns its own
// collector set and registry, so multiple nodes in one process (common in
// tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Gauge
	framesReceived    prometheus.Counter
	framesRejected    prometheus.Counter
	messagesLimited   prometheus.Counter
	membersEvicted    prometheus.Counter
	broadcastsSent    prometheus.Counter
	broadcastFailures prometheus.Counter
}

// NewMetrics creates and registers the node's collectors on a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_connections",
			Help: "Current number of registered connections.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_frames_received_total",
			Help: "Total inbound frames decoded.",
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_frames_rejected_total",
			Help: "Total inbound frames rejected for exceeding the payload cap.",
		}),
		messagesLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_messages_rate_limited_total",
			Help: "Total chat messages discarded by the rate limiter.",
		}),
		membersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_members_evicted_total",
			Help: "Total members evicted by the heartbeat monitor.",
		}),
		broadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_broadcast_deliveries_total",
			Help: "Total successful broadcast frame deliveries.",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_broadcast_failures_total",
			Help: "Total broadcast deliveries that failed and removed the member.",
		}),
	}
	m.registry.MustRegister(
		m.connections,
		m.framesReceived,
		m.framesRejected,
		m.messagesLimited,
		m.membersEvicted,
		m.broadcastsSent,
		m.broadcastFailures,
	)
	return m
}

// Registry returns the underlying Prometheus registry, for the admin
// server's /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The mutators are nil-safe so call sites never guard.

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) frameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) frameRejected() {
	if m == nil {
		return
	}
	m.framesRejected.Inc()
}

func (m *Metrics) rateLimited() {
	if m == nil {
		return
	}
	m.messagesLimited.Inc()
}

func (m *Metrics) evicted() {
	if m == nil {
		return
	}
	m.membersEvicted.Inc()
}

func (m *Metrics) broadcastDelivered(delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcastsSent.Add(float64(delivered))
	m.broadcastFailures.Add(float64(failed))
}
