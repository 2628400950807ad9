package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons for the events_dropped counter.
const (
	DropReasonOffline      = "offline"
	DropReasonSlowConsumer = "slow_consumer"
	DropReasonClosed       = "connection_closed"
	DropReasonEncode       = "encode_failed"
)

// Metrics holds the prometheus instruments for the push layer.
type Metrics struct {
	ConnectionsOpen prometheus.Gauge
	RoomsActive     prometheus.Gauge
	EventsEmitted   *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
}

// NewMetrics creates and registers the realtime metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksync",
			Subsystem: "realtime",
			Name:      "connections_open",
			Help:      "Number of currently open websocket connections.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksync",
			Subsystem: "realtime",
			Name:      "rooms_active",
			Help:      "Number of delivery rooms with at least one member.",
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksync",
			Subsystem: "realtime",
			Name:      "events_emitted_total",
			Help:      "Push events emitted, by event type.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasksync",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Push events not delivered, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ConnectionsOpen, m.RoomsActive, m.EventsEmitted, m.EventsDropped)
	return m
}

// NopMetrics returns metrics that are not registered anywhere, for tests and
// callers that do not scrape.
func NopMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetrics(reg)
}
