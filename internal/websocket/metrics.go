package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// hubMetrics are exported through the hub's Prometheus collector
type hubMetrics struct {
	connections prometheus.Counter
	sent        prometheus.Counter
	dropped     prometheus.Counter
	clients     prometheus.GaugeFunc
}

func newHubMetrics(clientCount func() int) *hubMetrics {
	return &hubMetrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket",
			Name:      "connections_total",
			Help:      "WebSocket clients registered since start.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket",
			Name:      "messages_sent_total",
			Help:      "Messages queued to clients.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket",
			Name:      "messages_dropped_total",
			Help:      "Broadcasts dropped because a buffer was full.",
		}),
		clients: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "websocket",
			Name:      "clients",
			Help:      "Currently connected clients.",
		}, func() float64 { return float64(clientCount()) }),
	}
}

// Describe implements prometheus.Collector
func (m *hubMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.connections.Describe(ch)
	m.sent.Describe(ch)
	m.dropped.Describe(ch)
	m.clients.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *hubMetrics) Collect(ch chan<- prometheus.Metric) {
	m.connections.Collect(ch)
	m.sent.Collect(ch)
	m.dropped.Collect(ch)
	m.clients.Collect(ch)
}
