package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "smq"

type metrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	reconnects     prometheus.Counter
	violations     prometheus.Counter
	connections    *prometheus.GaugeVec
	ready          prometheus.Gauge
	queued         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, node string) (*metrics, error) {
	labels := prometheus.Labels{"node": node}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "transport",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "transport",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &metrics{
		framesSent:     counter("frames_sent_total", "User frames written to peers."),
		framesReceived: counter("frames_received_total", "User frames delivered to the dispatcher."),
		bytesSent:      counter("bytes_sent_total", "User frame bytes written, headers included."),
		bytesReceived:  counter("bytes_received_total", "User frame bytes read, headers included."),
		reconnects:     counter("reconnects_total", "Reconnection attempts of active connections."),
		violations:     counter("protocol_violations_total", "Connections torn down for protocol violations."),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "transport",
			Name:        "connections",
			Help:        "Live connections by side.",
			ConstLabels: labels,
		}, []string{"attr"}),
		ready:  gauge("connections_ready", "Connections that completed the handshake."),
		queued: gauge("queued_frames", "Frames waiting in channel queues."),
	}

	for _, c := range []prometheus.Collector{
		m.framesSent, m.framesReceived, m.bytesSent, m.bytesReceived,
		m.reconnects, m.violations, m.connections, m.ready, m.queued,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
