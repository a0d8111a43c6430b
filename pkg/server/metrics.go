package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/wsm/pkg/protocol"
)

// MetricsConfig configures server metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wsm").
	Namespace string

	// Subsystem is the metrics subsystem (default: "server").
	Subsystem string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures server metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the server collectors. A nil *Metrics records nothing.
type Metrics struct {
	peersActive    prometheus.Gauge
	peersTotal     prometheus.Counter
	rejected       *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	writeErrors    prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "wsm",
		Subsystem: "server",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		peersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "peers_active",
			Help:      "Currently connected peers",
		}),
		peersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "peers_total",
			Help:      "Total accepted peers",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "rejected_total",
			Help:      "Upgrade requests refused, by reason",
		}, []string{"reason"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_received_total",
			Help:      "Frames read from peers, by opcode",
		}, []string{"opcode"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_sent_total",
			Help:      "Frames written to peers, by opcode",
		}, []string{"opcode"}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "write_errors_total",
			Help:      "Failed frame writes",
		}),
	}
}

func (m *Metrics) peerOpened() {
	if m != nil {
		m.peersActive.Inc()
		m.peersTotal.Inc()
	}
}

func (m *Metrics) peerClosed() {
	if m != nil {
		m.peersActive.Dec()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) frameReceived(op protocol.Opcode) {
	if m != nil {
		m.framesReceived.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) frameSent(op protocol.Opcode) {
	if m != nil {
		m.framesSent.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) writeError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}
