package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/wsm/pkg/protocol"
)

// MetricsConfig configures session metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wsm").
	Namespace string

	// Subsystem is the metrics subsystem (default: "session").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures session metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "wsm",
		Subsystem: "session",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors shared by any number of sessions.
// A nil *Metrics records nothing.
//
// Metrics collected (default namespace and subsystem):
//   - wsm_session_frames_sent_total: frames written, by opcode
//   - wsm_session_frames_received_total: frames read, by opcode
//   - wsm_session_bytes_sent_total / wsm_session_bytes_received_total
//   - wsm_session_write_errors_total: failed transport writes
//   - wsm_session_dropped_total: inbound frames dropped, by reason
//   - wsm_session_reconnects_total: scheduled reconnect attempts
//   - wsm_session_retries_exhausted_total: sessions that gave up
//   - wsm_session_heartbeat_timeouts_total: missed-pong expiries
//   - wsm_session_handler_panics_total: recovered event handler panics
//   - wsm_session_queued_messages: messages waiting for a connection
//   - wsm_session_open_connections: sessions currently open
type Metrics struct {
	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	writeErrors       prometheus.Counter
	dropped           *prometheus.CounterVec
	reconnects        prometheus.Counter
	retriesExhausted  prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	handlerPanics     prometheus.Counter
	queued            prometheus.Gauge
	open              prometheus.Gauge
}

// NewMetrics creates and registers the session collectors.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	m := session.NewMetrics(session.WithRegistry(reg))
//	s, err := session.Connect(ctx, session.Config{URL: url, Metrics: m})
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		framesSent:        counterVec("frames_sent_total", "Total frames written to the transport", "opcode"),
		framesReceived:    counterVec("frames_received_total", "Total frames read from the transport", "opcode"),
		bytesSent:         counter("bytes_sent_total", "Total frame bytes written"),
		bytesReceived:     counter("bytes_received_total", "Total frame bytes read"),
		writeErrors:       counter("write_errors_total", "Total failed transport writes"),
		dropped:           counterVec("dropped_total", "Total inbound frames or events dropped", "reason"),
		reconnects:        counter("reconnects_total", "Total scheduled reconnect attempts"),
		retriesExhausted:  counter("retries_exhausted_total", "Total sessions that exhausted their reconnect budget"),
		heartbeatTimeouts: counter("heartbeat_timeouts_total", "Total heartbeat timeouts"),
		handlerPanics:     counter("handler_panics_total", "Total recovered event handler panics"),
		queued:            gauge("queued_messages", "Messages waiting for a connection"),
		open:              gauge("open_connections", "Sessions currently open"),
	}
}

// Drop reasons.
const (
	dropEmptyFrame    = "empty_frame"
	dropUnknownOpcode = "unknown_opcode"
	dropMalformed     = "malformed_envelope"
	dropDecode        = "decode_error"
)

func (m *Metrics) frameSent(op protocol.Opcode, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(op.String()).Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) frameReceived(op protocol.Opcode, n int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(op.String()).Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) writeError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}

func (m *Metrics) drop(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) exhausted() {
	if m != nil {
		m.retriesExhausted.Inc()
	}
}

func (m *Metrics) heartbeatTimeout() {
	if m != nil {
		m.heartbeatTimeouts.Inc()
	}
}

func (m *Metrics) handlerPanic() {
	if m != nil {
		m.handlerPanics.Inc()
	}
}

func (m *Metrics) queueDelta(n int) {
	if m != nil && n != 0 {
		m.queued.Add(float64(n))
	}
}

func (m *Metrics) transition(from, to State) {
	if m == nil {
		return
	}
	if to == StateOpen {
		m.open.Inc()
	}
	if from == StateOpen {
		m.open.Dec()
	}
}
