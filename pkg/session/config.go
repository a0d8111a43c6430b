package session

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config configures a Session.
type Config struct {
	// URL is the WebSocket endpoint. Required.
	URL string

	// Protocols are offered as WebSocket subprotocols.
	Protocols []string

	// Logger receives session logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Reconnection

	// MaxReconnectAttempts is the retry budget after a connection loss.
	// Default: 5.
	MaxReconnectAttempts int

	// ReconnectInterval is the base backoff delay.
	// Default: 1 second.
	ReconnectInterval time.Duration

	// MaxReconnectDelay caps the backoff.
	// Default: 30 seconds, or ReconnectInterval when that is longer.
	MaxReconnectDelay time.Duration

	// ReconnectJitter randomizes each backoff delay within [0.5, 1.5).
	// Default: false.
	ReconnectJitter bool

	// ReconnectOnHeartbeatTimeout treats a heartbeat timeout as a connection
	// loss instead of a terminal close.
	// Default: false.
	ReconnectOnHeartbeatTimeout bool

	// Heartbeat

	// PingInterval is the time between pings.
	// Default: 30 seconds.
	PingInterval time.Duration

	// PingTimeout is how long to wait for a pong. Must exceed PingInterval.
	// Default: 60 seconds.
	PingTimeout time.Duration

	// Limits

	// ChunkSize is the largest binary payload sent in one frame.
	// Default: 1 MiB.
	ChunkSize int

	// Collaborators

	// Dialer opens the transport.
	// Default: transport.NewWebSocketDialer(nil).
	Dialer transport.Dialer

	// Clock drives heartbeat and reconnect timers.
	// Default: clock.Real().
	Clock clock.Clock

	// Metrics receives session metrics. Nil disables metrics.
	Metrics *Metrics

	// TracerProvider creates connection spans.
	// Default: otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// OnStateChange is called after every state transition, in order, from
	// the dispatch goroutine.
	OnStateChange func(from, to State)
}

// DefaultConfig returns a Config with sensible defaults and no URL.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectInterval:    time.Second,
		MaxReconnectDelay:    30 * time.Second,
		PingInterval:         30 * time.Second,
		PingTimeout:          60 * time.Second,
		ChunkSize:            protocol.MaxChunkSize,
	}
}

// withDefaults returns a copy of c with zero fields filled in.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = max(def.MaxReconnectDelay, c.ReconnectInterval)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Dialer == nil {
		c.Dialer = transport.NewWebSocketDialer(nil)
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// validate checks fields that have no usable default.
func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: URL scheme must be ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if c.MaxReconnectDelay < c.ReconnectInterval {
		return fmt.Errorf("%w: MaxReconnectDelay %v is below ReconnectInterval %v",
			ErrInvalidConfig, c.MaxReconnectDelay, c.ReconnectInterval)
	}
	return nil
}
