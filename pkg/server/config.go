package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/wsm/pkg/protocol"
)

// Config configures a Server. Zero fields take the defaults listed below.
type Config struct {
	// Address is the listen address for Run.
	// Default: ":8080".
	Address string

	// Path is where WebSocket upgrades are accepted.
	// Default: "/_ws".
	Path string

	// Subprotocols are offered during the upgrade.
	// Default: none.
	Subprotocols []string

	// Greeting is the data of the "connected" envelope sent on open.
	// Default: "Bonjour".
	Greeting string

	// ReadLimit is the largest frame accepted from a peer.
	// Default: 2 MiB (one full chunk plus headroom).
	ReadLimit int64

	// WriteTimeout bounds each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadBufferSize and WriteBufferSize size the upgrader buffers.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header.
	// Default: accept every origin.
	CheckOrigin func(r *http.Request) bool

	// MaxPeers caps concurrent peers. 0 means no limit.
	MaxPeers int

	// MaxPeersPerIP caps concurrent peers from one client address.
	// 0 means no limit.
	MaxPeersPerIP int

	// TrustedProxies lists IPs or CIDRs whose Forwarded and X-Forwarded-For
	// headers are honored when computing the client address.
	TrustedProxies []string

	// ReadHeaderTimeout is applied to the HTTP server built by Run.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// MetricsPath serves Prometheus metrics from Gatherer when non-empty.
	MetricsPath string

	// Gatherer backs the metrics endpoint.
	// Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Metrics receives server metrics. Nil disables them.
	Metrics *Metrics

	// Logger receives server logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Hooks. All hooks run on the peer's read goroutine.

	// OnOpen runs after the greeting has been sent.
	OnOpen func(p *Peer)

	// OnEnvelope runs for every TEXT or BINARY frame that holds an envelope.
	OnEnvelope func(p *Peer, env protocol.Envelope)

	// OnText runs for TEXT frames that are not envelopes.
	OnText func(p *Peer, text string)

	// OnBinary runs for BINARY frames that are not envelopes.
	OnBinary func(p *Peer, data []byte)

	// OnClose runs once when the peer goes away.
	OnClose func(p *Peer)
}

// DefaultConfig returns a Config with the defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		Path:              "/_ws",
		Greeting:          "Bonjour",
		ReadLimit:         2 * protocol.MaxChunkSize,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       func(*http.Request) bool { return true },
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Gatherer:          prometheus.DefaultGatherer,
		Logger:            slog.Default(),
	}
}

// withDefaults returns a copy of c with zero fields filled in.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Address == "" {
		out.Address = def.Address
	}
	if out.Path == "" {
		out.Path = def.Path
	}
	if out.Greeting == "" {
		out.Greeting = def.Greeting
	}
	if out.ReadLimit <= 0 {
		out.ReadLimit = def.ReadLimit
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = def.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = def.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = def.CheckOrigin
	}
	if out.ReadHeaderTimeout <= 0 {
		out.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = def.ShutdownTimeout
	}
	if out.Gatherer == nil {
		out.Gatherer = def.Gatherer
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return &out
}
