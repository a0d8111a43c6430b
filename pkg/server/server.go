package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server accepts WebSocket peers that speak the opcode framing protocol.
// Every new peer receives a PING frame followed by a "connected" envelope.
type Server struct {
	config   *Config
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	proxies  *proxyMatcher
	peers    *peerSet
	router   chi.Router

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a server. A nil config uses DefaultConfig.
func New(config *Config) *Server {
	config = config.withDefaults()
	logger := config.Logger.With("component", "server")

	s := &Server{
		config:  config,
		logger:  logger,
		metrics: config.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			Subprotocols:    config.Subprotocols,
			CheckOrigin:     config.CheckOrigin,
		},
		proxies: newProxyMatcher(config.TrustedProxies, logger),
		peers:   newPeerSet(config.MaxPeers, config.MaxPeersPerIP),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get(config.Path, s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if config.MetricsPath != "" {
		r.Handle(config.MetricsPath, promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	return s
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router, for mounting the server inside another mux.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleWebSocket upgrades the request and serves the peer until it closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, s.proxies)

	if err := s.peers.check(ip); err != nil {
		s.refuse(w, ip, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "ip", ip, "error", err)
		s.metrics.reject("upgrade")
		return
	}
	conn.SetReadLimit(s.config.ReadLimit)

	p := newPeer(s, conn, ip, middleware.GetReqID(r.Context()))
	if err := s.peers.add(p); err != nil {
		s.metrics.reject(rejectReason(err))
		s.logger.Warn("peer refused after upgrade", "ip", ip, "error", err)
		p.shutdown(websocket.CloseTryAgainLater, err.Error())
		return
	}
	s.metrics.peerOpened()
	p.logger.Info("peer connected", "subprotocol", conn.Subprotocol())

	if err := s.greet(p); err != nil {
		p.logger.Warn("greeting failed", "error", err)
		p.shutdown(0, "")
		s.release(p)
		return
	}
	if fn := s.config.OnOpen; fn != nil {
		s.callHook("OnOpen", p, func() { fn(p) })
	}

	p.serve()
}

func (s *Server) greet(p *Peer) error {
	if err := p.Ping(); err != nil {
		return err
	}
	return p.Emit("connected", s.config.Greeting)
}

func (s *Server) refuse(w http.ResponseWriter, ip string, err error) {
	s.metrics.reject(rejectReason(err))
	s.logger.Warn("peer refused", "ip", ip, "error", err)

	status := http.StatusServiceUnavailable
	if errors.Is(err, ErrTooManyPeersFromIP) {
		status = http.StatusTooManyRequests
	}
	http.Error(w, err.Error(), status)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMaxPeersReached):
		return "max_peers"
	case errors.Is(err, ErrTooManyPeersFromIP):
		return "max_peers_per_ip"
	case errors.Is(err, ErrServerStopped):
		return "stopped"
	default:
		return "other"
	}
}

// release unregisters p and runs OnClose once.
func (s *Server) release(p *Peer) {
	if !s.peers.remove(p) {
		return
	}
	s.metrics.peerClosed()
	p.logger.Info("peer disconnected", "duration", time.Since(p.connectedAt).Round(time.Millisecond))
	if fn := s.config.OnClose; fn != nil {
		s.callHook("OnClose", p, func() { fn(p) })
	}
}

// callHook runs a user hook, recovering panics so one peer cannot take the
// server down.
func (s *Server) callHook(name string, p *Peer, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("hook panic",
				"hook", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"peers":  s.peers.len(),
	})
}

// Peer returns the connected peer with id, or nil.
func (s *Server) Peer(id string) *Peer {
	return s.peers.get(id)
}

// Peers returns the connected peers.
func (s *Server) Peers() []*Peer {
	return s.peers.snapshot()
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.peers.len()
}

// Broadcast emits an envelope to every connected peer and returns how many
// writes succeeded.
func (s *Server) Broadcast(eventType string, data any) int {
	sent := 0
	for _, p := range s.peers.snapshot() {
		if err := p.Emit(eventType, data); err != nil {
			p.logger.Debug("broadcast write failed", "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Run listens on Config.Address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("server listening", "address", ln.Addr().String(), "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown refuses new peers, closes the connected ones with 1001 and stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	peers := s.peers.stop()
	s.logger.Info("server shutting down", "peers", len(peers))

	for _, p := range peers {
		p.Close(websocket.CloseGoingAway, "server shutting down")
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
