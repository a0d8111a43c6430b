package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures the gorilla-backed Dialer.
type WebSocketConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	// Default: 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each write, including the close handshake.
	// Default: 10s.
	WriteTimeout time.Duration

	// ReadLimit is the maximum message size accepted from the peer.
	// Default: 2 MiB (one chunk plus headroom).
	ReadLimit int64

	// ReadBufferSize and WriteBufferSize size the I/O buffers.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// Header is sent with the opening handshake.
	Header http.Header
}

// DefaultWebSocketConfig returns a WebSocketConfig with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadLimit:        2 << 20,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// WebSocketDialer dials WebSocket connections with gorilla/websocket.
type WebSocketDialer struct {
	config WebSocketConfig
	dialer websocket.Dialer
}

// NewWebSocketDialer creates a Dialer. A nil config uses the defaults; zero
// fields in a non-nil config take their defaults too.
func NewWebSocketDialer(config *WebSocketConfig) *WebSocketDialer {
	def := DefaultWebSocketConfig()
	cfg := def
	if config != nil {
		cfg = *config
		if cfg.HandshakeTimeout <= 0 {
			cfg.HandshakeTimeout = def.HandshakeTimeout
		}
		if cfg.WriteTimeout <= 0 {
			cfg.WriteTimeout = def.WriteTimeout
		}
		if cfg.ReadLimit <= 0 {
			cfg.ReadLimit = def.ReadLimit
		}
		if cfg.ReadBufferSize <= 0 {
			cfg.ReadBufferSize = def.ReadBufferSize
		}
		if cfg.WriteBufferSize <= 0 {
			cfg.WriteBufferSize = def.WriteBufferSize
		}
	}
	return &WebSocketDialer{
		config: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
	}
}

// Dial opens a WebSocket connection offering protocols as subprotocols.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string, protocols []string) (Conn, error) {
	dialer := d.dialer
	dialer.Subprotocols = protocols

	ws, resp, err := dialer.DialContext(ctx, rawURL, d.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", rawURL, err)
	}
	ws.SetReadLimit(d.config.ReadLimit)
	return NewWebSocketConn(ws, d.config.WriteTimeout), nil
}

// WebSocketConn adapts a *websocket.Conn to Conn. It is used on both the
// dialing and the accepting side.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an established connection. Every message is written
// as a binary WebSocket message.
func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWebSocketConfig().WriteTimeout
	}
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

// ReadMessage returns the next text or binary message.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &CloseError{Code: ce.Code, Text: ce.Text}
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage writes data as one binary message.
func (c *WebSocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Close performs a best-effort close handshake and closes the socket.
// Only the first call has any effect.
func (c *WebSocketConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, reason)
			// best effort; the peer may already be gone
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		}
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Subprotocol returns the negotiated subprotocol.
func (c *WebSocketConn) Subprotocol() string {
	return c.ws.Subprotocol()
}

// WebSocketURL derives a WebSocket URL from an HTTP(S) base URL and a path.
// http becomes ws and https becomes wss; ws and wss pass through. A non-empty
// path replaces the base path.
func WebSocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("transport: parse url %q: %w", base, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("transport: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("transport: url %q has no host", base)
	}
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		u.Path = path
		u.RawPath = ""
	}
	return u.String(), nil
}
