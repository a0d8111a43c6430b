// Package transport abstracts the full-duplex socket a session runs over.
//
// A Conn moves whole frames: each WebSocket message carries exactly one
// protocol frame. The session only sees the Dialer and Conn interfaces, so
// tests substitute an in-memory transport and production uses the gorilla
// WebSocket implementation in websocket.go.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// WebSocket close codes used outside the application range.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// ErrConnClosed is returned by operations on a Conn that was closed locally.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is one established connection.
//
// ReadMessage is called from a single reader goroutine. WriteMessage and
// Close may be called from any goroutine.
type Conn interface {
	// ReadMessage blocks until the next message arrives. A close
	// handshake from the peer is reported as *CloseError.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one message.
	WriteMessage(data []byte) error

	// Close sends a close handshake with code and reason, then releases
	// the connection. A zero code skips the handshake.
	Close(code int, reason string) error

	// Subprotocol returns the negotiated subprotocol, if any.
	Subprotocol() string
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string, protocols []string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, protocols []string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string, protocols []string) (Conn, error) {
	return f(ctx, url, protocols)
}

// CloseError reports a close handshake received from the peer.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("transport: closed by peer (code %d)", e.Code)
	}
	return fmt.Sprintf("transport: closed by peer (code %d): %s", e.Code, e.Text)
}

// CloseCode extracts the peer close code from err. It returns false when err
// is not a close handshake.
func CloseCode(err error) (int, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// IsCleanClose reports whether err is a normal-closure handshake (1000).
func IsCleanClose(err error) bool {
	code, ok := CloseCode(err)
	return ok && code == CloseNormal
}
