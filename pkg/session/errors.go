package session

import (
	"errors"
	"fmt"

	"github.com/vango-dev/wsm/pkg/protocol"
)

// Sentinel errors for session operations.
var (
	// ErrNotConstructed is the panic value for a Session that was not created
	// by Connect.
	ErrNotConstructed = errors.New("session: not constructed; use session.Connect")

	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("session: session closed")

	// ErrInvalidConfig is returned by Connect for an unusable Config.
	ErrInvalidConfig = errors.New("session: invalid config")

	// ErrRetriesExhausted is reported once the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("session: reconnect attempts exhausted")

	// ErrHeartbeatTimeout is reported when the peer stops answering pings.
	ErrHeartbeatTimeout = errors.New("session: heartbeat timeout")

	// ErrControlOpcode is returned when a caller tries to send a control frame.
	// Ping, pong and close are managed by the session.
	ErrControlOpcode = errors.New("session: control opcodes cannot be sent directly")

	// ErrUnknownOpcode is returned for an opcode outside the protocol.
	ErrUnknownOpcode = errors.New("session: unknown opcode")

	// ErrInvalidCloseCode and ErrReservedCloseCode are returned by CloseWith.
	ErrInvalidCloseCode  = protocol.ErrInvalidCloseCode
	ErrReservedCloseCode = protocol.ErrReservedCloseCode
)

// SessionError wraps an error with session context.
type SessionError struct {
	URL string
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

func newSessionError(url, op string, err error) *SessionError {
	return &SessionError{URL: url, Op: op, Err: err}
}
