package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for server and peer operations.
var (
	// ErrPeerClosed is returned when writing to a peer that has closed.
	ErrPeerClosed = errors.New("server: peer closed")

	// ErrMaxPeersReached is returned when the server is at its peer limit.
	ErrMaxPeersReached = errors.New("server: max peers reached")

	// ErrTooManyPeersFromIP is returned when one address holds too many peers.
	ErrTooManyPeersFromIP = errors.New("server: too many peers from this IP address")

	// ErrServerStopped is returned once Shutdown has begun.
	ErrServerStopped = errors.New("server: stopped")

	// ErrControlOpcode is returned when a caller tries to send a control frame
	// as application data.
	ErrControlOpcode = errors.New("server: control opcodes cannot be sent as data")
)

// PeerError wraps an error with peer context.
type PeerError struct {
	PeerID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	if e.PeerID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: peer %s: %s: %v", e.PeerID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}
