package protocol

import (
	"errors"
	"fmt"
)

// CloseCode is an application close status sent with a transport close.
//
// Codes 3000-3999 are reserved for libraries, frameworks and applications
// (RFC 6455 section 7.4.2). Callers may only close with codes in that range.
type CloseCode uint16

const (
	CloseCodeMin CloseCode = 3000
	CloseCodeMax CloseCode = 3999

	// CloseHeartbeatTimeout is used internally when the peer stops answering
	// pings. Callers cannot close with it.
	CloseHeartbeatTimeout CloseCode = 3010
)

// Close code errors.
var (
	ErrInvalidCloseCode  = errors.New("protocol: close code must be between 3000 and 3999")
	ErrReservedCloseCode = errors.New("protocol: close code is reserved")
)

var closeReasons = map[CloseCode]string{
	CloseHeartbeatTimeout: "Ping timeout",
}

// String returns the code and its reserved reason, if any.
func (c CloseCode) String() string {
	if reason, ok := closeReasons[c]; ok {
		return fmt.Sprintf("%d (%s)", uint16(c), reason)
	}
	return fmt.Sprintf("%d", uint16(c))
}

// CloseReason returns the reason text registered for a reserved code.
func CloseReason(c CloseCode) string {
	return closeReasons[c]
}

// InRange reports whether the code is in the application range.
func (c CloseCode) InRange() bool {
	return c >= CloseCodeMin && c <= CloseCodeMax
}

// ValidateCloseCode checks a caller-supplied close code.
func ValidateCloseCode(c CloseCode) error {
	if !c.InRange() {
		return fmt.Errorf("%w: got %d", ErrInvalidCloseCode, uint16(c))
	}
	if _, reserved := closeReasons[c]; reserved {
		return fmt.Errorf("%w: %s", ErrReservedCloseCode, c)
	}
	return nil
}

// Pre-encoded control frames. Control frames carry no payload.
var (
	PingFrame  = ControlFrame(OpPing)
	PongFrame  = ControlFrame(OpPong)
	CloseFrame = ControlFrame(OpClose)
)
