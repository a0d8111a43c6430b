package session

// State is the connection state of a Session.
type State int32

const (
	// StateClosed is the terminal state: explicit close, peer close, heartbeat
	// timeout without reconnect, or exhausted retries.
	StateClosed State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means frames flow both ways.
	StateOpen

	// StateClosing is the short teardown window of an explicit close.
	StateClosing

	// StateReconnecting means the connection was lost and a retry is
	// scheduled.
	StateReconnecting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
