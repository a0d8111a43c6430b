// Package errors provides structured, actionable error messages for the wsm
// CLI.
//
// Each error carries a stable code (e.g., "W002") that maps to a short
// message, an explanation, and a hint:
//
//	err := errors.New("W002").Wrap(cause)
//	errors.Print(os.Stderr, err)
//	// Output:
//	// ERROR W002: Reconnect attempts exhausted
//	//
//	//   The connection was lost and every scheduled retry failed.
//	//
//	//   Cause: session: reconnect ws://localhost:8080/_ws: ...
//	//
//	//   Hint: Raise session.maxReconnectAttempts or check the network path to the server
//
// Codes are grouped by category: connection (W001-W019), protocol
// (W020-W039), config (W040-W059), source (W060-W079), cli (W080-W099).
package errors
