// Package session provides the resilient client session for the wsm framing
// protocol.
//
// A Session owns one transport connection at a time. It keeps the logical
// session alive across network interruptions, detects silent peers with a
// ping/pong heartbeat, holds messages sent while disconnected in submission
// order, and routes inbound event envelopes to subscribers.
//
// # Lifecycle
//
//	CLOSED → CONNECTING → OPEN → CLOSING → CLOSED
//	                  ↘    ↓
//	                 RECONNECTING → CONNECTING
//
// Connect is the only way to create a Session. An abnormal close or dial
// failure moves the session to RECONNECTING and schedules a retry with
// bounded exponential backoff; once the budget is spent the session settles
// in CLOSED and CloseStatus reports ErrRetriesExhausted. Close, CloseWith,
// a CLOSE frame from the peer, and a normal WebSocket closure never
// reconnect. A heartbeat timeout closes with code 3010 ("Ping timeout").
//
// # Sending
//
//	s.Send("plain text")                       // TEXT
//	s.Send([]byte{0x01, 0x02})                 // BINARY
//	s.Emit("todo:add", Todo{Title: "milk"})    // TEXT envelope
//
// Sends made while the session is not open are queued and flushed in order
// after the next open. Binary payloads above Config.ChunkSize are written as
// ordered chunks; the loop yields between chunks and no other application
// message is written until the transfer completes.
//
// # Receiving
//
//	s.On("connected", func(data json.RawMessage) { ... })
//	s.OnSignal("refresh", func() { ... })
//	session.Handle(s, "todo:added", func(t Todo) { ... })
//
// Ping, pong and close frames are handled on the session loop. Envelopes are
// dispatched on a separate goroutine in arrival order, so a slow handler
// never delays the heartbeat. Malformed envelopes are logged and dropped.
//
// # Concurrency
//
// All state lives on one event-loop goroutine per session. Public methods
// post work to the loop and wait for it; timers fire on the loop through a
// loop-bound clock. Handlers may call any Session method.
//
// # Observability
//
// Logs go to Config.Logger with session_id and url attributes. Set
// Config.Metrics to a NewMetrics value to export Prometheus collectors.
// Dials and closes are traced with OpenTelemetry spans named wsm.connect and
// wsm.close.
package session
