// Package protocol implements the application framing carried inside
// WebSocket messages.
//
// Every transport message is one frame: a single opcode byte followed by the
// payload. The protocol is deliberately thin so that the session layer can
// inspect control traffic without parsing application data.
//
// # Wire Format
//
//	┌─────────────┬───────────────────────────────┐
//	│ Opcode      │ Payload                       │
//	│ (1 byte)    │ (0..N bytes)                  │
//	└─────────────┴───────────────────────────────┘
//
// Only the low 4 bits of the opcode byte are significant.
//
// # Opcodes
//
//   - OpText (0x01): text payload, usually an Envelope
//   - OpBinary (0x02): raw bytes
//   - OpClose (0x08): orderly shutdown, no payload
//   - OpPing (0x09): liveness check, no payload
//   - OpPong (0x0A): liveness answer, no payload
//
// # Envelopes
//
// Application events travel as JSON envelopes inside TEXT frames:
//
//	{"type": "message", "data": {"content": "hello"}}
//	{"type": "ping"}
//
// The "type" member is the dispatch key. Events declared without payload
// omit "data" entirely.
//
// # Chunking
//
// Binary payloads larger than MaxChunkSize (1 MiB) are split with Chunks and
// sent as consecutive BINARY frames.
//
// # Close Codes
//
// Application close codes live in 3000-3999. CloseHeartbeatTimeout (3010) is
// reserved for sessions closed because the peer stopped answering pings.
//
// # Usage Example
//
//	frame, err := protocol.Encode(map[string]string{"type": "hello"}, 0)
//	if err != nil {
//	    // Handle error
//	}
//
//	op, payload, err := protocol.Decode(frame)
//	// op == protocol.OpText
//
// # File Structure
//
//   - opcode.go: Opcode values
//   - frame.go: Frame encoding, decoding and chunking
//   - envelope.go: Envelope parsing and validation
//   - control.go: Close codes and control frames
package protocol
