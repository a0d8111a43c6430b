package protocol

// Opcode identifies the purpose of a frame. Only the low 4 bits are significant.
type Opcode uint8

const (
	OpText   Opcode = 0x01 // Text-encoded payload (envelopes)
	OpBinary Opcode = 0x02 // Raw bytes
	OpClose  Opcode = 0x08 // Orderly shutdown
	OpPing   Opcode = 0x09 // Liveness check
	OpPong   Opcode = 0x0A // Liveness answer

	// OpcodeMask selects the opcode bits of the first frame byte.
	OpcodeMask Opcode = 0x0F
)

// String returns the string representation of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpText:
		return "Text"
	case OpBinary:
		return "Binary"
	case OpClose:
		return "Close"
	case OpPing:
		return "Ping"
	case OpPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// IsControl reports whether the opcode is consumed by the session itself
// (ping, pong, close) rather than routed to the application.
func (op Opcode) IsControl() bool {
	return op == OpClose || op == OpPing || op == OpPong
}

// Valid reports whether the opcode is one of the defined values.
func (op Opcode) Valid() bool {
	switch op {
	case OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

// OpcodeOf extracts the opcode from the first byte of a frame.
func OpcodeOf(b byte) Opcode {
	return Opcode(b) & OpcodeMask
}
