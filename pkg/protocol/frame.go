package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header (the opcode byte).
	FrameHeaderSize = 1

	// MaxChunkSize is the largest payload sent in a single application frame.
	// Larger binary payloads are split into ordered sub-frames.
	MaxChunkSize = 1 << 20 // 1 MiB
)

// Frame errors.
var (
	ErrEmptyFrame  = errors.New("protocol: empty frame")
	ErrInvalidData = errors.New("protocol: unsupported payload")
)

// Frame is one opcode byte followed by the payload bytes.
//
// Wire format:
//
//	┌─────────────┬───────────────────────────────┐
//	│ Opcode      │ Payload                       │
//	│ (1 byte)    │ (0..N bytes)                  │
//	└─────────────┴───────────────────────────────┘
type Frame []byte

// Opcode returns the frame opcode. An empty frame has opcode 0.
func (f Frame) Opcode() Opcode {
	if len(f) == 0 {
		return 0
	}
	return OpcodeOf(f[0])
}

// Payload returns the bytes following the opcode byte.
func (f Frame) Payload() []byte {
	if len(f) <= FrameHeaderSize {
		return nil
	}
	return f[FrameHeaderSize:]
}

// NewFrame prepends the opcode to payload. The payload is copied.
func NewFrame(op Opcode, payload []byte) Frame {
	buf := make([]byte, FrameHeaderSize+len(payload))
	buf[0] = byte(op & OpcodeMask)
	copy(buf[FrameHeaderSize:], payload)
	return buf
}

// ControlFrame returns a zero-payload control frame.
func ControlFrame(op Opcode) Frame {
	return Frame{byte(op & OpcodeMask)}
}

// InferOpcode picks the opcode used when a caller does not supply one:
// byte slices are binary, everything else is text.
func InferOpcode(data any) Opcode {
	if _, ok := data.([]byte); ok {
		return OpBinary
	}
	return OpText
}

// Encode converts data to a frame. If op is zero it is inferred with
// InferOpcode. Strings are encoded as UTF-8, json.RawMessage is passed
// through, byte slices are used as-is, and any other value is serialized
// with encoding/json.
func Encode(data any, op Opcode) (Frame, error) {
	if op == 0 {
		op = InferOpcode(data)
	}
	payload, err := Marshal(data)
	if err != nil {
		return nil, err
	}
	return NewFrame(op, payload), nil
}

// Marshal returns the payload bytes for data without the opcode byte.
func Marshal(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	case Envelope:
		return v.MarshalJSON()
	case *Envelope:
		if v == nil {
			return nil, ErrInvalidData
		}
		return v.MarshalJSON()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return b, nil
	}
}

// Decode splits a frame into its opcode and payload. The payload aliases
// the input. Empty frames are rejected with ErrEmptyFrame.
func Decode(frame []byte) (Opcode, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return OpcodeOf(frame[0]), frame[FrameHeaderSize:], nil
}

// Chunks splits payload into ordered slices of at most size bytes.
// A size <= 0 uses MaxChunkSize. An empty payload yields one empty chunk so
// that the caller still transmits a frame.
func Chunks(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = MaxChunkSize
	}
	if len(payload) <= size {
		return [][]byte{payload}
	}
	n := (len(payload) + size - 1) / size
	out := make([][]byte, 0, n)
	for start := 0; start < len(payload); start += size {
		end := min(start+size, len(payload))
		out = append(out, payload[start:end])
	}
	return out
}
