package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Envelope errors. All of them wrap ErrMalformedEnvelope.
var (
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	ErrMissingType       = &envelopeError{"missing or non-string type"}
	ErrMissingData       = &envelopeError{"missing data"}
)

type envelopeError struct{ msg string }

func (e *envelopeError) Error() string { return "protocol: malformed envelope: " + e.msg }
func (e *envelopeError) Unwrap() error { return ErrMalformedEnvelope }

// Envelope is the text payload convention carried in TEXT frames:
//
//	{"type": "<discriminant>", "data": <value>}
//
// Data is nil for payload-less events and is then omitted on the wire.
type Envelope struct {
	Type string
	Data json.RawMessage
}

// NewEnvelope builds an envelope, serializing data with encoding/json.
// A nil data produces a payload-less envelope.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	env := Envelope{Type: eventType}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// HasData reports whether the envelope carries a data field.
func (e Envelope) HasData() bool {
	return e.Data != nil
}

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{Type: e.Type, Data: e.Data})
}

// ParseEnvelope validates and decodes a text payload into an Envelope.
//
// The payload must be a JSON object whose "type" member is a string. A
// "data" member is required unless payloadless reports the type as
// declared without payload. A nil payloadless treats every type as
// requiring data.
func ParseEnvelope(payload []byte, payloadless func(eventType string) bool) (Envelope, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Envelope{}, ErrMalformedEnvelope
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Envelope{}, ErrMalformedEnvelope
	}

	rawType, ok := fields["type"]
	if !ok {
		return Envelope{}, ErrMissingType
	}
	var eventType string
	if err := json.Unmarshal(rawType, &eventType); err != nil {
		return Envelope{}, ErrMissingType
	}

	env := Envelope{Type: eventType}
	if data, ok := fields["data"]; ok {
		env.Data = data
		return env, nil
	}
	if payloadless != nil && payloadless(eventType) {
		return env, nil
	}
	return Envelope{}, ErrMissingData
}
