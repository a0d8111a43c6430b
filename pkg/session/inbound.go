package session

import (
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/transport"
)

// handleFrame processes one inbound frame. Control frames are consumed here
// on the loop; application envelopes are handed to the dispatcher.
// Loop only.
func (s *Session) handleFrame(gen uint64, data []byte) {
	if gen != s.gen || s.state != StateOpen {
		return
	}
	if len(data) == 0 {
		s.metrics.drop(dropEmptyFrame)
		s.logger.Debug("empty frame ignored")
		return
	}

	op, payload, _ := protocol.Decode(data)
	s.metrics.frameReceived(op, len(data))

	switch op {
	case protocol.OpPing:
		if err := s.write(protocol.PongFrame); err != nil {
			s.logger.Debug("pong not sent", "error", err)
		}

	case protocol.OpPong:
		s.heartbeat.UpdateLastPongTime()

	case protocol.OpClose:
		s.logger.Info("close frame received")
		s.shutdown(transport.CloseNormal, "closed by peer", nil, false)

	case protocol.OpText, protocol.OpBinary:
		env, err := protocol.ParseEnvelope(payload, s.isSignal)
		if err != nil {
			s.metrics.drop(dropMalformed)
			s.logger.Warn("dropping malformed envelope",
				"opcode", op.String(),
				"bytes", len(payload),
				"error", err)
			return
		}
		s.dispatch.push(func() { s.router.Emit(env.Type, env.Data) })

	default:
		s.metrics.drop(dropUnknownOpcode)
		s.logger.Warn("dropping frame with unknown opcode", "opcode", uint8(op))
	}
}

func (s *Session) isSignal(eventType string) bool {
	s.signalMu.RLock()
	defer s.signalMu.RUnlock()
	_, ok := s.signals[eventType]
	return ok
}
