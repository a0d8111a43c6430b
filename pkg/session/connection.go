package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/transport"
	"go.opentelemetry.io/otel/attribute"
)

// connect starts a dial. Loop only.
func (s *Session) connect() {
	if s.terminated {
		return
	}
	switch s.state {
	case StateOpen:
		s.logger.Warn("connect called while already open")
		return
	case StateConnecting:
		return
	}

	s.gen++
	gen := s.gen
	s.setState(StateConnecting)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.connectSpan = s.startSpan("wsm.connect", attribute.Int("wsm.attempt", s.retry.Attempts()))

	dialer := s.config.Dialer
	url, protocols := s.config.URL, s.config.Protocols
	go func() {
		conn, err := dialer.Dial(ctx, url, protocols)
		delivered := s.post(func() { s.handleDial(gen, conn, err) })
		if !delivered && conn != nil {
			conn.Close(transport.CloseGoingAway, "")
		}
	}()
}

// handleDial completes a dial started by connect. Loop only.
func (s *Session) handleDial(gen uint64, conn transport.Conn, err error) {
	if gen != s.gen || s.terminated || s.state != StateConnecting {
		if conn != nil {
			conn.Close(transport.CloseGoingAway, "")
		}
		return
	}
	s.stopDial()

	if err != nil {
		endSpan(s.connectSpan, err)
		s.connectSpan = nil
		s.logger.Warn("dial failed", "error", err)
		s.handleConnLoss(err)
		return
	}
	endSpan(s.connectSpan, nil)
	s.connectSpan = nil

	s.conn = conn
	s.setState(StateOpen)
	s.retry.Reset()
	s.heartbeat.Start()
	s.logger.Info("session open", "subprotocol", conn.Subprotocol())

	go s.readLoop(gen, conn)

	s.pump()

	for _, w := range s.openWaiters {
		w <- nil
	}
	s.openWaiters = nil
}

// readLoop feeds inbound messages to the loop until the connection fails.
func (s *Session) readLoop(gen uint64, conn transport.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.post(func() { s.handleReadError(gen, err) })
			return
		}
		if !s.post(func() { s.handleFrame(gen, data) }) {
			return
		}
	}
}

// handleReadError decides between an orderly peer close and a reconnect.
// Loop only.
func (s *Session) handleReadError(gen uint64, err error) {
	if gen != s.gen || s.state != StateOpen {
		return
	}
	var ce *transport.CloseError
	if errors.As(err, &ce) && ce.Code == transport.CloseNormal {
		s.logger.Info("closed by peer", "code", ce.Code, "reason", ce.Text)
		s.shutdown(ce.Code, ce.Text, nil, false)
		return
	}
	s.logger.Warn("connection lost", "error", err)
	s.handleConnLoss(err)
}

// handleConnLoss tears down the current connection and schedules a retry,
// or closes the session for good once the budget is spent. Loop only.
func (s *Session) handleConnLoss(cause error) {
	s.heartbeat.Stop()
	s.stopDial()
	s.gen++

	if s.conn != nil {
		s.conn.Close(0, "")
		s.conn = nil
	}
	if t := s.inflight; t != nil {
		s.inflight = nil
		s.requeueFront(t.item)
	}

	s.setState(StateReconnecting)

	delay, err := s.retry.Run(s.connect)
	if err != nil {
		s.metrics.exhausted()
		s.terminate(CloseStatus{
			Reason: "reconnect attempts exhausted",
			Err:    newSessionError(s.config.URL, "reconnect", fmt.Errorf("%w: %w", ErrRetriesExhausted, cause)),
		})
		return
	}
	s.metrics.reconnect()
	s.logger.Info("reconnect scheduled",
		"attempt", s.retry.Attempts(),
		"max_attempts", s.retry.MaxAttempts(),
		"delay", delay,
		"queued", s.queue.Len())
}

// shutdown performs an orderly close. It never schedules a retry.
// Loop only.
func (s *Session) shutdown(code int, reason string, cause error, sendClose bool) {
	if s.terminated {
		return
	}
	span := s.startSpan("wsm.close",
		attribute.Int("wsm.close_code", code),
		attribute.String("wsm.close_reason", reason))

	s.setState(StateClosing)
	s.heartbeat.Stop()
	s.retry.Cancel()
	s.stopDial()

	if s.conn != nil {
		if sendClose {
			if err := s.write(protocol.CloseFrame); err != nil {
				s.logger.Debug("close frame not sent", "error", err)
			}
		}
		if err := s.conn.Close(code, reason); err != nil {
			s.logger.Debug("transport close", "error", err)
		}
		s.conn = nil
	}

	s.terminate(CloseStatus{Code: code, Reason: reason, Err: cause})
	endSpan(span, cause)
}

// terminate moves the session to StateClosed for good and stops the loop.
// Loop only.
func (s *Session) terminate(status CloseStatus) {
	s.terminated = true
	s.gen++
	s.heartbeat.Stop()
	s.retry.Cancel()
	s.stopDial()
	if s.connectSpan != nil {
		endSpan(s.connectSpan, ErrSessionClosed)
		s.connectSpan = nil
	}

	abandoned := s.queue.Clear()
	if s.inflight != nil {
		abandoned++
		s.inflight = nil
	}
	s.syncQueueLen()
	if abandoned > 0 {
		s.logger.Warn("abandoning queued messages", "count", abandoned)
	}

	s.setState(StateClosed)

	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	waitErr := status.Err
	if waitErr == nil {
		waitErr = ErrSessionClosed
	}
	for _, w := range s.openWaiters {
		w <- waitErr
	}
	s.openWaiters = nil
	for _, w := range s.idleWaiters {
		w <- waitErr
	}
	s.idleWaiters = nil

	if status.Err != nil {
		s.logger.Error("session closed", "code", status.Code, "reason", status.Reason, "error", status.Err)
	} else {
		s.logger.Info("session closed", "code", status.Code, "reason", status.Reason)
	}

	close(s.done)
	s.dispatch.close()
	close(s.quit)
}

func (s *Session) stopDial() {
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
}

// setState records a transition and notifies observers. Loop only.
func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.stateMirror.Store(int32(to))
	s.metrics.transition(from, to)
	s.logger.Debug("state change", "from", from.String(), "to", to.String())
	if fn := s.config.OnStateChange; fn != nil {
		s.dispatch.push(func() { fn(from, to) })
	}
}

// onPing is the heartbeat tick. Loop only.
func (s *Session) onPing() {
	if s.state != StateOpen {
		return
	}
	if err := s.write(protocol.PingFrame); err != nil {
		s.logger.Debug("ping not sent", "error", err)
	}
}

// onHeartbeatTimeout closes the connection with the reserved heartbeat code.
// Loop only.
func (s *Session) onHeartbeatTimeout() {
	if s.state != StateOpen {
		return
	}
	code := protocol.CloseHeartbeatTimeout
	reason := protocol.CloseReason(code)
	s.metrics.heartbeatTimeout()
	s.logger.Warn("heartbeat timeout",
		"timeout", s.config.PingTimeout,
		"last_pong", s.heartbeat.LastPong())

	if !s.config.ReconnectOnHeartbeatTimeout {
		s.shutdown(int(code), reason, ErrHeartbeatTimeout, true)
		return
	}
	if s.conn != nil {
		s.write(protocol.CloseFrame)
		s.conn.Close(int(code), reason)
		s.conn = nil
	}
	s.handleConnLoss(ErrHeartbeatTimeout)
}
