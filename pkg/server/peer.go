package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/wsm/pkg/protocol"
)

// Peer is one connected client. Its methods are safe for concurrent use.
type Peer struct {
	id     string
	ip     string
	conn   *websocket.Conn
	server *Server
	logger *slog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	connectedAt time.Time
}

func newPeer(s *Server, conn *websocket.Conn, ip, requestID string) *Peer {
	id := generatePeerID()
	logger := s.logger.With("peer_id", id, "ip", ip)
	if requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	return &Peer{
		id:          id,
		ip:          ip,
		conn:        conn,
		server:      s,
		logger:      logger,
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

func generatePeerID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// ID returns the peer identifier.
func (p *Peer) ID() string { return p.id }

// RemoteIP returns the client address used for per-IP limits.
func (p *Peer) RemoteIP() string { return p.ip }

// Subprotocol returns the negotiated WebSocket subprotocol.
func (p *Peer) Subprotocol() string { return p.conn.Subprotocol() }

// ConnectedAt returns when the upgrade completed.
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// Done is closed when the peer is gone.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Send writes data as one frame. Byte slices go out as BINARY, everything
// else as TEXT.
func (p *Peer) Send(data any) error {
	return p.SendOpcode(data, 0)
}

// SendOpcode writes data with an explicit application opcode.
func (p *Peer) SendOpcode(data any, op protocol.Opcode) error {
	if op.IsControl() {
		return ErrControlOpcode
	}
	frame, err := protocol.Encode(data, op)
	if err != nil {
		return &PeerError{PeerID: p.id, Op: "send", Err: err}
	}
	return p.write(frame)
}

// Emit writes the envelope {"type": eventType, "data": data}.
func (p *Peer) Emit(eventType string, data any) error {
	env, err := protocol.NewEnvelope(eventType, data)
	if err != nil {
		return &PeerError{PeerID: p.id, Op: "emit", Err: err}
	}
	return p.SendOpcode(env, protocol.OpText)
}

// Ping writes a PING frame. The client answers with PONG.
func (p *Peer) Ping() error {
	return p.write(protocol.PingFrame)
}

// Close sends a CLOSE frame and closes the transport with code.
// A zero code means normal closure.
func (p *Peer) Close(code int, reason string) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	if err := p.write(protocol.CloseFrame); err != nil {
		p.logger.Debug("close frame not sent", "error", err)
	}
	p.shutdown(code, reason)
	return nil
}

func (p *Peer) write(frame protocol.Frame) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(p.server.config.WriteTimeout))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		p.server.metrics.writeError()
		return &PeerError{PeerID: p.id, Op: "write", Err: err}
	}
	p.server.metrics.frameSent(frame.Opcode())
	return nil
}

// shutdown closes the transport once. A non-zero code is sent as the
// WebSocket close status.
func (p *Peer) shutdown(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if code != 0 {
			p.writeMu.Lock()
			msg := websocket.FormatCloseMessage(code, reason)
			p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.server.config.WriteTimeout))
			p.writeMu.Unlock()
		}
		p.conn.Close()
		close(p.done)
	})
}

// serve reads frames until the connection ends.
func (p *Peer) serve() {
	defer p.server.release(p)

	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if !p.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				p.logger.Warn("read error", "error", err)
			} else {
				p.logger.Debug("read loop done", "error", err)
			}
			p.shutdown(0, "")
			return
		}
		if !p.handle(msg) {
			return
		}
	}
}

// handle processes one frame. It returns false once the peer has closed.
func (p *Peer) handle(msg []byte) bool {
	op, payload, err := protocol.Decode(msg)
	if err != nil {
		p.logger.Debug("empty frame ignored")
		return true
	}
	p.server.metrics.frameReceived(op)

	switch op {
	case protocol.OpPing:
		if err := p.write(protocol.PongFrame); err != nil {
			p.logger.Debug("pong not sent", "error", err)
		}

	case protocol.OpPong:
		p.logger.Debug("pong received")

	case protocol.OpClose:
		p.logger.Info("close frame received")
		p.shutdown(websocket.CloseNormalClosure, "")
		return false

	case protocol.OpText, protocol.OpBinary:
		env, err := protocol.ParseEnvelope(payload, anyType)
		switch {
		case err == nil:
			p.logger.Debug("envelope received", "type", env.Type)
			if fn := p.server.config.OnEnvelope; fn != nil {
				p.server.callHook("OnEnvelope", p, func() { fn(p, env) })
			}
		case op == protocol.OpText:
			p.logger.Info("text message", "text", string(payload))
			if fn := p.server.config.OnText; fn != nil {
				p.server.callHook("OnText", p, func() { fn(p, string(payload)) })
			}
		default:
			p.logger.Info("binary message", "bytes", len(payload))
			if fn := p.server.config.OnBinary; fn != nil {
				p.server.callHook("OnBinary", p, func() { fn(p, payload) })
			}
		}

	default:
		p.logger.Warn("unknown opcode", "opcode", uint8(op))
	}
	return true
}

// anyType accepts envelopes without data for every type.
func anyType(string) bool { return true }
