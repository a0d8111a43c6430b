package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/wsm/pkg/emitter"
	"github.com/vango-dev/wsm/pkg/heartbeat"
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/queue"
	"github.com/vango-dev/wsm/pkg/reconnect"
	"github.com/vango-dev/wsm/pkg/transport"
	"go.opentelemetry.io/otel/trace"
)

// CloseStatus describes why a session reached StateClosed.
type CloseStatus struct {
	// Code is the close code sent or received, 0 if none.
	Code int

	// Reason is the close reason text.
	Reason string

	// Err is the failure that ended the session, nil for an orderly close.
	Err error
}

// Session is a resilient client connection. It owns one transport at a
// time, reconnects after abnormal loss, keeps sends made while disconnected
// in order, and routes inbound envelopes to subscribers.
//
// A Session must be created with Connect. All methods are safe for
// concurrent use.
type Session struct {
	id      string
	config  Config
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	// Event loop
	tasks    chan func()
	quit     chan struct{}
	loopDone chan struct{}
	deferred []func()

	// Components
	heartbeat *heartbeat.Monitor
	retry     *reconnect.Policy
	router    *emitter.Router[string, json.RawMessage]
	dispatch  *dispatcher

	// Payload-less event types declared through OnSignal.
	signalMu sync.RWMutex
	signals  map[string]struct{}

	// Loop-owned state
	state       State
	gen         uint64
	conn        transport.Conn
	cancelDial  context.CancelFunc
	connectSpan trace.Span
	queue       *queue.Queue[outbound]
	inflight    *transfer
	terminated  bool
	openWaiters []chan error
	idleWaiters []chan error

	// Published for readers outside the loop
	stateMirror atomic.Int32
	queueLen    atomic.Int64
	done        chan struct{}
	statusMu    sync.Mutex
	status      CloseStatus
}

// Connect creates a session and waits until it is open.
//
// A failed first dial is retried with the reconnect policy. Connect returns
// when the session opens, when the retry budget is spent, or when ctx is
// done; in the last case the session is closed.
//
// Example:
//
//	s, err := session.Connect(ctx, session.Config{URL: "wss://example.com/_ws"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	s.On("connected", func(data json.RawMessage) { ... })
func Connect(ctx context.Context, config Config) (*Session, error) {
	s, err := newSession(config)
	if err != nil {
		return nil, err
	}

	wait := make(chan error, 1)
	if !s.post(func() {
		s.openWaiters = append(s.openWaiters, wait)
		s.connect()
	}) {
		return nil, ErrSessionClosed
	}

	select {
	case err := <-wait:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		s.Close()
		return nil, newSessionError(s.config.URL, "connect", ctx.Err())
	}
}

func newSession(config Config) (*Session, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	id := generateSessionID()
	s := &Session{
		id:       id,
		config:   config,
		logger:   config.Logger.With("session_id", id, "url", config.URL),
		metrics:  config.Metrics,
		tracer:   config.TracerProvider.Tracer(tracerName),
		tasks:    make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		signals:  make(map[string]struct{}),
		queue:    queue.New[outbound](16),
		done:     make(chan struct{}),
	}

	clk := loopClock{s: s, base: config.Clock}
	hb, err := heartbeat.New(heartbeat.Config{
		Interval:  config.PingInterval,
		Timeout:   config.PingTimeout,
		OnPing:    s.onPing,
		OnTimeout: s.onHeartbeatTimeout,
		Clock:     clk,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.heartbeat = hb

	s.retry = reconnect.New(reconnect.Config{
		MaxAttempts:  config.MaxReconnectAttempts,
		BaseInterval: config.ReconnectInterval,
		MaxDelay:     config.MaxReconnectDelay,
		Jitter:       config.ReconnectJitter,
		Clock:        clk,
		Logger:       s.logger,
	})

	s.router = emitter.New[string, json.RawMessage](
		emitter.WithLogger[string, json.RawMessage](s.logger),
		emitter.WithPanicHook[string, json.RawMessage](func(string, any) {
			s.metrics.handlerPanic()
		}),
	)
	s.dispatch = newDispatcher(s.logger)

	go s.run()
	return s, nil
}

// generateSessionID generates a random session ID used to correlate logs.
func generateSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

func (s *Session) mustBeConstructed() {
	if s == nil || s.tasks == nil {
		panic(ErrNotConstructed)
	}
}

// ID returns the session identifier used in logs and spans.
func (s *Session) ID() string {
	s.mustBeConstructed()
	return s.id
}

// URL returns the connection target.
func (s *Session) URL() string {
	s.mustBeConstructed()
	return s.config.URL
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mustBeConstructed()
	return State(s.stateMirror.Load())
}

// IsConnected reports whether the session is open.
func (s *Session) IsConnected() bool {
	return s.State() == StateOpen
}

// QueueLen returns the number of messages waiting to be sent.
func (s *Session) QueueLen() int {
	s.mustBeConstructed()
	return int(s.queueLen.Load())
}

// Done is closed when the session reaches StateClosed for good.
func (s *Session) Done() <-chan struct{} {
	s.mustBeConstructed()
	return s.done
}

// CloseStatus reports why the session closed. It is the zero value while
// the session is alive.
func (s *Session) CloseStatus() CloseStatus {
	s.mustBeConstructed()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Send transmits data, or queues it while the session is not open. Byte
// slices go out as BINARY frames, everything else as TEXT; values other
// than strings and json.RawMessage are JSON-encoded.
func (s *Session) Send(data any) error {
	return s.SendOpcode(data, 0)
}

// SendOpcode is Send with an explicit application opcode. A zero opcode is
// inferred from data.
func (s *Session) SendOpcode(data any, op protocol.Opcode) error {
	s.mustBeConstructed()
	if op == 0 {
		op = protocol.InferOpcode(data)
	}
	if !op.Valid() {
		return fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(op))
	}
	if op.IsControl() {
		return fmt.Errorf("%w: %s", ErrControlOpcode, op)
	}
	payload, err := protocol.Marshal(data)
	if err != nil {
		return newSessionError(s.config.URL, "send", err)
	}
	if !s.post(func() { s.send(outbound{op: op, payload: payload}) }) {
		return ErrSessionClosed
	}
	return nil
}

// Emit sends an envelope {"type": eventType, "data": data}. A nil data
// sends a payload-less envelope.
func (s *Session) Emit(eventType string, data any) error {
	s.mustBeConstructed()
	env, err := protocol.NewEnvelope(eventType, data)
	if err != nil {
		return newSessionError(s.config.URL, "emit", err)
	}
	return s.SendOpcode(env, protocol.OpText)
}

// Flush waits until the session is open with nothing queued or in flight.
func (s *Session) Flush(ctx context.Context) error {
	s.mustBeConstructed()
	wait := make(chan error, 1)
	if !s.post(func() {
		if s.idle() {
			wait <- nil
			return
		}
		s.idleWaiters = append(s.idleWaiters, wait)
	}) {
		return ErrSessionClosed
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the session with a normal closure. It never reconnects.
// Closing a closed session is a no-op.
func (s *Session) Close() error {
	s.mustBeConstructed()
	s.post(func() {
		s.shutdown(transport.CloseNormal, "", nil, true)
	})
	<-s.loopDone
	return nil
}

// CloseWith closes the session with an application close code in the range
// 3000-3999. An invalid or reserved code is rejected before anything else
// happens.
func (s *Session) CloseWith(code protocol.CloseCode, reason string) error {
	s.mustBeConstructed()
	if err := protocol.ValidateCloseCode(code); err != nil {
		return err
	}
	s.post(func() {
		s.shutdown(int(code), reason, nil, true)
	})
	<-s.loopDone
	return nil
}
