package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/vango-dev/wsm/pkg/clock"
	"github.com/vango-dev/wsm/pkg/transport"
	"go.opentelemetry.io/otel/trace/noop"
)

const testURL = "ws://test.local/_ws"

var errDialRefused = errors.New("dial refused")

type closeCall struct {
	code   int
	reason string
}

// fakeConn is an in-memory transport.Conn.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	closes   []closeCall
	writeErr error

	inbox     chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, transport.ErrConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closes = append(c.closes, closeCall{code, reason})
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Subprotocol() string { return "" }

// deliver makes the peer send one frame.
func (c *fakeConn) deliver(frame []byte) { c.inbox <- frame }

// fail makes the next read return err.
func (c *fakeConn) fail(err error) { c.errs <- err }

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) closeCalls() []closeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]closeCall, len(c.closes))
	copy(out, c.closes)
	return out
}

// hasFrame reports whether frame was written.
func (c *fakeConn) hasFrame(frame []byte) bool {
	for _, f := range c.frames() {
		if bytes.Equal(f, frame) {
			return true
		}
	}
	return false
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fails int
}

func (d *fakeDialer) Dial(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fails > 0 {
		d.fails--
		return nil, errDialRefused
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) failNext(n int) {
	d.mu.Lock()
	d.fails = n
	d.mu.Unlock()
}

func (d *fakeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type testEnv struct {
	s      *Session
	dialer *fakeDialer
	clock  *clock.Fake
	logs   *syncBuffer
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func baseConfig(d *fakeDialer, c *clock.Fake, logs io.Writer) Config {
	return Config{
		URL:               testURL,
		Dialer:            d,
		Clock:             c,
		Logger:            slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		TracerProvider:    noop.NewTracerProvider(),
		ReconnectInterval: time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       60 * time.Second,
	}
}

// connectTest opens a session against a fake transport. mutate may adjust
// the config before connecting.
func connectTest(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		dialer: &fakeDialer{},
		clock:  clock.NewFake(time.Unix(1700000000, 0)),
		logs:   &syncBuffer{},
	}
	cfg := baseConfig(env.dialer, env.clock, env.logs)
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	env.s = s
	t.Cleanup(func() { s.Close() })
	return env
}

// settle waits until the loop has finished the task in progress.
func settle(s *Session) {
	s.post(func() {})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}
