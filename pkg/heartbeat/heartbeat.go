// Package heartbeat implements the periodic liveness check used to detect a
// silently dead connection.
//
// A Monitor calls OnPing every Interval. After each ping it checks how long
// it has been since the last pong; once that exceeds Timeout it calls
// OnTimeout. The monitor never touches the transport itself: the owner
// decides what a timeout means (usually closing the session, which stops the
// monitor).
package heartbeat

import (
	"errors"
	"sync"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
)

// Configuration errors.
var (
	ErrInvalidInterval = errors.New("heartbeat: ping interval must be positive")
	ErrInvalidTimeout  = errors.New("heartbeat: ping timeout must be greater than ping interval")
)

// Config configures a Monitor.
type Config struct {
	// Interval is the time between pings.
	Interval time.Duration

	// Timeout is how long the monitor waits for a pong before reporting a
	// timeout. Must be greater than Interval.
	Timeout time.Duration

	// OnPing is called on every tick. Required.
	OnPing func()

	// OnTimeout is called once per expiry. Required.
	OnTimeout func()

	// Clock drives the ticks. Default: clock.Real().
	Clock clock.Clock
}

// Monitor tracks liveness of one connection.
type Monitor struct {
	interval  time.Duration
	timeout   time.Duration
	onPing    func()
	onTimeout func()
	clock     clock.Clock

	mu       sync.Mutex
	timer    clock.Timer
	gen      uint64
	running  bool
	expired  bool
	lastPong time.Time
}

// New validates cfg and creates a stopped Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if cfg.Timeout <= cfg.Interval {
		return nil, ErrInvalidTimeout
	}
	if cfg.OnPing == nil || cfg.OnTimeout == nil {
		return nil, errors.New("heartbeat: OnPing and OnTimeout are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Monitor{
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		onPing:    cfg.OnPing,
		onTimeout: cfg.OnTimeout,
		clock:     cfg.Clock,
	}, nil
}

// Start begins ticking. The pong clock starts now, so a peer gets a full
// Timeout to answer. Starting a running monitor restarts it.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.gen++
	m.running = true
	m.expired = false
	m.lastPong = m.clock.Now()
	m.scheduleLocked(m.gen)
}

// Stop cancels the ticker and clears the last pong time.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// UpdateLastPongTime records a pong observed now.
func (m *Monitor) UpdateLastPongTime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPong = m.clock.Now()
	m.expired = false
}

// LastPong returns the last observed pong time. It is zero while stopped.
func (m *Monitor) LastPong() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPong
}

// Running reports whether the monitor is ticking.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.running = false
	m.expired = false
	m.lastPong = time.Time{}
}

func (m *Monitor) scheduleLocked(gen uint64) {
	m.timer = m.clock.AfterFunc(m.interval, func() { m.tick(gen) })
}

func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.scheduleLocked(gen)
	m.mu.Unlock()

	m.onPing()

	m.mu.Lock()
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}
	fire := !m.expired && m.clock.Now().Sub(m.lastPong) > m.timeout
	if fire {
		m.expired = true
	}
	m.mu.Unlock()

	if fire {
		m.onTimeout()
	}
}
