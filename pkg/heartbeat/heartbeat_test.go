package heartbeat

import (
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
)

type recorder struct {
	pings    int
	timeouts int
}

func newMonitor(t *testing.T, c *clock.Fake, interval, timeout time.Duration) (*Monitor, *recorder) {
	t.Helper()
	r := &recorder{}
	m, err := New(Config{
		Interval:  interval,
		Timeout:   timeout,
		OnPing:    func() { r.pings++ },
		OnTimeout: func() { r.timeouts++ },
		Clock:     c,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, r
}

func TestNewValidation(t *testing.T) {
	noop := func() {}
	tests := []struct {
		name     string
		interval time.Duration
		timeout  time.Duration
		want     error
	}{
		{"valid", time.Second, 2 * time.Second, nil},
		{"timeout equals interval", time.Second, time.Second, ErrInvalidTimeout},
		{"timeout below interval", 2 * time.Second, time.Second, ErrInvalidTimeout},
		{"zero interval", 0, time.Second, ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Interval: tt.interval, Timeout: tt.timeout, OnPing: noop, OnTimeout: noop})
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPingsEveryInterval(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m, r := newMonitor(t, c, time.Second, 3*time.Second)

	m.Start()
	defer m.Stop()
	if !m.LastPong().Equal(c.Now()) {
		t.Fatalf("LastPong() = %v, want start time", m.LastPong())
	}

	c.Advance(time.Second)
	m.UpdateLastPongTime()
	c.Advance(time.Second)
	m.UpdateLastPongTime()
	c.Advance(time.Second)

	if r.pings != 3 {
		t.Fatalf("pings = %d, want 3", r.pings)
	}
	if r.timeouts != 0 {
		t.Fatalf("timeouts = %d, want 0", r.timeouts)
	}
}

func TestTimeoutFiresOnce(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m, r := newMonitor(t, c, 100*time.Millisecond, 250*time.Millisecond)

	m.Start()
	defer m.Stop()

	c.Advance(200 * time.Millisecond)
	if r.timeouts != 0 {
		t.Fatalf("timeout before deadline")
	}
	c.Advance(100 * time.Millisecond)
	if r.timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", r.timeouts)
	}
	c.Advance(time.Second)
	if r.timeouts != 1 {
		t.Fatalf("timeouts = %d after further ticks, want 1", r.timeouts)
	}

	// a pong re-arms the latch
	m.UpdateLastPongTime()
	c.Advance(300 * time.Millisecond)
	if r.timeouts != 2 {
		t.Fatalf("timeouts = %d after re-arm, want 2", r.timeouts)
	}
}

func TestStopCancelsTicks(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m, r := newMonitor(t, c, time.Second, 2*time.Second)

	m.Start()
	c.Advance(time.Second)
	m.Stop()

	if m.Running() {
		t.Fatal("Running() = true after Stop")
	}
	if !m.LastPong().IsZero() {
		t.Fatal("LastPong() not cleared by Stop")
	}
	c.Advance(10 * time.Second)
	if r.pings != 1 {
		t.Fatalf("pings = %d, want 1", r.pings)
	}
	if r.timeouts != 0 {
		t.Fatalf("timeouts = %d, want 0", r.timeouts)
	}
}

func TestRestartDropsStaleTimer(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m, r := newMonitor(t, c, time.Second, 2*time.Second)

	m.Start()
	c.Advance(500 * time.Millisecond)
	m.Start()
	c.Advance(500 * time.Millisecond)
	if r.pings != 0 {
		t.Fatalf("stale tick fired after restart")
	}
	c.Advance(500 * time.Millisecond)
	if r.pings != 1 {
		t.Fatalf("pings = %d, want 1", r.pings)
	}
	m.Stop()
}

func TestStopFromTimeoutCallback(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	var m *Monitor
	timeouts := 0
	m, err := New(Config{
		Interval: time.Second,
		Timeout:  1500 * time.Millisecond,
		OnPing:   func() {},
		OnTimeout: func() {
			timeouts++
			m.Stop()
		},
		Clock: c,
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	c.Advance(10 * time.Second)
	if timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", timeouts)
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d after Stop, want 0", c.Pending())
	}
}
