package reconnect

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
)

func TestDelay(t *testing.T) {
	p := New(Config{MaxAttempts: 8, BaseInterval: time.Second, MaxDelay: 30 * time.Second})

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{62, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestDelayMatchesFormula(t *testing.T) {
	tests := []struct {
		name  string
		base  time.Duration
		limit time.Duration
	}{
		{"round cap", 250 * time.Millisecond, 10 * time.Second},
		{"odd cap", time.Second, 2*time.Second + time.Nanosecond},
		{"odd nanosecond cap", 3, 7},
		{"cap equals base", time.Second, time.Second},
		{"near max duration", time.Hour, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{MaxAttempts: 64, BaseInterval: tt.base, MaxDelay: tt.limit})
			for n := 0; n < p.MaxAttempts(); n++ {
				if got, want := p.Delay(n), expectedDelay(tt.base, tt.limit, n); got != want {
					t.Fatalf("Delay(%d) = %v, want %v", n, got, want)
				}
			}
		})
	}
}

// expectedDelay computes min(base*2^n, limit) without overflowing.
func expectedDelay(base, limit time.Duration, n int) time.Duration {
	want := new(big.Int).Lsh(big.NewInt(int64(base)), uint(n))
	if want.Cmp(big.NewInt(int64(limit))) > 0 {
		return limit
	}
	return time.Duration(want.Int64())
}

func TestRunSchedulesWithBackoff(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	p := New(Config{MaxAttempts: 3, BaseInterval: time.Second, MaxDelay: time.Minute, Clock: c})

	calls := 0
	delay, err := p.Run(func() { calls++ })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if delay != time.Second {
		t.Fatalf("Run() delay = %v, want 1s", delay)
	}
	if p.Attempts() != 1 {
		t.Fatalf("Attempts() = %d, want 1", p.Attempts())
	}

	c.Advance(999 * time.Millisecond)
	if calls != 0 {
		t.Fatal("callback fired early")
	}
	c.Advance(time.Millisecond)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	if d := p.NextDelay(); d != 2*time.Second {
		t.Fatalf("NextDelay() = %v, want 2s", d)
	}
}

func TestRunExhaustionReportedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := clock.NewFake(time.Unix(0, 0))
	p := New(Config{MaxAttempts: 2, BaseInterval: time.Second, Clock: c, Logger: logger})

	for i := 0; i < 2; i++ {
		if _, err := p.Run(func() {}); err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
	}
	if p.CanRetry() {
		t.Fatal("CanRetry() = true after budget spent")
	}
	pending := c.Pending()

	for i := 0; i < 3; i++ {
		if _, err := p.Run(func() { t.Fatal("exhausted policy scheduled a retry") }); !errors.Is(err, ErrExhausted) {
			t.Fatalf("Run() error = %v, want ErrExhausted", err)
		}
	}
	if c.Pending() != pending {
		t.Fatalf("exhausted Run scheduled a timer")
	}
	if n := strings.Count(buf.String(), "reconnect attempts exhausted"); n != 1 {
		t.Fatalf("exhaustion logged %d times, want 1", n)
	}
}

func TestResetAndCancel(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	p := New(Config{MaxAttempts: 1, BaseInterval: time.Second, Clock: c})

	fired := false
	if _, err := p.Run(func() { fired = true }); err != nil {
		t.Fatal(err)
	}
	if !p.Cancel() {
		t.Fatal("Cancel() = false with a pending retry")
	}
	if p.Cancel() {
		t.Fatal("second Cancel() = true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("cancelled retry fired")
	}

	p.Reset()
	if p.Attempts() != 0 || !p.CanRetry() {
		t.Fatalf("Reset() left attempts = %d", p.Attempts())
	}
	if _, err := p.Run(func() { fired = true }); err != nil {
		t.Fatalf("Run() after Reset error = %v", err)
	}
	c.Advance(time.Second)
	if !fired {
		t.Fatal("retry after Reset did not fire")
	}
}

func TestJitterBounds(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	p := New(Config{MaxAttempts: 100, BaseInterval: time.Second, MaxDelay: time.Second, Jitter: true, Clock: c})

	for i := 0; i < 100; i++ {
		d, err := p.Run(func() {})
		if err != nil {
			t.Fatal(err)
		}
		if d < 500*time.Millisecond || d >= 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0.5s, 1.5s)", d)
		}
	}
}

func TestDefaults(t *testing.T) {
	p := New(Config{})
	if p.MaxAttempts() != 5 {
		t.Errorf("MaxAttempts() = %d, want 5", p.MaxAttempts())
	}
	if p.Delay(0) != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", p.Delay(0))
	}
	if p.Delay(10) != 30*time.Second {
		t.Errorf("Delay(10) = %v, want 30s", p.Delay(10))
	}
}
