// Package reconnect schedules bounded exponential-backoff retries.
//
// A Policy counts attempts. Each Run schedules the callback after
// Delay(attempts) and bumps the count; once the budget is spent Run returns
// ErrExhausted and logs the exhaustion a single time. The owner calls Reset
// after every successful open and Cancel on teardown.
package reconnect

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
)

// ErrExhausted is returned by Run once the attempt budget is spent.
var ErrExhausted = errors.New("reconnect: retry attempts exhausted")

// Config configures a Policy.
type Config struct {
	// MaxAttempts is the retry budget. Default: 5.
	MaxAttempts int

	// BaseInterval is the delay before the first retry. Default: 1s.
	BaseInterval time.Duration

	// MaxDelay caps the backoff. Default: 30s.
	MaxDelay time.Duration

	// Jitter scales each scheduled delay by a random factor in [0.5, 1.5).
	// Delay(n) itself is unaffected.
	Jitter bool

	// Clock drives the retry timer. Default: clock.Real().
	Clock clock.Clock

	// Logger receives the exhaustion report. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		BaseInterval: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Policy is a bounded exponential backoff scheduler.
type Policy struct {
	max    int
	base   time.Duration
	cap    time.Duration
	jitter bool
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	attempts int
	timer    clock.Timer
	reported bool
	rng      *rand.Rand
}

// New creates a Policy. Zero fields take their defaults.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = def.BaseInterval
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseInterval {
		cfg.MaxDelay = cfg.BaseInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Policy{
		max:    cfg.MaxAttempts,
		base:   cfg.BaseInterval,
		cap:    cfg.MaxDelay,
		jitter: cfg.Jitter,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MaxAttempts returns the retry budget.
func (p *Policy) MaxAttempts() int { return p.max }

// Delay returns min(base * 2^n, cap).
func (p *Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.base
	for i := 0; i < n; i++ {
		if d > p.cap-d {
			return p.cap
		}
		d *= 2
	}
	if d > p.cap {
		return p.cap
	}
	return d
}

// Attempts returns the number of retries scheduled since the last Reset.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// CanRetry reports whether another attempt fits in the budget.
func (p *Policy) CanRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts < p.max
}

// NextDelay returns the delay the next Run would use, without jitter.
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Delay(p.attempts)
}

// Run schedules fn after the next backoff delay and counts the attempt.
// A pending retry is replaced. When the budget is spent Run returns
// ErrExhausted and schedules nothing.
func (p *Policy) Run(fn func()) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempts >= p.max {
		if !p.reported {
			p.reported = true
			p.logger.Error("reconnect attempts exhausted",
				"attempts", p.attempts,
				"max_attempts", p.max)
		}
		return 0, ErrExhausted
	}

	delay := p.Delay(p.attempts)
	if p.jitter {
		delay = time.Duration(float64(delay) * (0.5 + p.rng.Float64()))
	}
	p.attempts++

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.clock.AfterFunc(delay, fn)

	p.logger.Debug("reconnect scheduled",
		"attempt", p.attempts,
		"max_attempts", p.max,
		"delay", delay)
	return delay, nil
}

// Reset zeroes the attempt count after a successful open.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
	p.reported = false
}

// Cancel stops a pending retry. It reports whether one was pending.
func (p *Policy) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer == nil {
		return false
	}
	stopped := p.timer.Stop()
	p.timer = nil
	return stopped
}
