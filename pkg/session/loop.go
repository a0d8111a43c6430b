package session

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vango-dev/wsm/pkg/clock"
	"github.com/vango-dev/wsm/pkg/queue"
)

// run is the session event loop. Every state mutation happens here, one task
// at a time. Deferred tasks (chunk yields) run only while no posted task is
// waiting, so a large transfer never starves control traffic.
func (s *Session) run() {
	defer close(s.loopDone)
	for {
		if len(s.deferred) == 0 {
			select {
			case f := <-s.tasks:
				f()
			case <-s.quit:
				return
			}
			continue
		}

		select {
		case f := <-s.tasks:
			f()
		case <-s.quit:
			return
		default:
			f := s.deferred[0]
			s.deferred[0] = nil
			s.deferred = s.deferred[1:]
			f()
		}
	}
}

// post runs f on the loop and waits for it to finish. It returns false if
// the loop has stopped. post must not be called from the loop itself.
func (s *Session) post(f func()) bool {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		f()
	}
	select {
	case s.tasks <- task:
	case <-s.quit:
		return false
	}
	<-done
	return true
}

// yield schedules f to run on the loop after any pending posted work.
// Loop only.
func (s *Session) yield(f func()) {
	s.deferred = append(s.deferred, f)
}

// loopClock runs timer callbacks on the session loop.
type loopClock struct {
	s    *Session
	base clock.Clock
}

func (c loopClock) Now() time.Time { return c.base.Now() }

func (c loopClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return c.base.AfterFunc(d, func() { c.s.post(f) })
}

// dispatcher runs application callbacks in order on its own goroutine so
// that slow handlers never delay frame processing on the loop.
type dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  *queue.Queue[func()]
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		tasks:  queue.New[func()](64),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// push queues f. Calls after close are ignored.
func (d *dispatcher) push(f func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.tasks.Enqueue(f)
	d.mu.Unlock()
	d.signal()
}

// close stops accepting work. Queued work still runs.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		f, ok := d.tasks.Dequeue()
		closed := d.closed
		d.mu.Unlock()

		if ok {
			d.call(f)
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("callback panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	f()
}
