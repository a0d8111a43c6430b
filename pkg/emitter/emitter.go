// Package emitter provides keyed publish/subscribe dispatch.
//
// Handlers are registered per key and invoked in registration order. Emit
// works on a snapshot of the handler list taken when it starts, so handlers
// may subscribe or unsubscribe during dispatch; the change takes effect from
// the next Emit. A panicking handler is recovered and logged; the
// remaining handlers still run.
package emitter

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// HandlerID identifies a registration for Off.
type HandlerID uint64

// Handler receives the data for one emitted key.
type Handler[D any] func(D)

type entry[D any] struct {
	id HandlerID
	fn Handler[D]
}

// Router dispatches data to handlers keyed by K.
// The zero value is not usable; call New.
type Router[K comparable, D any] struct {
	logger  *slog.Logger
	onPanic func(key K, recovered any)

	mu       sync.Mutex
	nextID   HandlerID
	handlers map[K][]*entry[D]
}

// Option configures a Router.
type Option[K comparable, D any] func(*Router[K, D])

// WithLogger sets the logger used to report handler panics.
func WithLogger[K comparable, D any](logger *slog.Logger) Option[K, D] {
	return func(r *Router[K, D]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPanicHook registers a callback invoked after a handler panic has been
// recovered.
func WithPanicHook[K comparable, D any](fn func(key K, recovered any)) Option[K, D] {
	return func(r *Router[K, D]) {
		r.onPanic = fn
	}
}

// New creates an empty Router.
func New[K comparable, D any](opts ...Option[K, D]) *Router[K, D] {
	r := &Router[K, D]{
		logger:   slog.Default(),
		handlers: make(map[K][]*entry[D]),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers fn for key.
func (r *Router[K, D]) On(key K, fn Handler[D]) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.handlers[key] = append(r.handlers[key], &entry[D]{id: id, fn: fn})
	return id
}

// Once registers fn for a single invocation. The wrapper removes itself
// before calling fn.
func (r *Router[K, D]) Once(key K, fn Handler[D]) HandlerID {
	var id HandlerID
	var once sync.Once
	id = r.On(key, func(data D) {
		fired := false
		once.Do(func() {
			fired = true
			r.Off(key, id)
		})
		if fired {
			fn(data)
		}
	})
	return id
}

// Off removes the given registrations for key. With no ids it removes every
// handler for key.
func (r *Router[K, D]) Off(key K, ids ...HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[key]
	if len(ids) == 0 {
		delete(r.handlers, key)
		return
	}

	drop := make(map[HandlerID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := list[:0:0]
	for _, e := range list {
		if _, ok := drop[e.id]; ok {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(r.handlers, key)
		return
	}
	r.handlers[key] = kept
}

// Len returns the number of handlers registered for key.
func (r *Router[K, D]) Len(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[key])
}

// Emit invokes every handler registered for key when Emit was called, in
// registration order. Emit on a key with no handlers does nothing.
func (r *Router[K, D]) Emit(key K, data D) {
	r.mu.Lock()
	list := r.handlers[key]
	snapshot := make([]*entry[D], len(list))
	copy(snapshot, list)
	r.mu.Unlock()

	for _, e := range snapshot {
		r.invoke(key, e.fn, data)
	}
}

func (r *Router[K, D]) invoke(key K, fn Handler[D], data D) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panic",
				"key", fmt.Sprint(key),
				"panic", rec,
				"stack", string(debug.Stack()))
			if r.onPanic != nil {
				r.onPanic(key, rec)
			}
		}
	}()
	fn(data)
}
