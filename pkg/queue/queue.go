// Package queue provides the FIFO holding area used for outbound messages
// submitted while a session is disconnected.
package queue

// Queue is a first-in first-out queue backed by a growable ring buffer.
// Items are never reordered, merged or dropped by the queue itself.
//
// Queue is not safe for concurrent use; the owner serializes access.
type Queue[T any] struct {
	buf  []T
	head int
	size int
}

// New creates an empty queue with room for capacity items before growing.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.size
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue[T]) IsEmpty() bool {
	return q.size == 0
}

// Enqueue appends item to the tail.
func (q *Queue[T]) Enqueue(item T) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = item
	q.size++
}

// Dequeue removes and returns the head item.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return item, true
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// DequeueAll removes every item and returns them in submission order.
func (q *Queue[T]) DequeueAll() []T {
	out := make([]T, 0, q.size)
	for {
		item, ok := q.Dequeue()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

// Clear drops every item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	n := q.size
	var zero T
	for i := 0; i < q.size; i++ {
		q.buf[(q.head+i)%len(q.buf)] = zero
	}
	q.head = 0
	q.size = 0
	return n
}

func (q *Queue[T]) grow() {
	if len(q.buf) == 0 {
		q.buf = make([]T, 1)
		return
	}
	next := make([]T, len(q.buf)*2)
	for i := 0; i < q.size; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
