package queue

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := New[int](2)
	if !q.IsEmpty() {
		t.Fatal("new queue not empty")
	}

	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	if q.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", q.Len())
	}

	for want := 0; want < 10; want++ {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() ok = false at %d", want)
		}
		if got != want {
			t.Fatalf("Dequeue() = %d, want %d", got, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue() on empty queue returned ok")
	}
}

func TestQueueWrapAround(t *testing.T) {
	q := New[string](4)
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")
	q.Dequeue()
	q.Dequeue()
	// head is now mid-buffer; grow across the wrap point
	for _, s := range []string{"d", "e", "f", "g", "h"} {
		q.Enqueue(s)
	}

	got := q.DequeueAll()
	want := []string{"c", "d", "e", "f", "g", "h"}
	if len(got) != len(want) {
		t.Fatalf("DequeueAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DequeueAll() = %v, want %v", got, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("queue not empty after DequeueAll")
	}
}

func TestQueuePeekAndClear(t *testing.T) {
	q := New[int](0)
	if _, ok := q.Peek(); ok {
		t.Fatal("Peek() on empty queue returned ok")
	}
	q.Enqueue(7)
	q.Enqueue(8)
	if v, _ := q.Peek(); v != 7 {
		t.Fatalf("Peek() = %d, want 7", v)
	}
	if q.Len() != 2 {
		t.Fatal("Peek() removed an item")
	}
	if n := q.Clear(); n != 2 {
		t.Fatalf("Clear() = %d, want 2", n)
	}
	if !q.IsEmpty() {
		t.Fatal("queue not empty after Clear")
	}
	q.Enqueue(9)
	if v, _ := q.Dequeue(); v != 9 {
		t.Fatalf("Dequeue() after Clear = %d, want 9", v)
	}
}

func TestQueueKeepsDuplicates(t *testing.T) {
	q := New[string](1)
	q.Enqueue("same")
	q.Enqueue("same")
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}
