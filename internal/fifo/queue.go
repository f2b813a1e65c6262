// Package fifo provides the fixed-capacity single-producer/single-consumer
// queues that carry events from interrupt context to the main loop.
package fifo

import "sync/atomic"

// Queue capacities used by the device.
const (
	ButtonQueueSize = 30
	RotaryQueueSize = 100
	ADCQueueSize    = 500
	TraceQueueSize  = 500
)

// Queue is a bounded ring buffer with one producer and one consumer. The
// producer never blocks: a Put on a full queue drops the new value and leaves
// the unread values in order. Only head and tail are shared between the two
// sides, so no lock is needed.
type Queue[T any] struct {
	buf     []T
	head    atomic.Uint64 // next slot to read, owned by the consumer
	tail    atomic.Uint64 // next slot to write, owned by the producer
	dropped atomic.Uint64
}

// New returns an empty queue holding at most capacity values.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Put appends v. It reports false and counts a drop when the queue is full.
func (q *Queue[T]) Put(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.buf)) {
		q.dropped.Add(1)
		return false
	}
	q.buf[tail%uint64(len(q.buf))] = v
	q.tail.Store(tail + 1)
	return true
}

// Get removes and returns the oldest value.
func (q *Queue[T]) Get() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	v := q.buf[head%uint64(len(q.buf))]
	q.buf[head%uint64(len(q.buf))] = zero
	q.head.Store(head + 1)
	return v, true
}

// HasData reports whether at least one value is waiting.
func (q *Queue[T]) HasData() bool {
	return q.head.Load() != q.tail.Load()
}

// Empty is the inverse of HasData.
func (q *Queue[T]) Empty() bool { return !q.HasData() }

// Len returns the number of unread values.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Drain discards every unread value and returns how many were removed.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.Get(); !ok {
			return n
		}
		n++
	}
}

// Dropped returns the number of values rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
