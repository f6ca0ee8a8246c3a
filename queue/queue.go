// Package queue implements the per-type double-buffered queues the host
// reads once per tick, plus a registry that rotates all of them together.
//
// Everything in this package is host-thread-only. Setup and ticking happen
// on the same goroutine, which is what makes the read path lock-free.
package queue

// Queue is an append-only double-buffered queue for one concrete record
// type. Pushes land in the writable buffer; Read sees the readable buffer
// populated by the previous Rotate.
type Queue[E any] struct {
	front []E // readable this tick
	back  []E // receives pushes until the next rotate
}

// New returns an empty queue.
func New[E any]() *Queue[E] {
	return &Queue[E]{}
}

// Push appends e to the writable buffer. Order of pushes is preserved.
func (q *Queue[E]) Push(e E) {
	q.back = append(q.back, e)
}

// Read returns the events made visible by the last Rotate. It is
// non-destructive: repeated reads within one tick return the same slice.
// The slice is valid until the next Rotate and must not be retained or
// mutated past it.
//
// Read on a nil queue returns nil, so a queue that was never created (its
// kind masked out, or its type never registered) reads as permanently empty.
func (q *Queue[E]) Read() []E {
	if q == nil {
		return nil
	}
	return q.front
}

// Len is the number of readable events.
func (q *Queue[E]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.front)
}

// Pending is the number of events pushed since the last Rotate.
func (q *Queue[E]) Pending() int {
	if q == nil {
		return 0
	}
	return len(q.back)
}

// Rotate swaps the buffers: pushes since the last rotate become readable and
// the previous readable buffer is cleared for reuse. Rotating with an empty
// writable buffer yields an empty readable buffer; events never linger
// across rotations.
func (q *Queue[E]) Rotate() {
	q.front, q.back = q.back, q.front[:0]
}
