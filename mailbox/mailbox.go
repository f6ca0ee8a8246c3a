// Package mailbox implements the multi-producer single-consumer handoff
// between client callback goroutines and the host tick. Producers append
// under a short mutex and never block beyond it; the consumer swaps the
// whole batch out, so draining cost does not grow with producer count.
package mailbox

import "sync"

// Envelope carries one published message and its sequence number. Sequence
// numbers increase monotonically in publish order; they exist for ordering
// assertions and diagnostics and never reach host-visible records.
type Envelope[T any] struct {
	Seq uint64
	Msg T
}

// Policy bounds the mailbox. The zero value keeps it unbounded, the default
// contract: publishers never block and nothing is dropped. With MaxPending
// set, a full mailbox sheds load instead of growing, dropping the oldest
// pending envelope or the incoming one.
type Policy struct {
	MaxPending int
	DropOldest bool
}

// Mailbox is the channel between any number of producing goroutines and one
// consuming goroutine.
type Mailbox[T any] struct {
	mu      sync.Mutex
	pending []Envelope[T]
	seq     uint64
	dropped uint64
	closed  bool
	policy  Policy
}

func New[T any](policy Policy) *Mailbox[T] {
	return &Mailbox[T]{policy: policy}
}

// Publish appends msg for the next drain and reports whether it was
// accepted. After Close, and on overflow with a drop-newest policy, the
// message is dropped and counted. Safe from any goroutine.
func (m *Mailbox[T]) Publish(msg T) bool {
	m.mu.Lock()
	if m.closed {
		m.dropped++
		m.mu.Unlock()
		return false
	}
	if max := m.policy.MaxPending; max > 0 && len(m.pending) >= max {
		if !m.policy.DropOldest {
			m.dropped++
			m.mu.Unlock()
			return false
		}
		copy(m.pending, m.pending[1:])
		m.pending = m.pending[:len(m.pending)-1]
		m.dropped++
	}
	m.seq++
	m.pending = append(m.pending, Envelope[T]{Seq: m.seq, Msg: msg})
	m.mu.Unlock()
	return true
}

// DrainAll returns every envelope published since the previous drain, in
// publish order, and installs scratch as the new pending buffer. Passing the
// previous drain's slice back as scratch makes the two buffers ping-pong
// with no steady-state allocation. Consumer-side only.
func (m *Mailbox[T]) DrainAll(scratch []Envelope[T]) []Envelope[T] {
	m.mu.Lock()
	batch := m.pending
	m.pending = scratch[:0]
	m.mu.Unlock()
	return batch
}

// Close marks the mailbox closed: subsequent publishes become dropped
// no-ops. Envelopes already pending remain drainable.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Len is the number of envelopes awaiting drain.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Dropped is the total number of messages rejected since creation.
func (m *Mailbox[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
