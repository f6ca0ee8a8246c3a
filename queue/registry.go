package queue

import "reflect"

// Handle is the type-erased view of one queue held by the registry.
type Handle interface {
	Rotate()
	Len() int
	Pending() int
}

// Registry tracks every queue created during setup, keyed by concrete
// record type. Two registrations sharing a record type share its queues.
type Registry struct {
	queues map[reflect.Type]Handle
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[reflect.Type]Handle)}
}

// Of returns the queue for record type E, creating it on first use.
func Of[E any](r *Registry) *Queue[E] {
	t := reflect.TypeOf((*E)(nil)).Elem()
	if h, ok := r.queues[t]; ok {
		return h.(*Queue[E])
	}
	q := New[E]()
	r.queues[t] = q
	return q
}

// Lookup returns the queue for record type E, or nil if it was never
// created.
func Lookup[E any](r *Registry) *Queue[E] {
	t := reflect.TypeOf((*E)(nil)).Elem()
	if h, ok := r.queues[t]; ok {
		return h.(*Queue[E])
	}
	return nil
}

// RotateAll rotates every registered queue exactly once. Called at the end
// of each tick's dispatch, unconditionally, empty queues included.
func (r *Registry) RotateAll() {
	for _, h := range r.queues {
		h.Rotate()
	}
}

// Size is the number of registered queues.
func (r *Registry) Size() int {
	return len(r.queues)
}

// PendingTotal sums the writable backlog across all queues.
func (r *Registry) PendingTotal() int {
	n := 0
	for _, h := range r.queues {
		n += h.Pending()
	}
	return n
}
