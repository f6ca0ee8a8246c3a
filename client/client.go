// Package client defines the contract a realtime database client must satisfy
// to be driven by the bridge. The contract is deliberately non-generic: rows
// travel as raw msgpack payloads and the bridge owns raw-to-typed decoding.
//
// Threading: all On* registrations happen between construction and Run, from
// a single goroutine. Registered callbacks are invoked from client delivery
// goroutines at arbitrary times; per table, row callbacks fire in arrival
// order. Callbacks must not block.
package client

import "context"

// CallID identifies one in-flight reducer call. IDs are produced by the
// client at submission time and are never reused within a process lifetime.
type CallID uint64

// ReducerStatus classifies the outcome of a reducer call.
type ReducerStatus uint8

const (
	StatusCommitted ReducerStatus = iota
	StatusFailed
	StatusOutOfEnergy
)

func (s ReducerStatus) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusFailed:
		return "failed"
	case StatusOutOfEnergy:
		return "out_of_energy"
	default:
		return "unknown"
	}
}

// ReducerOutcome is the raw outcome of a reducer call as reported by the
// client. Payload holds the msgpack-encoded result value and is set only
// when the call committed.
type ReducerOutcome struct {
	CallID  CallID
	Reducer string
	Status  ReducerStatus
	Message string
	Payload []byte
}

// SubscribeCallbacks receive the result of one subscription request. At most
// one of the two fires, from a client goroutine.
type SubscribeCallbacks struct {
	OnApplied func()
	OnError   func(err error)
}

// RowSource registers raw row-change callbacks, one per (table, kind).
// Registering a kind the client is not asked about means the client may skip
// delivering that kind for the table entirely.
type RowSource interface {
	OnInsert(table string, fn func(row []byte))
	OnUpdate(table string, fn func(oldRow, newRow []byte))
	OnDelete(table string, fn func(row []byte))
}

// LifecycleSource registers connection lifecycle callbacks. The client
// reports what it observes; deduplication of repeated same-state reports is
// the caller's concern.
type LifecycleSource interface {
	OnConnect(fn func())
	OnDisconnect(fn func(reason error))
	OnConnectError(fn func(err error))
}

// ReducerCaller submits reducer calls and reports their asynchronous
// outcomes. CallReducer must not block on the server round-trip.
type ReducerCaller interface {
	OnReducerOutcome(fn func(ReducerOutcome))
	CallReducer(reducer string, args []byte) (CallID, error)
}

// Subscriber issues server-side subscription requests. Query strings are
// opaque to the bridge; the remote server owns their language.
type Subscriber interface {
	Subscribe(query string, cb SubscribeCallbacks) error
}

// Conn is the full client surface the bridge drives.
type Conn interface {
	RowSource
	LifecycleSource
	ReducerCaller
	Subscriber

	// Run performs the actual connect and blocks until the connection ends
	// or ctx is done. A failed dial returns the error and also fires the
	// connect-error callback, so lifecycle observers see it either way.
	Run(ctx context.Context) error

	// Close tears the connection down. Safe to call concurrently with Run;
	// callbacks racing Close may still fire and must be tolerated.
	Close() error
}
