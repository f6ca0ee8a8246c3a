package stdb

import (
	"fmt"
	"reflect"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
	"github.com/JulienLavocat/stdbridge/events"
	"github.com/JulienLavocat/stdbridge/queue"
	"github.com/JulienLavocat/stdbridge/telemetry"
)

// consumedMemory is how many resolved call IDs are remembered to tell an
// "already consumed" duplicate apart from a never-issued ID.
const consumedMemory = 4096

// outcomeRoute decodes one outcome and publishes its typed result notice.
type outcomeRoute func(out client.ReducerOutcome)

// reducerBinding fixes the result type for one reducer name.
type reducerBinding struct {
	name  string
	rtype reflect.Type
	route outcomeRoute
}

// callRegistry tracks declared reducers and in-flight calls. The mutex
// serializes route storage against outcome lookup, so an outcome can never
// observe a missing route for a call whose submission already returned.
type callRegistry struct {
	mu       sync.Mutex
	bindings map[string]*reducerBinding
	routes   *xsync.MapOf[uint64, outcomeRoute]
	consumed *lru.Cache[uint64, string]
}

func newCallRegistry() *callRegistry {
	consumed, err := lru.New[uint64, string](consumedMemory)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(fmt.Sprintf("consumed-call cache: %v", err))
	}
	return &callRegistry{
		bindings: make(map[string]*reducerBinding),
		routes:   xsync.NewMapOf[uint64, outcomeRoute](),
		consumed: consumed,
	}
}

func (r *callRegistry) size() int {
	return len(r.bindings)
}

func (r *callRegistry) inflight() int {
	return r.routes.Size()
}

// resolve is the outcome callback installed with the client. Each call ID
// resolves at most once: the route is removed atomically, and anything
// arriving for an unknown or already-consumed ID is dropped with a
// diagnostic. Runs on client goroutines.
func (r *callRegistry) resolve(out client.ReducerOutcome) {
	r.mu.Lock()
	route, ok := r.routes.LoadAndDelete(uint64(out.CallID))
	r.mu.Unlock()

	if !ok {
		if reducer, seen := r.consumed.Get(uint64(out.CallID)); seen {
			log.Warn().
				Uint64("call_id", uint64(out.CallID)).
				Str("reducer", reducer).
				Msg("Dropping reducer outcome: call id already consumed")
		} else {
			log.Warn().
				Uint64("call_id", uint64(out.CallID)).
				Str("reducer", out.Reducer).
				Msg("Dropping reducer outcome: unknown call id")
		}
		telemetry.ReducerResultsDroppedTotal.Inc()
		return
	}

	r.consumed.Add(uint64(out.CallID), out.Reducer)
	telemetry.ReducerOutcomesTotal.With(out.Status.String()).Inc()
	route(out)
}

// AddReducer declares that calls to reducer produce ReducerResult[T] and
// creates the result queue. Re-declaring with the same result type is a
// no-op; a different result type is a ConfigError. Must be called before
// Start.
func AddReducer[T any, C client.Conn](b *Bridge[C], reducer string) error {
	if b.started.Load() {
		return ErrAlreadyStarted
	}
	if reducer == "" {
		return &ConfigError{Op: "add reducer", Subject: reducer, Reason: "empty reducer name"}
	}

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if existing, ok := b.reducers.bindings[reducer]; ok {
		if existing.rtype == rt {
			return nil
		}
		return &ConfigError{Op: "add reducer", Subject: reducer,
			Reason: "already registered with result type " + existing.rtype.String()}
	}

	q := queue.Of[events.ReducerResult[T]](b.queues)
	b.syncQueueCount()

	binding := &reducerBinding{name: reducer, rtype: rt}
	binding.route = func(out client.ReducerOutcome) {
		res := events.ReducerResult[T]{
			CallID:  out.CallID,
			Reducer: out.Reducer,
			Status:  out.Status,
			Message: out.Message,
		}
		if out.Status == client.StatusCommitted && len(out.Payload) > 0 {
			if err := encoding.Unmarshal(out.Payload, &res.Value); err != nil {
				// The host still observes the outcome, as a failure.
				log.Error().Err(err).
					Str("reducer", out.Reducer).
					Uint64("call_id", uint64(out.CallID)).
					Msg("Decoding reducer result failed")
				res.Status = client.StatusFailed
				res.Message = fmt.Sprintf("decode result: %v", err)
			}
		}
		b.publish(notice{class: classReducer, table: out.Reducer, deliver: func() {
			q.Push(res)
		}})
	}

	b.reducers.bindings[reducer] = binding
	log.Debug().Str("reducer", reducer).Str("result_type", rt.String()).Msg("Registered reducer")
	return nil
}

// Call submits a reducer call and returns its call ID. The reducer must
// have been declared with AddReducer; the result arrives later in its
// ResultQueue. Fails fast with ErrNotConnected while the connection is not
// ready. Host thread.
func (b *Bridge[C]) Call(reducer string, args any) (client.CallID, error) {
	binding, ok := b.reducers.bindings[reducer]
	if !ok {
		telemetry.ReducerCallsTotal.With(reducer, "rejected").Inc()
		return 0, &ConfigError{Op: "call reducer", Subject: reducer, Reason: "reducer not registered"}
	}

	conn, err := b.Conn()
	if err != nil {
		telemetry.ReducerCallsTotal.With(reducer, "rejected").Inc()
		return 0, err
	}

	payload, err := encoding.Marshal(args)
	if err != nil {
		telemetry.ReducerCallsTotal.With(reducer, "rejected").Inc()
		return 0, fmt.Errorf("encode args for %s: %w", reducer, err)
	}

	r := b.reducers
	r.mu.Lock()
	id, err := conn.CallReducer(reducer, payload)
	if err == nil {
		r.routes.Store(uint64(id), binding.route)
	}
	r.mu.Unlock()

	if err != nil {
		telemetry.ReducerCallsTotal.With(reducer, "rejected").Inc()
		return 0, fmt.Errorf("call %s: %w", reducer, err)
	}

	telemetry.ReducerCallsTotal.With(reducer, "ok").Inc()
	return id, nil
}
