package stdb

import (
	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
	"github.com/JulienLavocat/stdbridge/events"
	"github.com/JulienLavocat/stdbridge/queue"
	"github.com/JulienLavocat/stdbridge/telemetry"
)

// tableReg is one registered table or view. install runs on the controller
// goroutine once the connection object exists.
type tableReg struct {
	name    string
	mask    events.Mask
	view    bool
	install func(src client.RowSource)
}

// AddTable registers a table whose rows decode into T and selects which
// event kinds are bridged. Registration is idempotent per table: an exact
// duplicate is a no-op, a duplicate with a different mask is a ConfigError.
// Kinds outside the mask are never subscribed upstream and their queues are
// never created. Must be called before Start.
//
// When the mask enables both inserts and updates, a derived insert-or-update
// queue is fed from the same two callbacks: updates are remapped to insert
// shape, old images discarded, source order preserved.
func AddTable[T any, C client.Conn](b *Bridge[C], table string, mask events.Mask) error {
	if b.started.Load() {
		return ErrAlreadyStarted
	}
	if mask == 0 {
		return &ConfigError{Op: "add table", Subject: table, Reason: "empty event mask"}
	}
	if existing, ok := b.tables[table]; ok {
		if existing.view {
			return &ConfigError{Op: "add table", Subject: table, Reason: "already registered as a view"}
		}
		if existing.mask == mask {
			return nil
		}
		return &ConfigError{Op: "add table", Subject: table,
			Reason: "already registered with mask " + existing.mask.String()}
	}

	var (
		insQ *queue.Queue[events.Insert[T]]
		updQ *queue.Queue[events.Update[T]]
		delQ *queue.Queue[events.Delete[T]]
		iouQ *queue.Queue[events.InsertOrUpdate[T]]
	)
	if mask.Has(events.KindInsert) {
		insQ = queue.Of[events.Insert[T]](b.queues)
	}
	if mask.Has(events.KindUpdate) {
		updQ = queue.Of[events.Update[T]](b.queues)
	}
	if mask.Has(events.KindDelete) {
		delQ = queue.Of[events.Delete[T]](b.queues)
	}
	if mask.Has(events.KindInsert) && mask.Has(events.KindUpdate) {
		iouQ = queue.Of[events.InsertOrUpdate[T]](b.queues)
	}
	b.syncQueueCount()

	reg := &tableReg{name: table, mask: mask}
	reg.install = func(src client.RowSource) {
		if insQ != nil {
			src.OnInsert(table, func(row []byte) {
				val, ok := decodeRow[T](table, events.KindInsert, row)
				if !ok {
					return
				}
				b.publishRow(table, events.KindInsert, func() {
					insQ.Push(events.Insert[T]{Row: val})
					if iouQ != nil {
						iouQ.Push(events.InsertOrUpdate[T]{Row: val})
					}
				})
			})
		}
		if updQ != nil {
			src.OnUpdate(table, func(oldRow, newRow []byte) {
				oldVal, ok := decodeRow[T](table, events.KindUpdate, oldRow)
				if !ok {
					return
				}
				newVal, ok := decodeRow[T](table, events.KindUpdate, newRow)
				if !ok {
					return
				}
				b.publishRow(table, events.KindUpdate, func() {
					updQ.Push(events.Update[T]{Old: oldVal, New: newVal})
					if iouQ != nil {
						iouQ.Push(events.InsertOrUpdate[T]{Row: newVal})
					}
				})
			})
		}
		if delQ != nil {
			src.OnDelete(table, func(row []byte) {
				val, ok := decodeRow[T](table, events.KindDelete, row)
				if !ok {
					return
				}
				b.publishRow(table, events.KindDelete, func() {
					delQ.Push(events.Delete[T]{Row: val})
				})
			})
		}
	}

	b.tables[table] = reg
	b.order = append(b.order, table)

	log.Debug().Str("table", table).Str("mask", mask.String()).Msg("Registered table")
	return nil
}

// publishRow wraps a row delivery in a notice and hands it to the mailbox.
// Runs on client goroutines.
func (b *Bridge[C]) publishRow(table string, kind events.Kind, deliver func()) {
	if b.trace.Match(table) {
		log.Trace().Str("table", table).Str("kind", kind.String()).Msg("Row event")
	}
	if !b.publish(notice{class: classRow, table: table, kind: kind, deliver: deliver}) {
		telemetry.RowsDroppedTotal.With("overflow").Inc()
	}
}

// decodeRow turns a raw payload into T. Decode failures are routing errors:
// logged, counted, dropped, never panicked.
func decodeRow[T any](table string, kind events.Kind, payload []byte) (T, bool) {
	var val T
	if err := encoding.Unmarshal(payload, &val); err != nil {
		log.Error().Err(err).
			Str("table", table).
			Str("kind", kind.String()).
			Msg("Dropping row event: decode failed")
		telemetry.RowsDroppedTotal.With("decode").Inc()
		var zero T
		return zero, false
	}
	return val, true
}

// installRegistrations wires every registered table and view into the
// connection, in registration order. Controller goroutine, before Run.
func (b *Bridge[C]) installRegistrations(src client.RowSource) {
	for _, name := range b.order {
		b.tables[name].install(src)
	}
}

// InsertQueue returns the insert queue for row type T, or nil if no
// registration enabled inserts for T. Nil queues read as permanently empty.
func InsertQueue[T any, C client.Conn](b *Bridge[C]) *queue.Queue[events.Insert[T]] {
	return queue.Lookup[events.Insert[T]](b.queues)
}

// UpdateQueue returns the update queue for row type T, or nil if no
// registration enabled updates for T.
func UpdateQueue[T any, C client.Conn](b *Bridge[C]) *queue.Queue[events.Update[T]] {
	return queue.Lookup[events.Update[T]](b.queues)
}

// DeleteQueue returns the delete queue for row type T, or nil if no
// registration enabled deletes for T.
func DeleteQueue[T any, C client.Conn](b *Bridge[C]) *queue.Queue[events.Delete[T]] {
	return queue.Lookup[events.Delete[T]](b.queues)
}

// InsertOrUpdateQueue returns the derived insert-or-update queue for row
// type T, or nil unless a registration enabled both inserts and updates.
func InsertOrUpdateQueue[T any, C client.Conn](b *Bridge[C]) *queue.Queue[events.InsertOrUpdate[T]] {
	return queue.Lookup[events.InsertOrUpdate[T]](b.queues)
}

// ResultQueue returns the reducer result queue for result type T, or nil if
// no reducer was registered with that result type.
func ResultQueue[T any, C client.Conn](b *Bridge[C]) *queue.Queue[events.ReducerResult[T]] {
	return queue.Lookup[events.ReducerResult[T]](b.queues)
}
