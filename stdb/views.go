package stdb

import (
	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/events"
	"github.com/JulienLavocat/stdbridge/queue"
)

// flusher runs at the end of dispatch, before rotation.
type flusher interface {
	flush()
}

// viewState buffers one view's churn for the current tick. Host thread
// only: deliveries fill it during dispatch and flush reconciles it before
// rotation, so buffers never survive a tick.
type viewState[T any, K comparable] struct {
	key func(T) K

	insQ *queue.Queue[events.Insert[T]]
	updQ *queue.Queue[events.Update[T]]
	delQ *queue.Queue[events.Delete[T]]

	order    []K // keys in first-seen order
	inserted map[K]T
	deleted  map[K]T
}

func (v *viewState[T, K]) bufferInsert(row T) {
	k := v.key(row)
	if !v.known(k) {
		v.order = append(v.order, k)
	}
	v.inserted[k] = row
}

func (v *viewState[T, K]) bufferDelete(row T) {
	k := v.key(row)
	if !v.known(k) {
		v.order = append(v.order, k)
	}
	v.deleted[k] = row
}

func (v *viewState[T, K]) known(k K) bool {
	_, ins := v.inserted[k]
	_, del := v.deleted[k]
	return ins || del
}

func (v *viewState[T, K]) flush() {
	if len(v.order) == 0 {
		return
	}
	for _, k := range v.order {
		ins, hasIns := v.inserted[k]
		del, hasDel := v.deleted[k]
		switch {
		case hasIns && hasDel:
			v.updQ.Push(events.Update[T]{Old: del, New: ins})
		case hasIns:
			v.insQ.Push(events.Insert[T]{Row: ins})
		case hasDel:
			v.delQ.Push(events.Delete[T]{Row: del})
		}
	}
	clear(v.inserted)
	clear(v.deleted)
	v.order = v.order[:0]
}

// AddView registers a server-side view whose rows decode into T. Views have
// no stable row identity upstream: the server reports membership churn as
// deletes and inserts only. The bridge reconciles each tick's churn by key:
// a key both deleted and inserted within one tick becomes a single Update
// (old image from the delete, new from the insert); unpaired churn passes
// through as Insert or Delete. Reconciliation never pairs across ticks.
//
// One registration per view; re-registering is a ConfigError. Must be
// called before Start.
func AddView[T any, K comparable, C client.Conn](b *Bridge[C], view string, key func(T) K) error {
	if b.started.Load() {
		return ErrAlreadyStarted
	}
	if key == nil {
		return &ConfigError{Op: "add view", Subject: view, Reason: "nil key function"}
	}
	if _, ok := b.tables[view]; ok {
		return &ConfigError{Op: "add view", Subject: view, Reason: "already registered"}
	}

	vs := &viewState[T, K]{
		key:      key,
		insQ:     queue.Of[events.Insert[T]](b.queues),
		updQ:     queue.Of[events.Update[T]](b.queues),
		delQ:     queue.Of[events.Delete[T]](b.queues),
		inserted: make(map[K]T),
		deleted:  make(map[K]T),
	}
	b.syncQueueCount()

	reg := &tableReg{name: view, mask: events.NoUpdate(), view: true}
	reg.install = func(src client.RowSource) {
		src.OnInsert(view, func(row []byte) {
			val, ok := decodeRow[T](view, events.KindInsert, row)
			if !ok {
				return
			}
			b.publishRow(view, events.KindInsert, func() { vs.bufferInsert(val) })
		})
		src.OnDelete(view, func(row []byte) {
			val, ok := decodeRow[T](view, events.KindDelete, row)
			if !ok {
				return
			}
			b.publishRow(view, events.KindDelete, func() { vs.bufferDelete(val) })
		})
	}

	b.tables[view] = reg
	b.order = append(b.order, view)
	b.flushers = append(b.flushers, vs)

	log.Debug().Str("view", view).Msg("Registered view")
	return nil
}
