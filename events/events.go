// Package events defines the typed records the bridge delivers to the host,
// together with the kind and mask vocabulary used when registering tables.
package events

import "github.com/JulienLavocat/stdbridge/client"

// Kind identifies one category of row change on a registered table.
type Kind uint8

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mask selects which row-change kinds of a table are bridged. Kinds outside
// the mask are never subscribed upstream and their queues are never created.
type Mask uint8

const (
	MaskInsert Mask = 1 << iota
	MaskUpdate
	MaskDelete
)

// All enables insert, update and delete.
func All() Mask {
	return MaskInsert | MaskUpdate | MaskDelete
}

// NoUpdate enables insert and delete only. Useful for tables whose rows are
// written once, and for views (views never report updates upstream).
func NoUpdate() Mask {
	return MaskInsert | MaskDelete
}

// Has reports whether k is enabled in the mask.
func (m Mask) Has(k Kind) bool {
	switch k {
	case KindInsert:
		return m&MaskInsert != 0
	case KindUpdate:
		return m&MaskUpdate != 0
	case KindDelete:
		return m&MaskDelete != 0
	default:
		return false
	}
}

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	s := ""
	for _, k := range []Kind{KindInsert, KindUpdate, KindDelete} {
		if !m.Has(k) {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += k.String()
	}
	return s
}

// Insert reports a row inserted into a registered table.
type Insert[T any] struct {
	Row T
}

// Update reports a row updated in a registered table, carrying both images.
type Update[T any] struct {
	Old T
	New T
}

// Delete reports a row deleted from a registered table, carrying the last image.
type Delete[T any] struct {
	Row T
}

// InsertOrUpdate is the derived record fed by both the insert and the update
// stream of a table: an update contributes its new image only, remapped to
// insert shape. It exists for hosts that treat "row appeared or changed"
// uniformly, e.g. upserting into a scene.
type InsertOrUpdate[T any] struct {
	Row T
}

// Connecting reports that a connection attempt has started.
type Connecting struct{}

// Connected reports an established connection.
type Connected struct{}

// Disconnected reports a connection that ended after having been established.
// Reason is nil on clean shutdown.
type Disconnected struct {
	Reason error
}

// ConnectionError reports a connection attempt that failed before becoming
// established, including fatal setup errors such as an unreachable server.
type ConnectionError struct {
	Err error
}

// ReducerResult is the outcome of one reducer call made through the bridge.
// Value is decoded from the committed payload and is the zero value for any
// non-committed status. Message carries the server's error text, if any.
type ReducerResult[T any] struct {
	CallID  client.CallID
	Reducer string
	Status  client.ReducerStatus
	Message string
	Value   T
}
