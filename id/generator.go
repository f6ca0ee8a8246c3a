// Package id generates the unique identifiers transport clients stamp on
// reducer calls. IDs are 64-bit, unique within a process and roughly
// time-ordered, so interleaved call diagnostics sort naturally.
package id

import (
	"sync"
	"time"
)

// Bit allocation (64 bits total):
//   - 42 bits wall time in milliseconds (~139 years from epoch)
//   - 6 bits generator instance (64 concurrent generators)
//   - 16 bits per-millisecond sequence (~65k IDs per ms per instance)
const (
	seqBits      = 16
	seqMask      = (1 << seqBits) - 1
	instanceBits = 6
	instanceMask = (1 << instanceBits) - 1
	timeShift    = seqBits + instanceBits
)

// Generator provides unique IDs for in-flight reducer calls.
type Generator interface {
	NextID() uint64
}

// TimeOrdered issues IDs of the form (unix_ms << 22) | (instance << 16) | seq.
// The sequence resets each millisecond; exhausting it spins until the clock
// advances rather than colliding. The millisecond component never moves
// backwards, so IDs stay monotonic under wall-clock regression.
type TimeOrdered struct {
	mu       sync.Mutex
	instance uint64
	lastMS   int64
	seq      uint32
}

// NewTimeOrdered creates a generator. instance disambiguates generators
// sharing a wall clock; only the low 6 bits are used.
func NewTimeOrdered(instance uint64) *TimeOrdered {
	return &TimeOrdered{
		instance: instance & instanceMask,
		lastMS:   time.Now().UnixMilli(),
	}
}

// NextID generates a unique 64-bit ID. Thread-safe.
func (g *TimeOrdered) NextID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if nowMS := time.Now().UnixMilli(); nowMS > g.lastMS {
		g.lastMS = nowMS
		g.seq = 0
	}

	// Sequence exhausted for this millisecond: wait the clock out.
	for g.seq >= seqMask {
		time.Sleep(100 * time.Microsecond)
		if nowMS := time.Now().UnixMilli(); nowMS > g.lastMS {
			g.lastMS = nowMS
			g.seq = 0
		}
	}

	g.seq++
	return (uint64(g.lastMS) << timeShift) | (g.instance << seqBits) | uint64(g.seq)
}
