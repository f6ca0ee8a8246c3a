package id

import (
	"sync"
	"testing"
)

func TestTimeOrdered_NextID_Uniqueness(t *testing.T) {
	gen := NewTimeOrdered(1)

	seen := make(map[uint64]bool)
	const iterations = 10000

	for i := 0; i < iterations; i++ {
		id := gen.NextID()
		if seen[id] {
			t.Fatalf("duplicate ID generated at iteration %d: %d", i, id)
		}
		seen[id] = true
	}
}

func TestTimeOrdered_NextID_Monotonic(t *testing.T) {
	gen := NewTimeOrdered(1)

	var prev uint64
	const iterations = 1000

	for i := 0; i < iterations; i++ {
		id := gen.NextID()
		if id <= prev {
			t.Fatalf("non-monotonic ID at iteration %d: prev=%d, curr=%d", i, prev, id)
		}
		prev = id
	}
}

func TestTimeOrdered_NextID_Concurrent(t *testing.T) {
	gen := NewTimeOrdered(1)

	const goroutines = 10
	const idsPerGoroutine = 1000

	var wg sync.WaitGroup
	idsChan := make(chan uint64, goroutines*idsPerGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < idsPerGoroutine; i++ {
				idsChan <- gen.NextID()
			}
		}()
	}

	wg.Wait()
	close(idsChan)

	seen := make(map[uint64]bool)
	for id := range idsChan {
		if seen[id] {
			t.Fatalf("duplicate ID in concurrent test: %d", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Fatalf("expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestTimeOrdered_DifferentInstances(t *testing.T) {
	gen1 := NewTimeOrdered(1)
	gen2 := NewTimeOrdered(2)

	id1 := gen1.NextID()
	id2 := gen2.NextID()

	if id1 == id2 {
		t.Fatalf("IDs from different instances should differ: %d == %d", id1, id2)
	}

	// Instance bits live at 16-21.
	if got := (id1 >> 16) & instanceMask; got != 1 {
		t.Errorf("expected instance 1 in id1, got %d", got)
	}
	if got := (id2 >> 16) & instanceMask; got != 2 {
		t.Errorf("expected instance 2 in id2, got %d", got)
	}
}

func BenchmarkTimeOrdered_NextID(b *testing.B) {
	gen := NewTimeOrdered(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gen.NextID()
	}
}

func BenchmarkTimeOrdered_NextID_Parallel(b *testing.B) {
	gen := NewTimeOrdered(1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			gen.NextID()
		}
	})
}
