package mailbox

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_PublishDrainOrder(t *testing.T) {
	m := New[int](Policy{})
	for i := 0; i < 10; i++ {
		require.True(t, m.Publish(i))
	}
	assert.Equal(t, 10, m.Len())

	batch := m.DrainAll(nil)
	require.Len(t, batch, 10)
	for i, env := range batch {
		assert.Equal(t, i, env.Msg)
		assert.Equal(t, uint64(i+1), env.Seq)
	}
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.DrainAll(nil))
}

func TestMailbox_SeqMonotonicAcrossDrains(t *testing.T) {
	m := New[string](Policy{})
	m.Publish("a")
	first := m.DrainAll(nil)
	m.Publish("b")
	second := m.DrainAll(first)

	require.Len(t, second, 1)
	assert.Greater(t, second[0].Seq, first[0].Seq)
}

func TestMailbox_ScratchPingPong(t *testing.T) {
	m := New[int](Policy{})
	var scratch []Envelope[int]
	for tick := 0; tick < 5; tick++ {
		m.Publish(tick)
		batch := m.DrainAll(scratch)
		require.Len(t, batch, 1)
		assert.Equal(t, tick, batch[0].Msg)
		scratch = batch
	}
}

func TestMailbox_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	type msg struct {
		producer int
		n        int
	}
	const producers = 8
	const perProducer = 500

	m := New[msg](Policy{})
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for n := 0; n < perProducer; n++ {
				m.Publish(msg{producer: p, n: n})
			}
		}(p)
	}
	wg.Wait()

	batch := m.DrainAll(nil)
	require.Len(t, batch, producers*perProducer)

	var lastSeq uint64
	next := make([]int, producers)
	for _, env := range batch {
		require.Greater(t, env.Seq, lastSeq, "sequence must increase in drain order")
		lastSeq = env.Seq
		require.Equal(t, next[env.Msg.producer], env.Msg.n,
			fmt.Sprintf("producer %d out of order", env.Msg.producer))
		next[env.Msg.producer]++
	}
}

func TestMailbox_PublishAfterCloseIsDroppedNoop(t *testing.T) {
	m := New[int](Policy{})
	m.Publish(1)
	m.Close()

	assert.False(t, m.Publish(2))
	assert.Equal(t, uint64(1), m.Dropped())

	// What was pending before Close still drains.
	batch := m.DrainAll(nil)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Msg)
}

func TestMailbox_BoundedDropNewest(t *testing.T) {
	m := New[int](Policy{MaxPending: 3})
	for i := 0; i < 5; i++ {
		m.Publish(i)
	}

	batch := m.DrainAll(nil)
	require.Len(t, batch, 3)
	for i, env := range batch {
		assert.Equal(t, i, env.Msg)
	}
	assert.Equal(t, uint64(2), m.Dropped())
}

func TestMailbox_BoundedDropOldest(t *testing.T) {
	m := New[int](Policy{MaxPending: 3, DropOldest: true})
	for i := 0; i < 5; i++ {
		m.Publish(i)
	}

	batch := m.DrainAll(nil)
	require.Len(t, batch, 3)
	assert.Equal(t, 2, batch[0].Msg)
	assert.Equal(t, 3, batch[1].Msg)
	assert.Equal(t, 4, batch[2].Msg)
	assert.Equal(t, uint64(2), m.Dropped())
}

func BenchmarkMailboxPublish(b *testing.B) {
	m := New[int](Policy{})
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Publish(1)
		}
	})
}
