package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
)

type playerRow struct {
	ID   uint64 `msgpack:"id"`
	Name string `msgpack:"name"`
}

func testConn(t *testing.T) *Conn {
	t.Helper()
	c, err := Connect(Config{
		URL:         "nats://127.0.0.1:4222",
		Module:      "game",
		ClientID:    "tester",
		CallTimeout: time.Second,
	})
	require.NoError(t, err)
	return c
}

func encodeRow(t *testing.T, row playerRow) []byte {
	t.Helper()
	data, err := encoding.Marshal(row)
	require.NoError(t, err)
	return data
}

func encodeEnvelope(t *testing.T, env rowEnvelope) []byte {
	t.Helper()
	data, err := encoding.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestDispatchRowInsert(t *testing.T) {
	c := testConn(t)

	var got []byte
	h := &rowHandlers{insert: func(row []byte) { got = row }}
	c.dispatchRow("players", h, encodeEnvelope(t, rowEnvelope{
		Op:  opInsert,
		New: encodeRow(t, playerRow{ID: 1, Name: "ada"}),
	}))

	var row playerRow
	require.NoError(t, encoding.Unmarshal(got, &row))
	assert.Equal(t, "ada", row.Name)
}

func TestDispatchRowUpdateCarriesBothImages(t *testing.T) {
	c := testConn(t)

	var gotOld, gotNew []byte
	h := &rowHandlers{update: func(oldRow, newRow []byte) { gotOld, gotNew = oldRow, newRow }}
	c.dispatchRow("players", h, encodeEnvelope(t, rowEnvelope{
		Op:  opUpdate,
		Old: encodeRow(t, playerRow{ID: 1, Name: "before"}),
		New: encodeRow(t, playerRow{ID: 1, Name: "after"}),
	}))

	var oldRow, newRow playerRow
	require.NoError(t, encoding.Unmarshal(gotOld, &oldRow))
	require.NoError(t, encoding.Unmarshal(gotNew, &newRow))
	assert.Equal(t, "before", oldRow.Name)
	assert.Equal(t, "after", newRow.Name)
}

func TestDispatchRowDeleteUsesOldImage(t *testing.T) {
	c := testConn(t)

	var got []byte
	h := &rowHandlers{delete: func(row []byte) { got = row }}
	c.dispatchRow("players", h, encodeEnvelope(t, rowEnvelope{
		Op:  opDelete,
		Old: encodeRow(t, playerRow{ID: 9, Name: "gone"}),
	}))

	var row playerRow
	require.NoError(t, encoding.Unmarshal(got, &row))
	assert.Equal(t, uint64(9), row.ID)
}

func TestDispatchRowSkipsUnregisteredOp(t *testing.T) {
	c := testConn(t)

	called := false
	h := &rowHandlers{insert: func([]byte) { called = true }}
	c.dispatchRow("players", h, encodeEnvelope(t, rowEnvelope{
		Op:  opUpdate,
		Old: encodeRow(t, playerRow{ID: 1}),
		New: encodeRow(t, playerRow{ID: 1}),
	}))

	assert.False(t, called, "insert handler must not see updates")
}

func TestDispatchRowIgnoresGarbage(t *testing.T) {
	c := testConn(t)

	called := false
	h := &rowHandlers{insert: func([]byte) { called = true }}
	c.dispatchRow("players", h, []byte{0xc1, 0xff, 0x00})

	assert.False(t, called)
}

func TestDispatchRowDecompresses(t *testing.T) {
	c, err := Connect(Config{
		URL:                 "nats://127.0.0.1:4222",
		Module:              "game",
		ClientID:            "tester",
		CompressionLevel:    1,
		CompressionMinBytes: 1,
	})
	require.NoError(t, err)

	raw := encodeRow(t, playerRow{ID: 3, Name: "zipped"})
	frame, compressed, err := c.comp.maybeCompress(raw)
	require.NoError(t, err)
	require.True(t, compressed)

	var got []byte
	h := &rowHandlers{insert: func(row []byte) { got = row }}
	c.dispatchRow("players", h, encodeEnvelope(t, rowEnvelope{
		Op:         opInsert,
		New:        frame,
		Compressed: true,
	}))

	var row playerRow
	require.NoError(t, encoding.Unmarshal(got, &row))
	assert.Equal(t, "zipped", row.Name)
}

func storePending(c *Conn, callID uint64, reducer string) *pendingCall {
	pc := &pendingCall{reducer: reducer, promise: future.NewPromise[client.ReducerOutcome]()}
	pc.timer = time.AfterFunc(time.Hour, func() {})
	c.pending.Store(callID, pc)
	return pc
}

func TestHandleResultResolvesPendingCall(t *testing.T) {
	c := testConn(t)

	outcomes := make(chan client.ReducerOutcome, 1)
	c.OnReducerOutcome(func(out client.ReducerOutcome) { outcomes <- out })

	pc := storePending(c, 7, "send_message")
	go c.watchOutcome(pc)

	data, err := encoding.Marshal(resultEnvelope{
		CallID:  7,
		Reducer: "send_message",
		Status:  uint8(client.StatusCommitted),
		Payload: encodeRow(t, playerRow{ID: 1}),
	})
	require.NoError(t, err)
	c.handleResult(&nats.Msg{Data: data})

	select {
	case out := <-outcomes:
		assert.Equal(t, client.CallID(7), out.CallID)
		assert.Equal(t, "send_message", out.Reducer)
		assert.Equal(t, client.StatusCommitted, out.Status)
		assert.NotEmpty(t, out.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("outcome never fired")
	}

	// Redelivery finds no pending call and is dropped.
	c.handleResult(&nats.Msg{Data: data})
	select {
	case <-outcomes:
		t.Fatal("outcome fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExpireCallProducesTimeoutFailure(t *testing.T) {
	c := testConn(t)

	outcomes := make(chan client.ReducerOutcome, 1)
	c.OnReducerOutcome(func(out client.ReducerOutcome) { outcomes <- out })

	pc := storePending(c, 11, "send_message")
	go c.watchOutcome(pc)

	c.expireCall(11)
	select {
	case out := <-outcomes:
		assert.Equal(t, client.CallID(11), out.CallID)
		assert.Equal(t, client.StatusFailed, out.Status)
		assert.Contains(t, out.Message, "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout outcome never fired")
	}

	// A result that loses the race against its timeout is dropped.
	data, err := encoding.Marshal(resultEnvelope{CallID: 11, Status: uint8(client.StatusCommitted)})
	require.NoError(t, err)
	c.handleResult(&nats.Msg{Data: data})
	select {
	case <-outcomes:
		t.Fatal("late result must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleResultDecompressesPayload(t *testing.T) {
	c, err := Connect(Config{
		URL:                 "nats://127.0.0.1:4222",
		Module:              "game",
		ClientID:            "tester",
		CompressionLevel:    2,
		CompressionMinBytes: 1,
	})
	require.NoError(t, err)

	outcomes := make(chan client.ReducerOutcome, 1)
	c.OnReducerOutcome(func(out client.ReducerOutcome) { outcomes <- out })

	pc := storePending(c, 21, "dump_state")
	go c.watchOutcome(pc)

	raw := encodeRow(t, playerRow{ID: 5, Name: "compressed result"})
	frame, compressed, err := c.comp.maybeCompress(raw)
	require.NoError(t, err)
	require.True(t, compressed)

	data, err := encoding.Marshal(resultEnvelope{
		CallID:     21,
		Status:     uint8(client.StatusCommitted),
		Payload:    frame,
		Compressed: true,
	})
	require.NoError(t, err)
	c.handleResult(&nats.Msg{Data: data})

	select {
	case out := <-outcomes:
		assert.Equal(t, client.StatusCommitted, out.Status)
		assert.Equal(t, raw, out.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("outcome never fired")
	}
}

func TestFailPendingResolvesEverything(t *testing.T) {
	c := testConn(t)

	outcomes := make(chan client.ReducerOutcome, 3)
	c.OnReducerOutcome(func(out client.ReducerOutcome) { outcomes <- out })

	for _, callID := range []uint64{31, 32, 33} {
		pc := storePending(c, callID, "send_message")
		go c.watchOutcome(pc)
	}

	c.failPending("connection closed")
	for i := 0; i < 3; i++ {
		select {
		case out := <-outcomes:
			assert.Equal(t, client.StatusFailed, out.Status)
			assert.Equal(t, "connection closed", out.Message)
		case <-time.After(2 * time.Second):
			t.Fatal("pending call never failed")
		}
	}
	assert.Zero(t, c.pending.Size())
}

func TestCloseIsIdempotent(t *testing.T) {
	c := testConn(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Run refuses to start on a closed connection.
	assert.Error(t, c.Run(context.Background()))
}
