package stdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
)

type sendArgs struct {
	Text string `msgpack:"text"`
}

type sendResult struct {
	MessageID uint64 `msgpack:"message_id"`
}

func committedOutcome(t *testing.T, id client.CallID, reducer string, value any) client.ReducerOutcome {
	t.Helper()
	payload, err := encoding.Marshal(value)
	require.NoError(t, err)
	return client.ReducerOutcome{
		CallID:  id,
		Reducer: reducer,
		Status:  client.StatusCommitted,
		Payload: payload,
	}
}

func TestCall_ResultRoutedOnce(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	id, err := b.Call("send_message", sendArgs{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, []string{"send_message"}, f.calls)

	out := committedOutcome(t, id, "send_message", sendResult{MessageID: 42})
	f.deliverOutcome(out)
	b.Tick()

	got := ResultQueue[sendResult](b).Read()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].CallID)
	assert.Equal(t, client.StatusCommitted, got[0].Status)
	assert.Equal(t, uint64(42), got[0].Value.MessageID)

	// Redelivery of a consumed call id is dropped, not routed again.
	f.deliverOutcome(out)
	b.Tick()
	assert.Empty(t, ResultQueue[sendResult](b).Read())
}

func TestCall_UnknownCallIDDropped(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	f.deliverOutcome(committedOutcome(t, client.CallID(9999), "send_message", sendResult{MessageID: 1}))
	b.Tick()
	assert.Empty(t, ResultQueue[sendResult](b).Read())
}

func TestCall_FailedOutcomeCarriesMessage(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	id, err := b.Call("send_message", sendArgs{Text: "hi"})
	require.NoError(t, err)

	f.deliverOutcome(client.ReducerOutcome{
		CallID:  id,
		Reducer: "send_message",
		Status:  client.StatusFailed,
		Message: "text too long",
	})
	b.Tick()

	got := ResultQueue[sendResult](b).Read()
	require.Len(t, got, 1)
	assert.Equal(t, client.StatusFailed, got[0].Status)
	assert.Equal(t, "text too long", got[0].Message)
	assert.Zero(t, got[0].Value.MessageID)
}

func TestCall_UndecodableResultDowngradesToFailed(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	id, err := b.Call("send_message", sendArgs{Text: "hi"})
	require.NoError(t, err)

	f.deliverOutcome(committedOutcome(t, id, "send_message", "not a result struct"))
	b.Tick()

	got := ResultQueue[sendResult](b).Read()
	require.Len(t, got, 1)
	assert.Equal(t, client.StatusFailed, got[0].Status)
	assert.Contains(t, got[0].Message, "decode result")
}

func TestCall_RequiresDeclaredReducer(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	startConnected(t, b, f)

	var cfgErr *ConfigError
	_, err := b.Call("never_declared", sendArgs{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "never_declared", cfgErr.Subject)
}

func TestCall_BeforeConnectedFailsFast(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))

	_, err := b.Call("send_message", sendArgs{Text: "early"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, f.calls, "nothing may reach the wire")
}

func TestCall_SubmitErrorIsWrapped(t *testing.T) {
	f := newFakeConn()
	f.callErr = errors.New("submit refused")
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	_, err := b.Call("send_message", sendArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit refused")
}

func TestAddReducer_Conflicts(t *testing.T) {
	type otherResult struct {
		Count int `msgpack:"count"`
	}

	f := newFakeConn()
	b := newTestBridge(t, f)

	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	require.NoError(t, AddReducer[sendResult](b, "send_message"), "same result type is a no-op")

	var cfgErr *ConfigError
	err := AddReducer[otherResult](b, "send_message")
	require.ErrorAs(t, err, &cfgErr)

	err = AddReducer[sendResult](b, "")
	require.ErrorAs(t, err, &cfgErr)

	startConnected(t, b, f)
	assert.ErrorIs(t, AddReducer[sendResult](b, "late_reducer"), ErrAlreadyStarted)
}

func TestCall_ConcurrentOutcomeDelivery(t *testing.T) {
	f := newFakeConn()
	b := newTestBridge(t, f)
	require.NoError(t, AddReducer[sendResult](b, "send_message"))
	startConnected(t, b, f)

	const n = 20
	ids := make([]client.CallID, 0, n)
	outcomes := make([]client.ReducerOutcome, 0, n)
	for i := 0; i < n; i++ {
		id, err := b.Call("send_message", sendArgs{Text: "x"})
		require.NoError(t, err)
		ids = append(ids, id)
		outcomes = append(outcomes, committedOutcome(t, id, "send_message", sendResult{MessageID: uint64(i)}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, out := range outcomes {
			f.deliverOutcome(out)
		}
	}()
	<-done

	b.Tick()
	got := ResultQueue[sendResult](b).Read()
	require.Len(t, got, n)
	for i, res := range got {
		assert.Equal(t, ids[i], res.CallID, "results keep submission order from one producer")
	}
}
