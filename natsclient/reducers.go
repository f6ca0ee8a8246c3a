package natsclient

import (
	"fmt"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
)

// pendingCall tracks one in-flight reducer invocation. The results handler
// and the timeout race LoadAndDelete on the pending map; whoever wins sets
// the promise, so the outcome fires exactly once.
type pendingCall struct {
	reducer string
	promise *future.Promise[client.ReducerOutcome]
	timer   *time.Timer
}

// CallReducer publishes one invocation and returns its call ID. The
// outcome arrives later through OnReducerOutcome, as a timeout failure if
// the module never answers.
func (c *Conn) CallReducer(reducer string, args []byte) (client.CallID, error) {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
		return 0, fmt.Errorf("call %s: not connected", reducer)
	}

	payload, compressed, err := c.comp.maybeCompress(args)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", reducer, err)
	}

	callID := c.ids.NextID()
	data, err := encoding.Marshal(callEnvelope{
		CallID:     callID,
		Reducer:    reducer,
		Client:     c.clientID,
		Reply:      resultsSubject(c.cfg.Module, c.clientID),
		Args:       payload,
		Compressed: compressed,
	})
	if err != nil {
		return 0, fmt.Errorf("call %s: encode: %w", reducer, err)
	}

	pc := &pendingCall{reducer: reducer, promise: future.NewPromise[client.ReducerOutcome]()}
	pc.timer = time.AfterFunc(c.cfg.CallTimeout, func() { c.expireCall(callID) })
	c.pending.Store(callID, pc)

	if err := nc.Publish(callSubject(c.cfg.Module, reducer), data); err != nil {
		if got, ok := c.pending.LoadAndDelete(callID); ok {
			got.timer.Stop()
		}
		return 0, fmt.Errorf("call %s: publish: %w", reducer, err)
	}

	go c.watchOutcome(pc)
	return client.CallID(callID), nil
}

// watchOutcome blocks on the promise and forwards the outcome off the
// delivery goroutine.
func (c *Conn) watchOutcome(pc *pendingCall) {
	out, err := pc.promise.Future().Get()
	if err != nil {
		return
	}
	c.mu.Lock()
	fn := c.onOutcome
	c.mu.Unlock()
	if fn != nil {
		fn(out)
	}
}

func (c *Conn) expireCall(callID uint64) {
	pc, ok := c.pending.LoadAndDelete(callID)
	if !ok {
		return
	}
	log.Warn().
		Uint64("call_id", callID).
		Str("reducer", pc.reducer).
		Msg("Reducer call timed out")
	pc.promise.Set(client.ReducerOutcome{
		CallID:  client.CallID(callID),
		Reducer: pc.reducer,
		Status:  client.StatusFailed,
		Message: fmt.Sprintf("timed out after %s", c.cfg.CallTimeout),
	}, nil)
}

// handleResult resolves the pending call named by one result envelope.
func (c *Conn) handleResult(m *nats.Msg) {
	var env resultEnvelope
	if err := encoding.Unmarshal(m.Data, &env); err != nil {
		log.Warn().Err(err).Msg("Dropping undecodable reducer result")
		return
	}

	pc, ok := c.pending.LoadAndDelete(env.CallID)
	if !ok {
		// Late result racing its own timeout.
		log.Debug().Uint64("call_id", env.CallID).Msg("No pending call for result")
		return
	}
	pc.timer.Stop()

	out := client.ReducerOutcome{
		CallID:  client.CallID(env.CallID),
		Reducer: pc.reducer,
		Status:  client.ReducerStatus(env.Status),
		Message: env.Message,
		Payload: env.Payload,
	}
	if env.Compressed && len(env.Payload) > 0 {
		payload, err := c.comp.decompress(env.Payload)
		if err != nil {
			out.Status = client.StatusFailed
			out.Message = fmt.Sprintf("decompress result: %v", err)
			out.Payload = nil
		} else {
			out.Payload = payload
		}
	}
	pc.promise.Set(out, nil)
}

// failPending resolves every outstanding call as failed. Used on teardown
// so no caller waits out a timeout against a dead connection.
func (c *Conn) failPending(reason string) {
	c.pending.Range(func(callID uint64, _ *pendingCall) bool {
		pc, ok := c.pending.LoadAndDelete(callID)
		if !ok {
			return true
		}
		pc.timer.Stop()
		pc.promise.Set(client.ReducerOutcome{
			CallID:  client.CallID(callID),
			Reducer: pc.reducer,
			Status:  client.StatusFailed,
			Message: reason,
		}, nil)
		return true
	})
}
