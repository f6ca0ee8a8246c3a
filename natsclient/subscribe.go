package natsclient

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
)

// Subscribe sends one query subscription over the control subject and
// reports the module's answer through cb. Exactly one of OnApplied and
// OnError fires, the latter also covering a missing reply.
func (c *Conn) Subscribe(query string, cb client.SubscribeCallbacks) error {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
		return fmt.Errorf("subscribe: not connected")
	}

	data, err := encoding.Marshal(subscribeRequest{Client: c.clientID, Query: query})
	if err != nil {
		return fmt.Errorf("subscribe: encode: %w", err)
	}

	inbox := nats.NewInbox()
	var done atomic.Bool
	sub, err := nc.Subscribe(inbox, func(m *nats.Msg) {
		if !done.CompareAndSwap(false, true) {
			return
		}
		var reply subscribeReply
		if err := encoding.Unmarshal(m.Data, &reply); err != nil {
			fireSubscribeError(cb, fmt.Errorf("subscribe: decode reply: %w", err))
			return
		}
		if !reply.OK {
			fireSubscribeError(cb, fmt.Errorf("subscribe rejected: %s", reply.Error))
			return
		}
		if cb.OnApplied != nil {
			cb.OnApplied()
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: inbox: %w", err)
	}
	if err := sub.AutoUnsubscribe(1); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := nc.PublishRequest(subscribeSubject(c.cfg.Module), inbox, data); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("subscribe: %w", err)
	}

	time.AfterFunc(c.cfg.SubscribeTimeout, func() {
		if !done.CompareAndSwap(false, true) {
			return
		}
		_ = sub.Unsubscribe()
		fireSubscribeError(cb, fmt.Errorf("subscribe: no reply after %s", c.cfg.SubscribeTimeout))
	})
	return nil
}

func fireSubscribeError(cb client.SubscribeCallbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}
