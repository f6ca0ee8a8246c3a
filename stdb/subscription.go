package stdb

import "github.com/JulienLavocat/stdbridge/client"

// Subscribe forwards a subscription request to the connection. The query
// string is opaque here; the server owns its language. Fails fast with
// ErrNotConnected while the connection is not ready.
//
// The callbacks run on client goroutines: flip an atomic or publish to your
// own channel rather than touching host state directly.
func (b *Bridge[C]) Subscribe(query string, cb client.SubscribeCallbacks) error {
	conn, err := b.Conn()
	if err != nil {
		return err
	}
	return conn.Subscribe(query, cb)
}

// SubscriptionBuilder is the fluent form of Subscribe.
type SubscriptionBuilder[C client.Conn] struct {
	b         *Bridge[C]
	onApplied func()
	onError   func(error)
}

// SubscriptionBuilder starts a subscription request:
//
//	b.SubscriptionBuilder().
//		OnApplied(func() { ready.Store(true) }).
//		OnError(func(err error) { log.Error().Err(err).Msg("subscribe") }).
//		Subscribe("SELECT * FROM players")
func (b *Bridge[C]) SubscriptionBuilder() *SubscriptionBuilder[C] {
	return &SubscriptionBuilder[C]{b: b}
}

func (s *SubscriptionBuilder[C]) OnApplied(fn func()) *SubscriptionBuilder[C] {
	s.onApplied = fn
	return s
}

func (s *SubscriptionBuilder[C]) OnError(fn func(error)) *SubscriptionBuilder[C] {
	s.onError = fn
	return s
}

func (s *SubscriptionBuilder[C]) Subscribe(query string) error {
	return s.b.Subscribe(query, client.SubscribeCallbacks{
		OnApplied: s.onApplied,
		OnError:   s.onError,
	})
}
