// Package stdb bridges an asynchronous realtime-database client into the
// per-tick event queues of a simulation or game host.
//
// The client pushes row changes, connection lifecycle changes and reducer
// outcomes from its own goroutines at arbitrary times; the host wants to
// consume them as typed, ordered queues read once per tick on its own
// thread. The bridge sits between the two.
//
// # Architecture
//
// The bridge consists of four stages:
//
// 1. Router: installs raw callbacks with the client for every registered
// (table, kind) pair, decodes raw msgpack rows into typed records and
// publishes delivery closures to the mailbox.
//
// 2. Mailbox: an unbounded multi-producer single-consumer channel. Publish
// never blocks the client's delivery goroutine; drain happens only on the
// host thread.
//
// 3. Dispatch: once per tick, Tick drains the mailbox, executes every
// delivery in arrival order, reconciles views, then rotates all queues.
//
// 4. Queues: double-buffered per-record-type queues. Reads are
// non-destructive and lock-free; events become visible exactly once, at the
// rotate following their arrival.
//
// # Guarantees
//
//   - Client callbacks never block and never panic the process.
//   - Events of one (table, kind) preserve arrival order end to end.
//   - An event is visible at the first tick boundary after it arrived;
//     worst-case latency is one full tick.
//   - Rotation is unconditional: queues that received nothing read empty,
//     and nothing lingers across ticks.
//
// Example usage:
//
//	b, err := stdb.New(stdb.Config[*natsclient.Conn]{
//		URI:        "nats://localhost:4222",
//		ModuleName: "chat",
//		Connect: func(p stdb.ConnectParams) (*natsclient.Conn, error) {
//			return natsclient.Connect(natsclient.Config{URL: p.URI, Module: p.ModuleName})
//		},
//	})
//	if err != nil {
//		return err
//	}
//	if err := stdb.AddTable[Player](b, "players", events.All()); err != nil {
//		return err
//	}
//	if err := stdb.AddReducer[SendMessageResult](b, "send_message"); err != nil {
//		return err
//	}
//	if err := b.Start(ctx); err != nil {
//		return err
//	}
//
//	inserts := stdb.InsertQueue[Player](b)
//	for range time.Tick(50 * time.Millisecond) {
//		b.Tick()
//		for _, ev := range inserts.Read() {
//			spawn(ev.Row)
//		}
//	}
//
// Registration (AddTable, AddView, AddReducer) happens between New and
// Start. Tick and all queue reads happen on one goroutine, the host thread.
package stdb
