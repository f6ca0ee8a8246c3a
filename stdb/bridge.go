package stdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/events"
	"github.com/JulienLavocat/stdbridge/mailbox"
	"github.com/JulienLavocat/stdbridge/queue"
	"github.com/JulienLavocat/stdbridge/telemetry"
)

// ConnectParams carry the connection description into Config.Connect.
type ConnectParams struct {
	URI        string
	ModuleName string
}

// Config describes one bridge instance. URI, ModuleName and Connect are
// required; everything else has working defaults.
type Config[C client.Conn] struct {
	// URI of the server hosting the module.
	URI string

	// ModuleName identifies the module on that server.
	ModuleName string

	// Connect constructs the client. It must not dial; the dial belongs in
	// Run so that connection failures surface as lifecycle events instead
	// of failing setup.
	Connect func(p ConnectParams) (C, error)

	// Run drives the connection and blocks until it ends. Nil means
	// conn.Run(ctx).
	Run func(ctx context.Context, conn C) error

	// Mailbox bounds the cross-thread channel. The zero value keeps it
	// unbounded, which is the default contract.
	Mailbox mailbox.Policy

	// Trace holds glob patterns over table names; matching tables have
	// their row events logged at trace level.
	Trace []string
}

// noticeClass tags mailbox envelopes for diagnostics and metrics.
type noticeClass uint8

const (
	classRow noticeClass = iota
	classLifecycle
	classReducer
)

func (c noticeClass) String() string {
	switch c {
	case classRow:
		return "row"
	case classLifecycle:
		return "lifecycle"
	case classReducer:
		return "reducer"
	default:
		return "unknown"
	}
}

// notice is the mailbox payload: routing metadata plus the typed delivery
// closure. Closures are bound on the producing goroutine and executed only
// on the host thread during Tick.
type notice struct {
	class   noticeClass
	table   string
	kind    events.Kind
	deliver func()
}

// Bridge connects one client to one host. Construct with New, register
// tables/views/reducers, Start once, then Tick every host tick.
type Bridge[C client.Conn] struct {
	cfg   Config[C]
	trace *TraceFilter

	mbox   *mailbox.Mailbox[notice]
	queues *queue.Registry

	// registrations, host thread only, frozen at Start
	tables   map[string]*tableReg
	order    []string
	flushers []flusher
	reducers *callRegistry

	// lifecycle queues, created in New
	connectingQ   *queue.Queue[events.Connecting]
	connectedQ    *queue.Queue[events.Connected]
	disconnectedQ *queue.Queue[events.Disconnected]
	connErrQ      *queue.Queue[events.ConnectionError]

	stateMu sync.Mutex
	state   connState

	connMu    sync.RWMutex
	conn      C
	connSet   bool
	connReady bool

	started  atomic.Bool
	stopping atomic.Bool
	cancel   context.CancelFunc
	doneCh   chan struct{}

	queueCount atomic.Int64
	scratch    []mailbox.Envelope[notice]
}

// New validates cfg and builds an unstarted bridge.
func New[C client.Conn](cfg Config[C]) (*Bridge[C], error) {
	if cfg.URI == "" {
		return nil, &ConfigError{Op: "new bridge", Subject: "uri", Reason: "must not be empty"}
	}
	if cfg.ModuleName == "" {
		return nil, &ConfigError{Op: "new bridge", Subject: "module", Reason: "must not be empty"}
	}
	if cfg.Connect == nil {
		return nil, &ConfigError{Op: "new bridge", Subject: "connect", Reason: "must not be nil"}
	}
	trace, err := NewTraceFilter(cfg.Trace)
	if err != nil {
		return nil, &ConfigError{Op: "new bridge", Subject: "trace", Reason: err.Error()}
	}

	b := &Bridge[C]{
		cfg:      cfg,
		trace:    trace,
		mbox:     mailbox.New[notice](cfg.Mailbox),
		queues:   queue.NewRegistry(),
		tables:   make(map[string]*tableReg),
		reducers: newCallRegistry(),
		state:    stateDisconnected,
		doneCh:   make(chan struct{}),
	}

	b.connectingQ = queue.Of[events.Connecting](b.queues)
	b.connectedQ = queue.Of[events.Connected](b.queues)
	b.disconnectedQ = queue.Of[events.Disconnected](b.queues)
	b.connErrQ = queue.Of[events.ConnectionError](b.queues)
	b.syncQueueCount()

	return b, nil
}

// Start launches the connection controller and freezes registrations.
// It returns immediately; connection progress arrives as lifecycle events.
func (b *Bridge[C]) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	cctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	log.Info().
		Str("module", b.cfg.ModuleName).
		Str("uri", b.cfg.URI).
		Int("tables", len(b.tables)).
		Int("reducers", b.reducers.size()).
		Msg("Starting bridge")

	go b.runController(cctx)
	return nil
}

// Stop cancels the controller and waits for it, bounded by ctx. On timeout
// the connection is force-closed. After Stop the mailbox drops publishes;
// one more Tick delivers whatever was already in flight.
func (b *Bridge[C]) Stop(ctx context.Context) error {
	if !b.started.Load() {
		return ErrNotStarted
	}
	if !b.stopping.CompareAndSwap(false, true) {
		<-b.doneCh
		return nil
	}

	log.Info().Str("module", b.cfg.ModuleName).Msg("Stopping bridge")
	b.cancel()

	select {
	case <-b.doneCh:
		b.mbox.Close()
		return nil
	case <-ctx.Done():
		if conn, ok := b.rawConn(); ok {
			_ = conn.Close()
		}
		b.mbox.Close()
		return fmt.Errorf("stop bridge: %w", ctx.Err())
	}
}

// Tick drains the mailbox, delivers every pending event into its queue,
// reconciles views and rotates all queues. Host thread, once per tick.
func (b *Bridge[C]) Tick() {
	start := time.Now()

	batch := b.mbox.DrainAll(b.scratch)
	for i := range batch {
		batch[i].Msg.deliver()
	}
	for _, f := range b.flushers {
		f.flush()
	}
	b.queues.RotateAll()

	// The drained slice becomes next tick's pending buffer.
	b.scratch = batch

	telemetry.EventsDispatchedTotal.Add(float64(len(batch)))
	telemetry.TickBatchSize.Observe(float64(len(batch)))
	telemetry.TickDurationSeconds.Observe(time.Since(start).Seconds())
}

// Conn returns the connection handle once the link is established, and
// ErrNotConnected otherwise. It never blocks.
func (b *Bridge[C]) Conn() (C, error) {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	if !b.connSet || !b.connReady {
		var zero C
		return zero, ErrNotConnected
	}
	return b.conn, nil
}

func (b *Bridge[C]) rawConn() (C, bool) {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.conn, b.connSet
}

func (b *Bridge[C]) setConn(conn C) {
	b.connMu.Lock()
	b.conn = conn
	b.connSet = true
	b.connMu.Unlock()
}

func (b *Bridge[C]) setReady(ready bool) {
	b.connMu.Lock()
	b.connReady = ready
	b.connMu.Unlock()
}

// ConnectingQueue holds one event per started connection attempt.
func (b *Bridge[C]) ConnectingQueue() *queue.Queue[events.Connecting] {
	return b.connectingQ
}

// ConnectedQueue holds one event per established connection.
func (b *Bridge[C]) ConnectedQueue() *queue.Queue[events.Connected] {
	return b.connectedQ
}

// DisconnectedQueue holds one event per connection that ended after having
// been established.
func (b *Bridge[C]) DisconnectedQueue() *queue.Queue[events.Disconnected] {
	return b.disconnectedQ
}

// ConnectionErrorQueue holds one event per failed connection attempt,
// including fatal setup errors.
func (b *Bridge[C]) ConnectionErrorQueue() *queue.Queue[events.ConnectionError] {
	return b.connErrQ
}

// publish hands a notice to the mailbox and counts it. Reports whether the
// mailbox accepted it.
func (b *Bridge[C]) publish(n notice) bool {
	if b.mbox.Publish(n) {
		telemetry.EventsPublishedTotal.With(n.class.String()).Inc()
		return true
	}
	return false
}

func (b *Bridge[C]) syncQueueCount() {
	b.queueCount.Store(int64(b.queues.Size()))
}

// MailboxStats implements telemetry.StatsProvider.
func (b *Bridge[C]) MailboxStats() (int, uint64) {
	return b.mbox.Len(), b.mbox.Dropped()
}

// QueuesRegistered implements telemetry.StatsProvider.
func (b *Bridge[C]) QueuesRegistered() int {
	return int(b.queueCount.Load())
}

// CallsInFlight implements telemetry.StatsProvider.
func (b *Bridge[C]) CallsInFlight() int {
	return b.reducers.inflight()
}
