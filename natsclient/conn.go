// Package natsclient is a module connection over NATS. Row changes arrive
// on per-table subjects, reducer calls go out as fire-and-forget publishes
// answered on a per-client results subject, and subscriptions use
// request/reply on a control subject.
package natsclient

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/client"
	"github.com/JulienLavocat/stdbridge/encoding"
	"github.com/JulienLavocat/stdbridge/id"
)

// rowHandlers holds the callbacks registered for one table. Unset slots
// mean that operation was never asked for and its rows are skipped.
type rowHandlers struct {
	insert func(row []byte)
	update func(oldRow, newRow []byte)
	delete func(row []byte)
}

// Conn is a NATS-backed client.Conn. Build it with Connect, register
// callbacks, then drive it with Run.
type Conn struct {
	cfg      Config
	clientID string
	comp     *compressor
	ids      id.Generator

	mu             sync.Mutex
	tables         map[string]*rowHandlers
	onConnect      func()
	onDisconnect   func(error)
	onConnectError func(error)
	onOutcome      func(client.ReducerOutcome)
	nc             *nats.Conn

	pending *xsync.MapOf[uint64, *pendingCall]

	closed    atomic.Bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

var _ client.Conn = (*Conn)(nil)

// Connect validates cfg and builds an undialed connection. The dial
// happens in Run so that network failures surface there, not here.
func Connect(cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIdentity()
	}

	return &Conn{
		cfg:      cfg,
		clientID: clientID,
		comp:     newCompressor(cfg.CompressionLevel, cfg.CompressionMinBytes),
		ids:      id.NewTimeOrdered(uint64(os.Getpid())),
		tables:   make(map[string]*rowHandlers),
		pending:  xsync.NewMapOf[uint64, *pendingCall](),
		closedCh: make(chan struct{}),
	}, nil
}

// ClientID returns the identity used in this connection's results subject.
func (c *Conn) ClientID() string {
	return c.clientID
}

func (c *Conn) handlers(table string) *rowHandlers {
	h, ok := c.tables[table]
	if !ok {
		h = &rowHandlers{}
		c.tables[table] = h
	}
	return h
}

func (c *Conn) OnInsert(table string, fn func(row []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers(table).insert = fn
}

func (c *Conn) OnUpdate(table string, fn func(oldRow, newRow []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers(table).update = fn
}

func (c *Conn) OnDelete(table string, fn func(row []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers(table).delete = fn
}

func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

func (c *Conn) OnDisconnect(fn func(reason error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Conn) OnConnectError(fn func(err error)) {
	c.mu.Lock()
	c.onConnectError = fn
	c.mu.Unlock()
}

func (c *Conn) OnReducerOutcome(fn func(client.ReducerOutcome)) {
	c.mu.Lock()
	c.onOutcome = fn
	c.mu.Unlock()
}

func (c *Conn) fireConnect() {
	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) fireDisconnect(reason error) {
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func (c *Conn) fireConnectError(err error) {
	c.mu.Lock()
	fn := c.onConnectError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Run dials the server, wires subscriptions and blocks until ctx ends or
// the connection is closed for good. Transient drops are handled by the
// NATS reconnect machinery and surface as disconnect/connect callbacks.
func (c *Conn) Run(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("nats client: closed")
	}

	maxReconnects := c.cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}

	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("stdbridge-"+c.cfg.Module),
		nats.Timeout(c.cfg.ConnectTimeout),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info().Str("module", c.cfg.Module).Msg("NATS reconnected")
			c.fireConnect()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, derr error) {
			log.Warn().Err(derr).Str("module", c.cfg.Module).Msg("NATS connection lost")
			c.fireDisconnect(derr)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.closeOnce.Do(func() { close(c.closedCh) })
		}),
	)
	if err != nil {
		err = fmt.Errorf("connect %s: %w", c.cfg.URL, err)
		c.fireConnectError(err)
		return err
	}

	c.mu.Lock()
	c.nc = nc
	tables := make(map[string]*rowHandlers, len(c.tables))
	for name, h := range c.tables {
		tables[name] = h
	}
	c.mu.Unlock()

	if err := c.subscribeAll(nc, tables); err != nil {
		nc.Close()
		c.fireConnectError(err)
		return err
	}

	log.Info().
		Str("module", c.cfg.Module).
		Str("url", nc.ConnectedUrl()).
		Int("tables", len(tables)).
		Msg("Connected to module")
	c.fireConnect()

	select {
	case <-ctx.Done():
		c.failPending("connection closing")
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
		select {
		case <-c.closedCh:
		case <-time.After(c.cfg.ConnectTimeout):
			nc.Close()
		}
		return nil
	case <-c.closedCh:
		// Close() was called, or reconnects ran out.
		nc.Close()
		c.failPending("connection closed")
		return nil
	}
}

func (c *Conn) subscribeAll(nc *nats.Conn, tables map[string]*rowHandlers) error {
	results := resultsSubject(c.cfg.Module, c.clientID)
	if _, err := nc.Subscribe(results, c.handleResult); err != nil {
		return fmt.Errorf("subscribe %s: %w", results, err)
	}

	for table, h := range tables {
		subj := rowSubject(c.cfg.Module, table)
		if _, err := nc.Subscribe(subj, func(m *nats.Msg) {
			c.dispatchRow(table, h, m.Data)
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", subj, err)
		}
	}
	return nil
}

// dispatchRow decodes one row envelope and fires the matching handler.
// Runs on the subscription's delivery goroutine, so rows of one table
// arrive in publish order.
func (c *Conn) dispatchRow(table string, h *rowHandlers, data []byte) {
	var env rowEnvelope
	if err := encoding.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("Dropping undecodable row envelope")
		return
	}

	oldRow, newRow := env.Old, env.New
	if env.Compressed {
		var err error
		if len(oldRow) > 0 {
			if oldRow, err = c.comp.decompress(oldRow); err != nil {
				log.Warn().Err(err).Str("table", table).Msg("Dropping row with bad compression")
				return
			}
		}
		if len(newRow) > 0 {
			if newRow, err = c.comp.decompress(newRow); err != nil {
				log.Warn().Err(err).Str("table", table).Msg("Dropping row with bad compression")
				return
			}
		}
	}

	switch env.Op {
	case opInsert:
		if h.insert != nil {
			h.insert(newRow)
		}
	case opUpdate:
		if h.update != nil {
			h.update(oldRow, newRow)
		}
	case opDelete:
		if h.delete != nil {
			h.delete(oldRow)
		}
	default:
		log.Warn().Uint8("op", env.Op).Str("table", table).Msg("Skipping unknown row operation")
	}
}

// Close tears the connection down. Safe to call more than once and
// concurrently with Run.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
	c.closeOnce.Do(func() { close(c.closedCh) })
	return nil
}
