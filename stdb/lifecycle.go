package stdb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/JulienLavocat/stdbridge/events"
	"github.com/JulienLavocat/stdbridge/telemetry"
)

type connState uint8

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateError
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateError:
		return "error"
	default:
		return "unknown"
	}
}

// moveState advances the state machine and reports whether the state
// actually changed. Repeated same-state reports from the client collapse
// into nothing, which is what makes "exactly one event per transition" hold.
func (b *Bridge[C]) moveState(to connState) bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.state == to {
		return false
	}
	b.state = to
	return true
}

func (b *Bridge[C]) currentState() connState {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *Bridge[C]) toConnecting() {
	if !b.moveState(stateConnecting) {
		return
	}
	log.Info().Str("module", b.cfg.ModuleName).Msg("Connecting")
	telemetry.LifecycleTransitionsTotal.With(stateConnecting.String()).Inc()
	b.publish(notice{class: classLifecycle, deliver: func() {
		b.connectingQ.Push(events.Connecting{})
	}})
}

func (b *Bridge[C]) toConnected() {
	if !b.moveState(stateConnected) {
		return
	}
	b.setReady(true)
	log.Info().Str("module", b.cfg.ModuleName).Msg("Connected")
	telemetry.LifecycleTransitionsTotal.With(stateConnected.String()).Inc()
	b.publish(notice{class: classLifecycle, deliver: func() {
		b.connectedQ.Push(events.Connected{})
	}})
}

func (b *Bridge[C]) toDisconnected(reason error) {
	if !b.moveState(stateDisconnected) {
		return
	}
	b.setReady(false)
	if reason != nil {
		log.Warn().Err(reason).Str("module", b.cfg.ModuleName).Msg("Disconnected")
	} else {
		log.Info().Str("module", b.cfg.ModuleName).Msg("Disconnected")
	}
	telemetry.LifecycleTransitionsTotal.With(stateDisconnected.String()).Inc()
	b.publish(notice{class: classLifecycle, deliver: func() {
		b.disconnectedQ.Push(events.Disconnected{Reason: reason})
	}})
}

func (b *Bridge[C]) toError(err error) {
	if !b.moveState(stateError) {
		return
	}
	b.setReady(false)
	log.Error().Err(err).Str("module", b.cfg.ModuleName).Msg("Connection error")
	telemetry.LifecycleTransitionsTotal.With(stateError.String()).Inc()
	b.publish(notice{class: classLifecycle, deliver: func() {
		b.connErrQ.Push(events.ConnectionError{Err: err})
	}})
}

// runController owns the connection for the bridge's lifetime: build the
// client, wire every callback, then hand control to Run until the
// connection ends. Fatal setup errors become ConnectionError events rather
// than process failures.
func (b *Bridge[C]) runController(ctx context.Context) {
	defer close(b.doneCh)

	b.toConnecting()

	conn, err := b.cfg.Connect(ConnectParams{URI: b.cfg.URI, ModuleName: b.cfg.ModuleName})
	if err != nil {
		b.toError(fmt.Errorf("connect %s: %w", b.cfg.URI, err))
		return
	}

	conn.OnConnect(b.toConnected)
	conn.OnDisconnect(b.toDisconnected)
	conn.OnConnectError(b.toError)
	conn.OnReducerOutcome(b.reducers.resolve)
	b.installRegistrations(conn)
	b.setConn(conn)

	runFn := b.cfg.Run
	if runFn == nil {
		runFn = func(ctx context.Context, c C) error { return c.Run(ctx) }
	}

	err = runFn(ctx, conn)

	// The client normally reported the terminal transition through its own
	// callbacks; these cover clients that return without doing so.
	switch b.currentState() {
	case stateConnected:
		b.toDisconnected(err)
	case stateConnecting:
		if err != nil {
			b.toError(err)
		} else {
			b.toDisconnected(nil)
		}
	}

	if err != nil {
		log.Error().Err(err).Str("module", b.cfg.ModuleName).Msg("Connection run ended")
	}
}
