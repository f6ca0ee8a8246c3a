package stdb

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start and by registrations that
	// arrive after Start.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("bridge not started")

	// ErrNotConnected is returned by submissions while the connection is
	// not ready. Submissions fail fast; they never block waiting for a
	// connection.
	ErrNotConnected = errors.New("connection not ready")
)

// ConfigError reports a setup-time misconfiguration: conflicting or empty
// registration masks, duplicate registrations, undeclared reducers, invalid
// bridge config. It is fatal to the operation that detected it and to
// nothing else.
type ConfigError struct {
	Op      string
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Subject, e.Reason)
}
