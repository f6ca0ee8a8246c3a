package natsclient

import (
	"fmt"
	"time"
)

const (
	DefaultConnectTimeout      = 5 * time.Second
	DefaultReconnectWait       = time.Second
	DefaultCallTimeout         = 5 * time.Second
	DefaultSubscribeTimeout    = 5 * time.Second
	DefaultCompressionMinBytes = 1024
)

// Config describes a NATS-backed module connection. URL and Module are
// required; zero values elsewhere pick the defaults above.
type Config struct {
	// URL is the NATS server URL, e.g. nats://127.0.0.1:4222.
	URL string

	// Module is the module name; it scopes every subject this client uses.
	Module string

	// ClientID overrides the machine-derived identity used in the results
	// subject. Leave empty outside of tests.
	ClientID string

	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration

	// ReconnectWait is the pause between reconnect attempts.
	ReconnectWait time.Duration

	// MaxReconnects limits reconnect attempts. Zero means unlimited,
	// negative disables reconnects entirely.
	MaxReconnects int

	// CallTimeout bounds each reducer call; expired calls produce a failed
	// outcome instead of hanging forever.
	CallTimeout time.Duration

	// SubscribeTimeout bounds each subscription request.
	SubscribeTimeout time.Duration

	// CompressionLevel selects zstd speed/ratio, 0 (off) to 4 (best).
	CompressionLevel int

	// CompressionMinBytes is the smallest payload worth compressing.
	CompressionMinBytes int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.CompressionMinBytes <= 0 {
		c.CompressionMinBytes = DefaultCompressionMinBytes
	}
	return c
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats client: url must not be empty")
	}
	if c.Module == "" {
		return fmt.Errorf("nats client: module must not be empty")
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 4 {
		return fmt.Errorf("nats client: compression level %d out of range 0-4", c.CompressionLevel)
	}
	return nil
}
