package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// ConnectionConfiguration describes the module connection
type ConnectionConfiguration struct {
	URI                 string `toml:"uri"`                   // Server URL, e.g. nats://127.0.0.1:4222
	Module              string `toml:"module"`                // Module name on that server
	ConnectTimeoutMS    int    `toml:"connect_timeout_ms"`    // Dial timeout
	ReconnectWaitMS     int    `toml:"reconnect_wait_ms"`     // Pause between reconnect attempts
	MaxReconnects       int    `toml:"max_reconnects"`        // 0 = unlimited, negative disables
	CallTimeoutMS       int    `toml:"call_timeout_ms"`       // Reducer call timeout
	SubscribeTimeoutMS  int    `toml:"subscribe_timeout_ms"`  // Subscription request timeout
	CompressionLevel    int    `toml:"compression_level"`     // zstd level 0 (off) to 4 (best)
	CompressionMinBytes int    `toml:"compression_min_bytes"` // Smallest payload worth compressing
}

// BridgeConfiguration controls event delivery into the host loop
type BridgeConfiguration struct {
	TickIntervalMS    int      `toml:"tick_interval_ms"`    // Host tick period
	MailboxMaxPending int      `toml:"mailbox_max_pending"` // 0 = unbounded
	MailboxDropOldest bool     `toml:"mailbox_drop_oldest"` // Overflow drops oldest instead of newest
	TraceTables       []string `toml:"trace_tables"`        // Glob patterns of tables to trace-log
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure
type Configuration struct {
	ClientID string `toml:"client_id"` // Overrides the machine-derived identity

	Connection ConnectionConfiguration `toml:"connection"`
	Bridge     BridgeConfiguration     `toml:"bridge"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "config.toml", "Path to configuration file")
	URIFlag         = flag.String("uri", "", "Server URI (overrides config)")
	ModuleFlag      = flag.String("module", "", "Module name (overrides config)")
	TickMSFlag      = flag.Int("tick-ms", 0, "Tick interval in ms (overrides config)")
	MetricsPortFlag = flag.Int("metrics-port", 0, "Prometheus port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	Connection: ConnectionConfiguration{
		URI:                 "nats://127.0.0.1:4222",
		ConnectTimeoutMS:    5000,
		ReconnectWaitMS:     1000,
		MaxReconnects:       0, // Unlimited
		CallTimeoutMS:       5000,
		SubscribeTimeoutMS:  5000,
		CompressionLevel:    1,
		CompressionMinBytes: 1024,
	},

	Bridge: BridgeConfiguration{
		TickIntervalMS:    50,
		MailboxMaxPending: 0, // Unbounded
		MailboxDropOldest: false,
		TraceTables:       []string{},
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *URIFlag != "" {
		Config.Connection.URI = *URIFlag
	}
	if *ModuleFlag != "" {
		Config.Connection.Module = *ModuleFlag
	}
	if *TickMSFlag != 0 {
		Config.Bridge.TickIntervalMS = *TickMSFlag
	}
	if *MetricsPortFlag != 0 {
		Config.Prometheus.Port = *MetricsPortFlag
	}

	return nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Connection.URI == "" {
		return fmt.Errorf("connection uri must not be empty")
	}

	if Config.Connection.Module == "" {
		return fmt.Errorf("connection module must not be empty")
	}

	if Config.Connection.ConnectTimeoutMS < 1 {
		return fmt.Errorf("connect timeout must be >= 1ms")
	}

	if Config.Connection.ReconnectWaitMS < 1 {
		return fmt.Errorf("reconnect wait must be >= 1ms")
	}

	if Config.Connection.CallTimeoutMS < 1 {
		return fmt.Errorf("call timeout must be >= 1ms")
	}

	if Config.Connection.SubscribeTimeoutMS < 1 {
		return fmt.Errorf("subscribe timeout must be >= 1ms")
	}

	if Config.Connection.CompressionLevel < 0 || Config.Connection.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be 0-4, got %d", Config.Connection.CompressionLevel)
	}

	if Config.Connection.CompressionMinBytes < 0 {
		return fmt.Errorf("compression min bytes must be >= 0")
	}

	if Config.Bridge.TickIntervalMS < 1 {
		return fmt.Errorf("tick interval must be >= 1ms")
	}

	if Config.Bridge.MailboxMaxPending < 0 {
		return fmt.Errorf("mailbox max pending must be >= 0")
	}

	// Trace patterns must compile before the bridge sees them
	for _, pattern := range Config.Bridge.TraceTables {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid trace pattern %q: %w", pattern, err)
		}
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", Config.Logging.Format)
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}
