// Package config loads and validates the engine's runtime
// configuration: config file + environment overrides, layered with
// koanf (github.com/knadh/koanf).
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Transport TransportConfig `koanf:"transport"`
	Retry     RetryConfig     `koanf:"retry"`
	Refresh   RefreshConfig   `koanf:"refresh"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver"` // "memory", "sqlite", or "postgres"
	Path   string `koanf:"path"`   // sqlite database file, or ":memory:"

	// Postgres connection parameters, used when Driver == "postgres".
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"sslmode"`
}

// TransportConfig configures the bulletin-node client.
type TransportConfig struct {
	NodeURL string        `koanf:"node_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// RetryConfig governs the outgoing send retry/backoff policy.
type RetryConfig struct {
	RetryDelay             time.Duration `koanf:"retry_delay"`
	DeduplicationWindow     time.Duration `koanf:"deduplication_window"`
	PendingMessageTTL       time.Duration `koanf:"pending_message_ttl"`
}

// RefreshConfig governs the keep-alive/rekey driver.
type RefreshConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// LoggingConfig configures the zap-backed logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// MetricsConfig configures the Prometheus metrics collector.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Default returns the built-in defaults, the lowest layer in the
// koanf stack.
func Default() Config {
	return Config{
		Store:     StoreConfig{Driver: "sqlite", Path: "gossip.db"},
		Transport: TransportConfig{NodeURL: "https://bulletin.example/", Timeout: 15 * time.Second},
		Retry: RetryConfig{
			RetryDelay:          5 * time.Second,
			DeduplicationWindow: 30 * time.Second,
			PendingMessageTTL:   7 * 24 * time.Hour,
		},
		Refresh: RefreshConfig{Interval: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
	}
}
