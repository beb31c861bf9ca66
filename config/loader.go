package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix environment-variable overrides must carry
// (e.g. GOSSIP_LOGGING_LEVEL overrides Logging.Level).
const EnvPrefix = "GOSSIP_"

// Options controls Load's behavior.
type Options struct {
	// FilePath is an optional YAML config file layered over the
	// defaults. A missing file is not an error.
	FilePath string
}

// Load builds a Config by layering, lowest to highest priority:
// built-in defaults, an optional YAML file, then GOSSIP_*
// environment variables.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if opts.FilePath != "" {
		if _, err := os.Stat(opts.FilePath); err == nil {
			if err := k.Load(file.Provider(opts.FilePath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", opts.FilePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", opts.FilePath, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultsMap flattens Default() into the dot-path keys koanf expects,
// forming the lowest-priority configuration layer.
func defaultsMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"store.driver":               d.Store.Driver,
		"store.path":                 d.Store.Path,
		"store.host":                 d.Store.Host,
		"store.port":                 d.Store.Port,
		"store.user":                 d.Store.User,
		"store.password":             d.Store.Password,
		"store.database":             d.Store.Database,
		"store.sslmode":              d.Store.SSLMode,
		"transport.node_url":         d.Transport.NodeURL,
		"transport.timeout":          d.Transport.Timeout,
		"retry.retry_delay":          d.Retry.RetryDelay,
		"retry.deduplication_window": d.Retry.DeduplicationWindow,
		"retry.pending_message_ttl":  d.Retry.PendingMessageTTL,
		"refresh.interval":           d.Refresh.Interval,
		"logging.level":              d.Logging.Level,
		"logging.format":             d.Logging.Format,
		"metrics.enabled":            d.Metrics.Enabled,
		"metrics.addr":               d.Metrics.Addr,
	}
}

// Validate rejects configurations the engine cannot safely run with.
func Validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		return fmt.Errorf("config: store.path is required for the sqlite driver")
	}
	if cfg.Store.Driver == "postgres" && (cfg.Store.Host == "" || cfg.Store.Database == "") {
		return fmt.Errorf("config: store.host and store.database are required for the postgres driver")
	}
	if cfg.Transport.NodeURL == "" {
		return fmt.Errorf("config: transport.node_url is required")
	}
	if cfg.Retry.RetryDelay <= 0 {
		return fmt.Errorf("config: retry.retry_delay must be positive")
	}
	return nil
}

// MustLoad loads configuration or panics on error, for main()
// bootstrapping.
func MustLoad(opts Options) *Config {
	cfg, err := Load(opts)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}
