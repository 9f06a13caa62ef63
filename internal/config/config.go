// ABOUTME: Configuration loading and parsing for kook-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete kook-gateway configuration
type Config struct {
	Bot      BotConfig      `yaml:"bot" toml:"bot"`
	Gateway  GatewayConfig  `yaml:"gateway" toml:"gateway"`
	Dispatch DispatchConfig `yaml:"dispatch" toml:"dispatch"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// BotConfig holds the platform credentials and handler switches
type BotConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenType string `yaml:"token_type" toml:"token_type"`
	APIBase   string `yaml:"api_base" toml:"api_base"`
	// SkipSelf drops events authored by the bot before they reach the handler
	SkipSelf *bool `yaml:"skip_self" toml:"skip_self"`
	Echo     bool  `yaml:"echo" toml:"echo"`
}

// GatewayConfig holds the session engine timing
type GatewayConfig struct {
	Compress          bool          `yaml:"compress" toml:"compress"`
	HandshakeTimeout  time.Duration `yaml:"-" toml:"-"`
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HandshakeTimeoutRaw  string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// DispatchConfig bounds handler concurrency and configures msg_id dedupe
type DispatchConfig struct {
	MaxInFlight int           `yaml:"max_in_flight" toml:"max_in_flight"`
	QueueSize   int           `yaml:"queue_size" toml:"queue_size"`
	DedupeTTL   time.Duration `yaml:"-" toml:"-"`
	DedupeSize  int           `yaml:"dedupe_size" toml:"dedupe_size"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// ServerConfig holds the health/metrics listener address. Empty disables it.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// SkipSelfAuthored reports whether self-authored events are filtered. Defaults to true.
func (b BotConfig) SkipSelfAuthored() bool {
	return b.SkipSelf == nil || *b.SkipSelf
}

// Defaults returns a config with every optional field filled in.
func Defaults() Config {
	return Config{
		Bot: BotConfig{
			TokenType: "bot",
			APIBase:   "https://www.kookapp.cn",
		},
		Gateway: GatewayConfig{
			HandshakeTimeout:  6 * time.Second,
			HeartbeatInterval: 6 * time.Second,
		},
		Dispatch: DispatchConfig{
			QueueSize:  256,
			DedupeTTL:  5 * time.Minute,
			DedupeSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}

	switch strings.ToLower(c.Bot.TokenType) {
	case "bot", "bearer":
	default:
		return fmt.Errorf("bot.token_type must be bot or bearer, got %q", c.Bot.TokenType)
	}

	u, err := url.Parse(c.Bot.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("bot.api_base must be an http(s) URL, got %q", c.Bot.APIBase)
	}

	if c.Gateway.HandshakeTimeout <= 0 {
		return fmt.Errorf("gateway.handshake_timeout must be positive")
	}
	if c.Gateway.HeartbeatInterval <= 0 {
		return fmt.Errorf("gateway.heartbeat_interval must be positive")
	}

	if c.Dispatch.MaxInFlight < 0 {
		return fmt.Errorf("dispatch.max_in_flight must not be negative")
	}
	if c.Dispatch.MaxInFlight > 0 && c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queue_size must be positive when max_in_flight is set")
	}
	if c.Dispatch.DedupeTTL < 0 {
		return fmt.Errorf("dispatch.dedupe_ttl must not be negative")
	}
	if c.Dispatch.DedupeTTL > 0 && c.Dispatch.DedupeSize <= 0 {
		return fmt.Errorf("dispatch.dedupe_size must be positive when dedupe is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.HandshakeTimeoutRaw != "" {
		cfg.Gateway.HandshakeTimeout, err = time.ParseDuration(cfg.Gateway.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Gateway.HandshakeTimeoutRaw, err)
		}
	}

	if cfg.Gateway.HeartbeatIntervalRaw != "" {
		cfg.Gateway.HeartbeatInterval, err = time.ParseDuration(cfg.Gateway.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Gateway.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Dispatch.DedupeTTLRaw != "" {
		cfg.Dispatch.DedupeTTL, err = time.ParseDuration(cfg.Dispatch.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Dispatch.DedupeTTLRaw, err)
		}
	}

	return nil
}
