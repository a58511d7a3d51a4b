// Package config loads tabkeeper settings from a YAML file, TABKEEPER_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/gateway"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TABKEEPER_SERVER_ADDR or TABKEEPER_STORE_DRIVER.
const EnvPrefix = "TABKEEPER"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config represents the complete tabkeeper configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	MCP     MCPConfig     `mapstructure:"mcp"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is text or json
	Format string `mapstructure:"format"`
}

// ServerConfig controls the HTTP adapter.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SessionConfig controls new sessions and lock eviction.
type SessionConfig struct {
	// InitialBalance is the starting wallet of every new session, as a decimal string
	InitialBalance string `mapstructure:"initial_balance"`
	// SweepInterval is how often idle session locks are swept (0 disables the sweeper)
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxIdle is how long a lock may go unused before a sweep removes it
	MaxIdle time.Duration `mapstructure:"max_idle"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig is only read when Driver is redis.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// GatewayConfig drives the simulated payment gateway.
type GatewayConfig struct {
	// Outcome is succeed, fail or hang
	Outcome     string        `mapstructure:"outcome"`
	SettleAfter time.Duration `mapstructure:"settle_after"`
	BaseURL     string        `mapstructure:"base_url"`
	// PollTimeout is the default wait of check_payment, MaxPollTimeout its cap
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	MaxPollTimeout time.Duration `mapstructure:"max_poll_timeout"`
}

// CatalogConfig points at an optional menu file. Empty means the built-in menu.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// MCPConfig controls the MCP adapter.
type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
	BaseURL   string `mapstructure:"base_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		Session: SessionConfig{
			InitialBalance: "100",
			SweepInterval:  time.Minute,
			MaxIdle:        30 * time.Minute,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tabkeeper:session:",
				TTL:    24 * time.Hour,
			},
		},
		Gateway: GatewayConfig{
			Outcome:        "succeed",
			SettleAfter:    time.Second,
			BaseURL:        "https://pay.example.com/l",
			PollTimeout:    2 * time.Second,
			MaxPollTimeout: 30 * time.Second,
		},
		MCP: MCPConfig{
			Transport: TransportStdio,
			Addr:      ":8081",
			BaseURL:   "http://localhost:8081",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("session.initial_balance", d.Session.InitialBalance)
	v.SetDefault("session.sweep_interval", d.Session.SweepInterval)
	v.SetDefault("session.max_idle", d.Session.MaxIdle)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.redis.password", d.Store.Redis.Password)
	v.SetDefault("store.redis.db", d.Store.Redis.DB)
	v.SetDefault("store.redis.prefix", d.Store.Redis.Prefix)
	v.SetDefault("store.redis.ttl", d.Store.Redis.TTL)

	v.SetDefault("gateway.outcome", d.Gateway.Outcome)
	v.SetDefault("gateway.settle_after", d.Gateway.SettleAfter)
	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.poll_timeout", d.Gateway.PollTimeout)
	v.SetDefault("gateway.max_poll_timeout", d.Gateway.MaxPollTimeout)

	v.SetDefault("catalog.path", d.Catalog.Path)

	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)
	v.SetDefault("mcp.base_url", d.MCP.BaseURL)
}

// New returns a viper instance with defaults and environment overrides
// registered. Keys use dots, environment variables use underscores.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional file at path, then decodes and validates the merged
// configuration.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitialBalance parses Session.InitialBalance.
func (c *Config) InitialBalance() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(c.Session.InitialBalance))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	if c.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout: must not be negative"))
	}

	if bal, err := c.InitialBalance(); err != nil {
		errs = append(errs, fmt.Errorf("session.initial_balance: %w", err))
	} else if bal.IsNegative() {
		errs = append(errs, errors.New("session.initial_balance: must not be negative"))
	}
	if c.Session.SweepInterval < 0 {
		errs = append(errs, errors.New("session.sweep_interval: must not be negative"))
	}
	if c.Session.SweepInterval > 0 && c.Session.MaxIdle <= 0 {
		errs = append(errs, errors.New("session.max_idle: must be positive when sweeping"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr: required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: must be %s or %s, got %q", DriverMemory, DriverRedis, c.Store.Driver))
	}

	if _, err := gateway.ParseOutcome(c.Gateway.Outcome); err != nil {
		errs = append(errs, fmt.Errorf("gateway.outcome: %w", err))
	}
	if c.Gateway.PollTimeout <= 0 {
		errs = append(errs, errors.New("gateway.poll_timeout: must be positive"))
	}
	if c.Gateway.MaxPollTimeout < c.Gateway.PollTimeout {
		errs = append(errs, errors.New("gateway.max_poll_timeout: must be at least poll_timeout"))
	}

	switch c.MCP.Transport {
	case TransportStdio, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("mcp.transport: must be %s or %s, got %q", TransportStdio, TransportSSE, c.MCP.Transport))
	}

	return errors.Join(errs...)
}
