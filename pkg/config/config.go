// Package config loads and validates the bot configuration: a YAML file
// with IRCCLAW_* environment overrides applied on top. Shape errors are
// fatal before any connection is dialed or event dispatched.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks a configuration that fails shape validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration document.
type Config struct {
	LogLevel  string `yaml:"log_level" env:"IRCCLAW_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"IRCCLAW_LOG_FORMAT"`

	// AIAPIKey overrides the api_key of every ai plugin spec, so the secret
	// can stay out of the YAML file.
	AIAPIKey string `yaml:"-" env:"IRCCLAW_AI_API_KEY"`

	API         APIConfig          `yaml:"api"`
	Connections []ConnectionConfig `yaml:"connections"`
	Plugins     []PluginSpec       `yaml:"plugins"`
}

// APIConfig configures the optional status HTTP/WebSocket surface. An empty
// Addr disables it; an empty Token leaves it unauthenticated.
type APIConfig struct {
	Addr  string `yaml:"addr" env:"IRCCLAW_API_ADDR"`
	Token string `yaml:"token" env:"IRCCLAW_API_TOKEN"`
}

// ConnectionConfig describes one server connection.
type ConnectionConfig struct {
	Name     string `yaml:"name"`
	Addr     string `yaml:"addr"`   // host:port for TCP/TLS
	TLS      bool   `yaml:"tls"`
	WSURL    string `yaml:"ws_url"` // IRC-over-WebSocket gateway, alternative to addr
	Nick     string `yaml:"nick"`
	AltNick  string `yaml:"altnick"`
	User     string `yaml:"user"`
	Realname string `yaml:"realname"`
	Password string `yaml:"password"` // server password (PASS), optional

	Channels []string `yaml:"channels"`
	Plugins  []string `yaml:"plugins"` // plugin names attached to only this connection

	Flood FloodConfig `yaml:"flood"`
}

// FloodConfig tunes the outbound token bucket.
type FloodConfig struct {
	Burst   int `yaml:"burst"`
	DelayMS int `yaml:"delay_ms"`
}

// PluginSpec selects a plugin by name and carries its options. Only the
// fields belonging to the named plugin are read; the rest stay zero.
type PluginSpec struct {
	Name string `yaml:"name"`

	// seen
	DBPath string `yaml:"db_path,omitempty"`

	// lua
	Scripts []string `yaml:"scripts,omitempty"`

	// cron
	Schedules []ScheduleSpec `yaml:"schedules,omitempty"`

	// ai
	BaseURL      string `yaml:"base_url,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	Model        string `yaml:"model,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

// ScheduleSpec is one cron announcement entry.
type ScheduleSpec struct {
	Expr       string `yaml:"expr"`
	Connection string `yaml:"connection"`
	Target     string `yaml:"target"`
	Text       string `yaml:"text"`
}

// Load reads the YAML file at path, applies environment overrides, fills
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read, for tests and embedded configs.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %v", ErrInvalidConfig, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.AIAPIKey != "" {
		for i := range c.Plugins {
			if c.Plugins[i].Name == "ai" {
				c.Plugins[i].APIKey = c.AIAPIKey
			}
		}
	}
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.User == "" {
			conn.User = conn.Nick
		}
		if conn.Realname == "" {
			conn.Realname = conn.Nick
		}
		if conn.AltNick == "" && conn.Nick != "" {
			conn.AltNick = conn.Nick + "_"
		}
		if conn.Flood.Burst <= 0 {
			conn.Flood.Burst = 4
		}
		if conn.Flood.DelayMS <= 0 {
			conn.Flood.DelayMS = 500
		}
	}
}

// Validate checks the configuration shape. All violations are wrapped in
// ErrInvalidConfig and identify the offending entry.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("%w: connections must be a non-empty list", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("%w: connections[%d]: name is required", ErrInvalidConfig, i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("%w: duplicate connection name %q", ErrInvalidConfig, conn.Name)
		}
		seen[conn.Name] = true

		if conn.Addr == "" && conn.WSURL == "" {
			return fmt.Errorf("%w: connection %q: one of addr or ws_url is required",
				ErrInvalidConfig, conn.Name)
		}
		if conn.Addr != "" && conn.WSURL != "" {
			return fmt.Errorf("%w: connection %q: addr and ws_url are mutually exclusive",
				ErrInvalidConfig, conn.Name)
		}
		if conn.Nick == "" {
			return fmt.Errorf("%w: connection %q: nick is required", ErrInvalidConfig, conn.Name)
		}
	}

	for i, spec := range c.Plugins {
		if spec.Name == "" {
			return fmt.Errorf("%w: plugins[%d]: name is required", ErrInvalidConfig, i)
		}
	}

	for _, conn := range c.Connections {
		for _, name := range conn.Plugins {
			if name == "" {
				return fmt.Errorf("%w: connection %q: empty plugin reference",
					ErrInvalidConfig, conn.Name)
			}
		}
	}
	return nil
}

// Connection returns the connection config with the given name.
func (c *Config) Connection(name string) (ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return ConnectionConfig{}, false
}
