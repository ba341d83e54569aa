// Package config loads and validates the Sage configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Sage.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Session   SessionConfig   `yaml:"session"`
	Agent     AgentConfig     `yaml:"agent"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	MetricsPort int    `yaml:"metrics_port"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process, which is what the tests use.
	Path            string        `yaml:"path"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	// BaseURL overrides the API endpoint; used to point the OpenAI
	// provider at OpenAI-compatible backends such as Gemini.
	BaseURL string `yaml:"base_url"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

type SessionConfig struct {
	// ContextWindow is the number of most recent messages sent to the model.
	ContextWindow int `yaml:"context_window"`
	// ExpiryThreshold is the inactivity duration after which expire-sessions
	// transitions an active session to expired.
	ExpiryThreshold  time.Duration `yaml:"expiry_threshold"`
	MaxMessageLength int           `yaml:"max_message_length"`
}

type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	MaxTokens      int           `yaml:"max_tokens"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	ModelTimeout   time.Duration `yaml:"model_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RecordLimit    int           `yaml:"record_limit"`
	MaxRecordLimit int           `yaml:"max_record_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			MetricsPort: 9090,
		},
		Database: DatabaseConfig{
			Path:            "sage.db",
			MaxConnections:  10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   20,
			Window:  time.Minute,
		},
		Session: SessionConfig{
			ContextWindow:    20,
			ExpiryThreshold:  24 * time.Hour,
			MaxMessageLength: 10_000,
		},
		Agent: AgentConfig{
			MaxIterations:  5,
			MaxTokens:      4096,
			ToolTimeout:    30 * time.Second,
			ModelTimeout:   60 * time.Second,
			MaxRetries:     3,
			RecordLimit:    20,
			MaxRecordLimit: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}

// Load reads a YAML config file, expanding ${ENV} references, and
// merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("ratelimit.limit must be positive, got %d", c.RateLimit.Limit)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
		}
	}
	if c.Session.ContextWindow <= 0 {
		return fmt.Errorf("session.context_window must be positive, got %d", c.Session.ContextWindow)
	}
	if c.Session.ExpiryThreshold <= 0 {
		return fmt.Errorf("session.expiry_threshold must be positive, got %s", c.Session.ExpiryThreshold)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.RecordLimit > c.Agent.MaxRecordLimit {
		return fmt.Errorf("agent.record_limit %d exceeds max_record_limit %d", c.Agent.RecordLimit, c.Agent.MaxRecordLimit)
	}
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok && len(c.LLM.Providers) > 0 {
			return fmt.Errorf("llm.default_provider %q has no provider entry", c.LLM.DefaultProvider)
		}
	}
	return nil
}
