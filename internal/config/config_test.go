package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty path: %v", err)
	}
	if cfg.RateLimit.Limit != 20 {
		t.Errorf("default rate limit = %d, want 20", cfg.RateLimit.Limit)
	}
	if cfg.Session.ContextWindow != 20 {
		t.Errorf("default context window = %d, want 20", cfg.Session.ContextWindow)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("default max iterations = %d, want 5", cfg.Agent.MaxIterations)
	}
}

func TestLoadFileWithEnvExpansion(t *testing.T) {
	t.Setenv("SAGE_TEST_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "sage.yaml")
	content := `
llm:
  default_provider: openai
  providers:
    openai:
      api_key: ${SAGE_TEST_KEY}
      default_model: gpt-4o
ratelimit:
  enabled: true
  limit: 5
  window: 30s
session:
  context_window: 10
  expiry_threshold: 1h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.LLM.Providers["openai"].APIKey; got != "sk-test-123" {
		t.Errorf("api key = %q, want expanded env value", got)
	}
	if cfg.RateLimit.Limit != 5 {
		t.Errorf("rate limit = %d, want 5", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("window = %s, want 30s", cfg.RateLimit.Window)
	}
	// Unset sections keep defaults.
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("max iterations = %d, want default 5", cfg.Agent.MaxIterations)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate limit", func(c *Config) { c.RateLimit.Limit = 0 }},
		{"negative window", func(c *Config) { c.RateLimit.Window = -time.Second }},
		{"zero context window", func(c *Config) { c.Session.ContextWindow = 0 }},
		{"record limit above max", func(c *Config) { c.Agent.RecordLimit = 500 }},
		{"unknown default provider", func(c *Config) {
			c.LLM.DefaultProvider = "missing"
			c.LLM.Providers = map[string]LLMProviderConfig{"openai": {}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
