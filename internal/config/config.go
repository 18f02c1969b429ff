// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration is read once at startup from a YAML file (with ${ENV}
// expansion for credentials) into an immutable Config struct that is passed
// by injection into the handlers. Request-handling code never reads the
// process environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Chat       ChatConfig                `yaml:"chat"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Research   ResearchConfig            `yaml:"research"`
	Identity   IdentityConfig            `yaml:"identity"`
	Monitoring MonitoringConfig          `yaml:"monitoring"`
	RateLimit  RateLimitConfig           `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChatConfig holds completion routing settings.
type ChatConfig struct {
	// SystemPrompt is the operator default injected when the caller supplies
	// no override. Always replaces caller-sent system messages.
	SystemPrompt    string        `yaml:"system_prompt"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
}

// ProviderConfig describes one upstream LLM provider.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Temperature, when set, is forced on every request to this provider,
	// overriding any caller-supplied value.
	Temperature *float64 `yaml:"temperature"`

	// Headers are provider-specific extras (e.g. HTTP-Referer, X-Title for
	// providers that require attribution). Sent only to this provider.
	Headers map[string]string `yaml:"headers"`

	// Models are the model identifiers this provider serves. A model may be
	// claimed by exactly one provider; overlaps fail validation.
	Models []string `yaml:"models"`
}

// ResearchConfig holds deep-research settings.
type ResearchConfig struct {
	SearchURL    string        `yaml:"search_url"`
	SearchAPIKey string        `yaml:"search_api_key"`
	MaxResults   int           `yaml:"max_results"`
	DefaultLimit int           `yaml:"default_limit"`
	Timeout      time.Duration `yaml:"timeout"`

	// AccountsPath is the SQLite database holding usage accounts.
	AccountsPath string `yaml:"accounts_path"`
}

// IdentityConfig points at the external auth collaborator.
type IdentityConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MonitoringConfig holds telemetry settings.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
	LogLevel    string `yaml:"log_level"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Load reads, expands and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand ${VAR} references so credentials can live in the environment
	// while the file stays checked in.
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Chat.UpstreamTimeout == 0 {
		c.Chat.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if c.Research.MaxResults == 0 {
		c.Research.MaxResults = DefaultSearchResults
	}
	if c.Research.DefaultLimit == 0 {
		c.Research.DefaultLimit = DefaultResearchLimit
	}
	if c.Research.Timeout == 0 {
		c.Research.Timeout = DefaultCollaboratorTimeout
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = DefaultCollaboratorTimeout
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = DefaultRateLimit
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateBurst
	}
}

// Validate checks the configuration for problems that should stop startup.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider must be configured")
	}

	// Model membership must be exclusive: resolving a model to two providers
	// is a configuration bug, not a tie to break silently.
	seen := make(map[string]string)
	for name, p := range c.Providers {
		if strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("config: provider %q has no base_url", name)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("config: provider %q serves no models", name)
		}
		for _, m := range p.Models {
			m = strings.TrimSpace(m)
			if m == "" {
				return fmt.Errorf("config: provider %q lists an empty model id", name)
			}
			if other, dup := seen[m]; dup {
				return fmt.Errorf("config: model %q claimed by both %q and %q", m, other, name)
			}
			seen[m] = name
		}
	}

	if c.Research.DefaultLimit < 1 {
		return fmt.Errorf("config: research.default_limit must be positive, got %d", c.Research.DefaultLimit)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("config: rate_limit.rps must be >= 0, got %f", c.RateLimit.RPS)
	}
	return nil
}
