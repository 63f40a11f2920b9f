package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/wiregrid/internal/connspec"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WiringPaths []string // hcl files or directories

	LogFormat string
	LogLevel  string

	// Fallbacks for omitted specs. A defaults block in the wiring overrides
	// both.
	DefaultRule         string
	DefaultSynapseModel string

	// EngineURL selects the remote socket.io engine. Empty means the
	// in-memory engine.
	EngineURL       string
	EngineNamespace string
	EngineTimeout   time.Duration

	// In-memory engine settings.
	Threads int
	Seed    uint64

	MetricsPort int
	Tracing     bool
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.WiringPaths) == 0 {
		return nil, errors.New("WiringPaths is a required configuration field and cannot be empty")
	}

	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.DefaultRule != "" {
		if _, err := connspec.ParseRule(cfg.DefaultRule); err != nil {
			return nil, fmt.Errorf("invalid default rule: %w", err)
		}
	}

	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
	if cfg.Threads < 0 {
		return nil, fmt.Errorf("threads must be positive, got %d", cfg.Threads)
	}

	if cfg.EngineURL != "" && cfg.EngineTimeout < 0 {
		return nil, fmt.Errorf("engine timeout must not be negative, got %v", cfg.EngineTimeout)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("metrics port out of range: %d", cfg.MetricsPort)
	}

	return &cfg, nil
}

// Rule returns the configured default rule, or the zero Rule when unset.
func (c *Config) Rule() connspec.Rule {
	if c.DefaultRule == "" {
		return 0
	}
	r, err := connspec.ParseRule(c.DefaultRule)
	if err != nil {
		return 0
	}
	return r
}
