// Package config loads sleuth configuration from .sleuth/config.yaml
// with environment overrides. Defaults are always usable without a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tracker backends
const (
	BackendLinear = "linear"
	BackendBeads  = "beads"
)

// Config is the resolved runtime configuration
type Config struct {
	// Model is the agent model identifier
	Model string `yaml:"model"`

	Tracker TrackerConfig `yaml:"tracker"`

	// PatternsPath is the pattern store JSONL file
	PatternsPath string `yaml:"patterns_path"`

	// ReportDir receives per-issue markdown reports
	ReportDir string `yaml:"report_dir"`

	// Investigation tuning
	MaxRelated       int `yaml:"max_related"`
	TopKPatterns     int `yaml:"top_k_patterns"`
	MaxAgentAttempts int `yaml:"max_agent_attempts"`

	// EnableWrites allows posting investigation summaries back to the
	// tracker. Off by default: investigations are read-only.
	EnableWrites bool `yaml:"enable_writes"`

	// Secrets come from the environment only, never the file
	AnthropicAPIKey string `yaml:"-"`
	LinearAPIKey    string `yaml:"-"`
}

// TrackerConfig selects and parameterizes the tracker backend
type TrackerConfig struct {
	// Backend is "linear" (hosted GraphQL) or "beads" (local SQLite)
	Backend string `yaml:"backend"`

	// BeadsPath is the beads database file, used by the beads backend
	BeadsPath string `yaml:"beads_path"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Model: "claude-sonnet-4-5-20250929",
		Tracker: TrackerConfig{
			Backend:   BackendBeads,
			BeadsPath: ".beads/beads.db",
		},
		PatternsPath:     filepath.Join(".sleuth", "patterns.jsonl"),
		ReportDir:        "investigations",
		MaxRelated:       10,
		TopKPatterns:     5,
		MaxAgentAttempts: 3,
	}
}

// Load reads .sleuth/config.yaml under projectRoot, falling back to
// defaults when the file is absent, then applies environment overrides
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, ".sleuth", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file/default values
func (c *Config) applyEnv() {
	if v := os.Getenv("SLEUTH_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SLEUTH_TRACKER"); v != "" {
		c.Tracker.Backend = v
	}
	if v := os.Getenv("SLEUTH_ENABLE_WRITES"); v != "" {
		c.EnableWrites = isTruthy(v)
	}
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.LinearAPIKey = os.Getenv("LINEAR_API_KEY")
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	switch c.Tracker.Backend {
	case BackendLinear, BackendBeads:
	default:
		return fmt.Errorf("unknown tracker backend %q (want %s or %s)",
			c.Tracker.Backend, BackendLinear, BackendBeads)
	}
	if c.Tracker.Backend == BackendBeads && c.Tracker.BeadsPath == "" {
		return fmt.Errorf("tracker.beads_path is required for the beads backend")
	}
	if c.PatternsPath == "" {
		return fmt.Errorf("patterns_path is required")
	}
	if c.MaxRelated < 0 || c.TopKPatterns < 0 || c.MaxAgentAttempts < 0 {
		return fmt.Errorf("investigation limits must be non-negative")
	}
	return nil
}

// Save writes the configuration to .sleuth/config.yaml under projectRoot
func Save(projectRoot string, cfg *Config) error {
	path := filepath.Join(projectRoot, ".sleuth", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating .sleuth directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Example returns an example configuration file
func Example() string {
	return `# Sleuth configuration

# Agent model (override with SLEUTH_MODEL)
model: claude-sonnet-4-5-20250929

tracker:
  # Backend: linear (hosted, needs LINEAR_API_KEY) or beads (local SQLite)
  backend: beads
  beads_path: .beads/beads.db

# Pattern learning store (append-only JSONL)
patterns_path: .sleuth/patterns.jsonl

# Markdown reports, one per investigated issue
report_dir: investigations

max_related: 10
top_k_patterns: 5
max_agent_attempts: 3

# Post summaries back to the tracker (override with SLEUTH_ENABLE_WRITES)
enable_writes: false
`
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
