// Package config loads the runtime configuration file. Environment
// variables in string values are expanded, a missing file yields the
// defaults, and zero fields are backfilled so partial configs work.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bantzhq/bantz/internal/latency"
	"github.com/bantzhq/bantz/internal/memory"
)

// Config is the full runtime configuration.
type Config struct {
	// PolicyPath is the tool risk policy file (json5).
	PolicyPath string `yaml:"policy_path"`

	// WatchPolicy hot-reloads the policy file on change.
	WatchPolicy bool `yaml:"watch_policy"`

	// ModelSettingsPath is the latency budget file (model-settings.yaml).
	ModelSettingsPath string `yaml:"model_settings_path"`

	// RemindersDB and GraphDB are sqlite paths.
	RemindersDB string `yaml:"reminders_db"`
	GraphDB     string `yaml:"graph_db"`

	// AuditOutput is "stdout", "stderr", "file:<path>", or empty to
	// disable auditing.
	AuditOutput string `yaml:"audit_output"`

	Log       LogConfig     `yaml:"log"`
	Memory    MemoryConfig  `yaml:"memory"`
	Tools     ToolsConfig   `yaml:"tools"`
	Reminders RemConfig     `yaml:"reminders"`
	Bus       BusConfig     `yaml:"bus"`
	Tracing   TracingConfig `yaml:"tracing"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MemoryConfig mirrors the session memory budgets.
type MemoryConfig struct {
	SummaryChars   int  `yaml:"summary_chars"`
	MaxTokens      int  `yaml:"max_tokens"`
	MaxTurns       int  `yaml:"max_turns"`
	MaxToolResults int  `yaml:"max_tool_results"`
	PIIFilter      bool `yaml:"pii_filter"`
}

// ToolsConfig tunes the tool runner.
type ToolsConfig struct {
	TimeoutFloor     time.Duration `yaml:"timeout_floor"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
}

// RemConfig tunes the reminder scheduler.
type RemConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// BusConfig enables optional bus middleware.
type BusConfig struct {
	DebugLog        bool          `yaml:"debug_log"`
	RateLimit       bool          `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		PolicyPath:        "policy.json",
		ModelSettingsPath: "model-settings.yaml",
		RemindersDB:       "reminders.db",
		GraphDB:           "graph.db",
		Log:               LogConfig{Level: "info", Format: "json"},
		Memory: MemoryConfig{
			SummaryChars:   500,
			MaxTokens:      800,
			MaxTurns:       10,
			MaxToolResults: 5,
		},
		Tools:     ToolsConfig{TimeoutFloor: 20 * time.Second, BreakerThreshold: 5},
		Reminders: RemConfig{Tick: 10 * time.Second},
		Bus:       BusConfig{RateLimitWindow: 100 * time.Millisecond},
	}
}

// Load reads the config file at path. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.backfill()
	return cfg, nil
}

func (c *Config) backfill() {
	defaults := Default()
	if c.PolicyPath == "" {
		c.PolicyPath = defaults.PolicyPath
	}
	if c.ModelSettingsPath == "" {
		c.ModelSettingsPath = defaults.ModelSettingsPath
	}
	if c.RemindersDB == "" {
		c.RemindersDB = defaults.RemindersDB
	}
	if c.GraphDB == "" {
		c.GraphDB = defaults.GraphDB
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Tools.TimeoutFloor <= 0 {
		c.Tools.TimeoutFloor = defaults.Tools.TimeoutFloor
	}
	if c.Tools.BreakerThreshold <= 0 {
		c.Tools.BreakerThreshold = defaults.Tools.BreakerThreshold
	}
	if c.Reminders.Tick <= 0 {
		c.Reminders.Tick = defaults.Reminders.Tick
	}
	if c.Bus.RateLimitWindow <= 0 {
		c.Bus.RateLimitWindow = defaults.Bus.RateLimitWindow
	}
}

// MemoryBudgets converts to the memory package config.
func (c Config) MemoryBudgets() memory.Config {
	return memory.Config{
		SummaryCharBudget: c.Memory.SummaryChars,
		MaxTokens:         c.Memory.MaxTokens,
		MaxTurns:          c.Memory.MaxTurns,
		MaxToolResults:    c.Memory.MaxToolResults,
		PIIFilter:         c.Memory.PIIFilter,
	}
}

// LatencyBudget loads the latency section from the model settings file.
func (c Config) LatencyBudget() (latency.Config, error) {
	return latency.LoadConfig(c.ModelSettingsPath)
}
