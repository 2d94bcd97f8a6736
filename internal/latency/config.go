// Package latency tracks per-phase pipeline deadlines and recommends
// degradation actions when a phase blows its budget.
package latency

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the per-phase latency caps in milliseconds.
type Config struct {
	ASRMaxMS       float64 `yaml:"asr_max_ms"`
	RouterMaxMS    float64 `yaml:"router_max_ms"`
	ToolMaxMS      float64 `yaml:"tool_max_ms"`
	FinalizerMaxMS float64 `yaml:"finalizer_max_ms"`
	TTSMaxMS       float64 `yaml:"tts_max_ms"`
	EndToEndMaxMS  float64 `yaml:"end_to_end_max_ms"`

	// WindowSize bounds the per-phase sample rings (default 500).
	WindowSize int `yaml:"window_size"`
}

// DefaultConfig returns the stock budget:
// ASR 500ms, ROUTER 100ms, TOOL 1000ms, FINALIZER 500ms, TTS 300ms,
// end-to-end 2000ms.
func DefaultConfig() Config {
	return Config{
		ASRMaxMS:       500,
		RouterMaxMS:    100,
		ToolMaxMS:      1000,
		FinalizerMaxMS: 500,
		TTSMaxMS:       300,
		EndToEndMaxMS:  2000,
		WindowSize:     500,
	}
}

// modelSettings mirrors the relevant slice of model-settings.yaml.
type modelSettings struct {
	VoicePipeline struct {
		LatencyBudget Config `yaml:"latency_budget"`
	} `yaml:"voice_pipeline"`
}

// LoadConfig reads the voice_pipeline.latency_budget section of
// model-settings.yaml. A missing file yields the defaults; zero fields
// are backfilled from the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read latency config: %w", err)
	}

	var settings modelSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Config{}, fmt.Errorf("parse latency config %s: %w", path, err)
	}

	cfg := settings.VoicePipeline.LatencyBudget
	defaults := DefaultConfig()
	if cfg.ASRMaxMS <= 0 {
		cfg.ASRMaxMS = defaults.ASRMaxMS
	}
	if cfg.RouterMaxMS <= 0 {
		cfg.RouterMaxMS = defaults.RouterMaxMS
	}
	if cfg.ToolMaxMS <= 0 {
		cfg.ToolMaxMS = defaults.ToolMaxMS
	}
	if cfg.FinalizerMaxMS <= 0 {
		cfg.FinalizerMaxMS = defaults.FinalizerMaxMS
	}
	if cfg.TTSMaxMS <= 0 {
		cfg.TTSMaxMS = defaults.TTSMaxMS
	}
	if cfg.EndToEndMaxMS <= 0 {
		cfg.EndToEndMaxMS = defaults.EndToEndMaxMS
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaults.WindowSize
	}
	return cfg, nil
}

// budgetFor returns the cap for one phase.
func (c Config) budgetFor(phase Phase) float64 {
	switch phase {
	case PhaseASR:
		return c.ASRMaxMS
	case PhaseRouter:
		return c.RouterMaxMS
	case PhaseTool:
		return c.ToolMaxMS
	case PhaseFinalizer:
		return c.FinalizerMaxMS
	case PhaseTTS:
		return c.TTSMaxMS
	default:
		return c.EndToEndMaxMS
	}
}
