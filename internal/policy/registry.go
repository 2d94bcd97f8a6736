// Package policy implements the tool risk policy: which tools are
// destructive, which always require confirmation, and how undefined
// tools are treated. The loaded table is an immutable snapshot behind
// an atomic pointer so reloads never expose a torn read.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/bantzhq/bantz/pkg/models"
)

// UndefinedToolPolicy controls how tools absent from the table are
// classified.
type UndefinedToolPolicy string

const (
	// UndefinedDeny treats unknown tools as destructive.
	UndefinedDeny UndefinedToolPolicy = "deny"
	// UndefinedModerate treats unknown tools as moderate risk.
	UndefinedModerate UndefinedToolPolicy = "moderate"
)

// fileFormat mirrors the on-disk policy.json document.
type fileFormat struct {
	ToolLevels          map[string]string `json:"tool_levels"`
	AlwaysConfirmTools  []string          `json:"always_confirm_tools"`
	UndefinedToolPolicy string            `json:"undefined_tool_policy"`
}

// Snapshot is one immutable policy table.
type Snapshot struct {
	levels        map[string]models.RiskLevel
	alwaysConfirm map[string]bool
	undefined     UndefinedToolPolicy
}

// RiskOf classifies a tool. Unknown tools resolve via the undefined
// policy; the default is deny.
func (s *Snapshot) RiskOf(tool string) models.RiskLevel {
	if level, ok := s.levels[tool]; ok {
		return level
	}
	if s.undefined == UndefinedModerate {
		return models.RiskModerate
	}
	return models.RiskDestructive
}

// AlwaysConfirm reports whether the tool is in the always-confirm set.
func (s *Snapshot) AlwaysConfirm(tool string) bool {
	return s.alwaysConfirm[tool]
}

// RequiresConfirmation returns true if the tool is destructive or in
// the always-confirm set; otherwise the planner's request stands.
func (s *Snapshot) RequiresConfirmation(tool string, plannerRequested bool) bool {
	if s.RiskOf(tool) == models.RiskDestructive || s.alwaysConfirm[tool] {
		return true
	}
	return plannerRequested
}

// Tools returns the known tool names, sorted. Used by the ops CLI.
func (s *Snapshot) Tools() []string {
	names := make([]string, 0, len(s.levels))
	for name := range s.levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry hands out the current policy snapshot. Reload swaps the
// snapshot at a single assignment point.
type Registry struct {
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger
}

// Option configures the registry.
type Option func(*Registry)

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry seeded with the built-in fallback
// table.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default().With("component", "policy")}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(fallbackSnapshot())
	return r
}

// Current returns the active snapshot. The returned value is immutable.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Load reads policy.json (JSON5-tolerant) and swaps it in. A missing
// file keeps the built-in fallback and is not an error.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("policy file missing, using built-in fallback", "path", path)
			r.current.Store(fallbackSnapshot())
			return nil
		}
		return fmt.Errorf("read policy file: %w", err)
	}

	snapshot, err := parseSnapshot(data)
	if err != nil {
		return fmt.Errorf("parse policy file %s: %w", path, err)
	}

	r.current.Store(snapshot)
	r.logger.Info("policy loaded", "path", path, "tools", len(snapshot.levels))
	return nil
}

func parseSnapshot(data []byte) (*Snapshot, error) {
	var raw fileFormat
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		levels:        make(map[string]models.RiskLevel, len(raw.ToolLevels)),
		alwaysConfirm: make(map[string]bool, len(raw.AlwaysConfirmTools)),
		undefined:     UndefinedDeny,
	}

	for tool, level := range raw.ToolLevels {
		switch models.RiskLevel(strings.ToLower(level)) {
		case models.RiskSafe, models.RiskModerate, models.RiskDestructive:
			snapshot.levels[tool] = models.RiskLevel(strings.ToLower(level))
		default:
			return nil, fmt.Errorf("unknown risk level %q for tool %q", level, tool)
		}
	}
	for _, tool := range raw.AlwaysConfirmTools {
		if tool != "" {
			snapshot.alwaysConfirm[tool] = true
		}
	}
	if raw.UndefinedToolPolicy != "" {
		switch UndefinedToolPolicy(raw.UndefinedToolPolicy) {
		case UndefinedDeny, UndefinedModerate:
			snapshot.undefined = UndefinedToolPolicy(raw.UndefinedToolPolicy)
		default:
			return nil, fmt.Errorf("unknown undefined_tool_policy %q", raw.UndefinedToolPolicy)
		}
	}

	return snapshot, nil
}

// fallbackSnapshot is the hardcoded table used when no policy file is
// available. Identical in shape to the on-disk format.
func fallbackSnapshot() *Snapshot {
	return &Snapshot{
		levels: map[string]models.RiskLevel{
			"calendar.list_events":  models.RiskSafe,
			"calendar.create_event": models.RiskModerate,
			"calendar.delete_event": models.RiskDestructive,
			"gmail.list_messages":   models.RiskSafe,
			"gmail.send_message":    models.RiskDestructive,
			"system.open_app":       models.RiskModerate,
			"system.shutdown":       models.RiskDestructive,
			"reminder.set":          models.RiskSafe,
			"reminder.delete":       models.RiskModerate,
		},
		alwaysConfirm: map[string]bool{
			"gmail.send_message": true,
			"system.shutdown":    true,
		},
		undefined: UndefinedDeny,
	}
}
