// Package memory implements the per-session conversation memory: a
// rolling summary with a hard character cap, bounded rings for recent
// turns, tool results, and events, the pending-confirmation slot, and
// a per-turn trace record of what was injected and trimmed.
package memory

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bantzhq/bantz/pkg/models"
)

// TokenEstimator approximates the token count of a text block.
type TokenEstimator func(text string) int

// DefaultEstimator uses the rough 4-characters-per-token heuristic.
// Good enough for budgeting; no tokenizer dependency in the core.
func DefaultEstimator(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Config holds the memory budgets. Characters cap the rolling summary;
// tokens cap the injected block. Both knobs are exposed.
type Config struct {
	// SummaryCharBudget caps the rolling summary length (default 500).
	SummaryCharBudget int

	// MaxTokens caps the injected memory block (default 800).
	MaxTokens int

	// MaxTurns bounds the recent-turn ring (default 10).
	MaxTurns int

	// MaxToolResults bounds the tool-result ring (default 5).
	MaxToolResults int

	// MaxEvents bounds the recent-event ring (default 100).
	MaxEvents int

	// PIIFilter redacts emails and phone numbers from stored text.
	PIIFilter bool
}

// DefaultConfig returns the stock budgets.
func DefaultConfig() Config {
	return Config{
		SummaryCharBudget: 500,
		MaxTokens:         800,
		MaxTurns:          10,
		MaxToolResults:    5,
		MaxEvents:         100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SummaryCharBudget <= 0 {
		c.SummaryCharBudget = defaults.SummaryCharBudget
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaults.MaxTokens
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = defaults.MaxTurns
	}
	if c.MaxToolResults <= 0 {
		c.MaxToolResults = defaults.MaxToolResults
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = defaults.MaxEvents
	}
	return c
}

// Turn is one stored request/response pair.
type Turn struct {
	User      string
	Assistant string
}

// Record is the trace of one turn's memory activity.
type Record struct {
	Turn             int    `json:"turn"`
	Injected         bool   `json:"injected"`
	InjectedTokens   int    `json:"injected_tokens"`
	TurnsRepresented int    `json:"turns_represented"`
	Trimmed          bool   `json:"trimmed"`
	OriginalTokens   int    `json:"original_tokens"`
	AfterTokens      int    `json:"after_tokens"`
	TrimReason       string `json:"trim_reason,omitempty"`
}

// Tracer owns one session's memory. It is mutated only by that
// session's turn loop; the mutex exists for observers (stats, CLI)
// reading concurrently.
type Tracer struct {
	mu     sync.Mutex
	config Config

	summary     string
	turns       []Turn
	toolResults []*models.ToolResult
	events      []models.Event
	pending     *models.PendingConfirmation

	current *Record
	records []Record
	turnNum int
}

// NewTracer creates a session memory with the given budgets.
func NewTracer(config Config) *Tracer {
	return &Tracer{config: config.withDefaults()}
}

// BeginTurn opens the trace record for turn n.
func (t *Tracer) BeginTurn(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnNum = n
	t.current = &Record{Turn: n}
}

// RecordInjection accounts for a memory block about to be injected
// into the planner context. Over-budget blocks are trimmed line-wise
// from the head so the newest content survives. Returns the block that
// should actually be injected.
func (t *Tracer) RecordInjection(block string, turnsCount int, estimate TokenEstimator) string {
	if estimate == nil {
		estimate = DefaultEstimator
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	original := estimate(block)
	trimmed := block
	for estimate(trimmed) > t.config.MaxTokens {
		idx := strings.IndexByte(trimmed, '\n')
		if idx < 0 {
			// Single oversized line: hard character cut from the head.
			overshoot := (estimate(trimmed) - t.config.MaxTokens) * 4
			trimmed = trimHead(trimmed, overshoot)
			break
		}
		trimmed = trimmed[idx+1:]
	}

	after := estimate(trimmed)
	if t.current != nil {
		t.current.Injected = block != ""
		t.current.InjectedTokens = after
		t.current.TurnsRepresented = turnsCount
		if after < original {
			t.current.Trimmed = true
			t.current.OriginalTokens = original
			t.current.AfterTokens = after
			t.current.TrimReason = "token_budget"
		}
	}
	return trimmed
}

// RecordTrim notes an externally performed trim on the current record.
func (t *Tracer) RecordTrim(originalTokens, afterTokens int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.Trimmed = true
	t.current.OriginalTokens = originalTokens
	t.current.AfterTokens = afterTokens
	t.current.TrimReason = reason
}

// EndTurn closes and returns the trace record for the current turn.
func (t *Tracer) EndTurn() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Record{Turn: t.turnNum}
	}
	rec := *t.current
	t.records = append(t.records, rec)
	t.current = nil
	return rec
}

// Records returns a copy of all closed trace records.
func (t *Tracer) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.records...)
}

// AppendSummary appends text to the rolling summary, trimming on write
// so the newest suffix always fits the character budget. Reads never
// trim.
func (t *Tracer) AppendSummary(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.PIIFilter {
		text = redactPII(text)
	}
	if t.summary == "" {
		t.summary = text
	} else {
		t.summary = t.summary + " | " + text
	}
	if over := len(t.summary) - t.config.SummaryCharBudget; over > 0 {
		t.summary = trimHead(t.summary, over)
	}
}

// Summary returns the current rolling summary.
func (t *Tracer) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// AppendTurn stores one request/response pair in the bounded ring.
func (t *Tracer) AppendTurn(user, assistant string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.config.PIIFilter {
		user = redactPII(user)
		assistant = redactPII(assistant)
	}
	t.turns = append(t.turns, Turn{User: user, Assistant: assistant})
	if len(t.turns) > t.config.MaxTurns {
		t.turns = t.turns[len(t.turns)-t.config.MaxTurns:]
	}
}

// Turns returns a copy of the recent-turn ring, oldest first.
func (t *Tracer) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Turn(nil), t.turns...)
}

// AppendToolResult stores one tool result in the bounded ring.
func (t *Tracer) AppendToolResult(result *models.ToolResult) {
	if result == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toolResults = append(t.toolResults, result)
	if len(t.toolResults) > t.config.MaxToolResults {
		t.toolResults = t.toolResults[len(t.toolResults)-t.config.MaxToolResults:]
	}
}

// ToolResults returns a copy of the tool-result ring, oldest first.
func (t *Tracer) ToolResults() []*models.ToolResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*models.ToolResult(nil), t.toolResults...)
}

// AppendEvent stores one event in the FIFO ring (capacity MaxEvents).
func (t *Tracer) AppendEvent(event models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	if len(t.events) > t.config.MaxEvents {
		t.events = t.events[len(t.events)-t.config.MaxEvents:]
	}
}

// Events returns a copy of the recent-event ring.
func (t *Tracer) Events() []models.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Event(nil), t.events...)
}

// SetPending writes the pending-confirmation slot.
func (t *Tracer) SetPending(pending models.PendingConfirmation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = &pending
}

// Pending returns the pending confirmation, if any.
func (t *Tracer) Pending() (models.PendingConfirmation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return models.PendingConfirmation{}, false
	}
	return *t.pending, true
}

// ClearPending empties the pending-confirmation slot.
func (t *Tracer) ClearPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
}

// trimHead drops at least n bytes from the head of s, then advances to
// the next rune boundary so the cut never splits a multi-byte
// character.
func trimHead(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return s[n:]
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{8,}\d`)
)

func redactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[email]")
	text = phonePattern.ReplaceAllString(text, "[telefon]")
	return text
}

// PromptBlock builds the short structured memory line injected into
// the planner prompt. Purely textual; the LLM has no parsing contract
// with it.
func PromptBlock(turn int, intent, action string, entities []string, resultCount int, tool string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[tur %d] niyet: %s | eylem: %s", turn, intent, action)
	if len(entities) > 0 {
		fmt.Fprintf(&sb, " | varlıklar: %s", strings.Join(entities, ", "))
	}
	if resultCount > 0 {
		fmt.Fprintf(&sb, " | sonuç: %d", resultCount)
	}
	if tool != "" {
		fmt.Fprintf(&sb, " | araç: %s", tool)
	}
	return sb.String()
}
