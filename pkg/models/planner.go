package models

import "encoding/json"

// PlannerDecision is what the router LLM returns for one turn: where
// the input routes, which tools to run, and a tentative reply.
type PlannerDecision struct {
	Route                string         `json:"route"`
	Intent               string         `json:"intent"`
	Slots                map[string]any `json:"slots,omitempty"`
	Confidence           float64        `json:"confidence"`
	ToolPlan             []string       `json:"tool_plan,omitempty"`
	AssistantReply       string         `json:"assistant_reply,omitempty"`
	AskUser              bool           `json:"ask_user"`
	Question             string         `json:"question,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	ConfirmationPrompt   string         `json:"confirmation_prompt,omitempty"`
	MemoryUpdate         string         `json:"memory_update,omitempty"`
	Reasoning            string         `json:"reasoning,omitempty"`

	// Raw is the unparsed planner payload, kept for tracing.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// TurnOutcome classifies how a turn ended. Confirmation and user-ask
// flows are modeled as return values, never as panics or errors.
type TurnOutcome string

const (
	OutcomeReply               TurnOutcome = "reply"
	OutcomeAsk                 TurnOutcome = "ask"
	OutcomePendingConfirmation TurnOutcome = "pending_confirmation"
	OutcomeCancelled           TurnOutcome = "cancelled"
	OutcomeError               TurnOutcome = "error"
)

// PendingConfirmation is the session-local record of a destructive
// tool awaiting explicit user approval.
type PendingConfirmation struct {
	Tool   string         `json:"tool"`
	Prompt string         `json:"prompt"`
	Slots  map[string]any `json:"slots,omitempty"`
}

// TurnOutput is the user-visible result of one orchestrated turn.
type TurnOutput struct {
	Outcome       TurnOutcome   `json:"outcome"`
	Reply         string        `json:"reply"`
	Route         string        `json:"route"`
	Intent        string        `json:"intent"`
	CorrelationID string        `json:"correlation_id"`
	ToolResults   []*ToolResult `json:"tool_results,omitempty"`
	ElapsedMS     int64         `json:"elapsed_ms"`
	FinalizerUsed bool          `json:"finalizer_used"`
}
