// Package llm declares the contracts of the external collaborators the
// runtime core drives: the router and finalizer models, the step
// verifier, the fail-safe handler, and the tool result formatter.
// The core never imports a vendor SDK; implementations are injected by
// the runtime wiring.
package llm

import (
	"context"
	"time"

	"github.com/bantzhq/bantz/pkg/models"
)

// Router is the planning model: one call per turn.
type Router interface {
	// Plan maps user text (plus the rolling dialog summary) to a
	// routing decision. Any error is terminal for the plan phase.
	Plan(ctx context.Context, userText, dialogSummary string) (*models.PlannerDecision, error)
}

// Message is one chat message for the finalizer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streamed finalizer fragment. FirstToken marks the
// time-to-first-token boundary for latency metrics.
type Chunk struct {
	Text       string
	FirstToken bool
}

// Finalizer is the reply-polishing model. It must be probed with
// IsAvailable before use; a non-streaming implementation may return
// the whole reply from Chat and skip ChatStream.
type Finalizer interface {
	Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
	IsAvailable(timeout time.Duration) bool
}

// StreamingFinalizer is optionally implemented by finalizers that can
// stream chunks.
type StreamingFinalizer interface {
	Finalizer
	ChatStream(ctx context.Context, messages []Message, temperature float64, maxTokens int) (<-chan Chunk, error)
}

// Verifier judges whether a plan step achieved its expected outcome.
type Verifier interface {
	Verify(ctx context.Context, step *models.PlanStep, result *models.ToolResult) (models.VerificationResult, error)
}

// FailSafeHandler picks a recovery action after repeated failures and
// mediates manual intervention.
type FailSafeHandler interface {
	Handle(ctx context.Context, plan *models.TaskPlan, step *models.PlanStep, execErr error, consecutiveFailures int) (models.FailSafeChoice, error)
	NotifyRetry(ctx context.Context, step *models.PlanStep)
	NotifyManual(ctx context.Context, step *models.PlanStep)
	// WaitForManualCompletion blocks until the operator marks the step
	// done or the context is cancelled.
	WaitForManualCompletion(ctx context.Context, step *models.PlanStep) error
}

// Formatter renders a raw tool result into human-readable Turkish for
// the finalizer prompt. The text is never shown verbatim to the user
// without finalizer approval.
type Formatter interface {
	Format(toolName string, raw any) string
}

// FormatterFunc adapts a function to a Formatter.
type FormatterFunc func(toolName string, raw any) string

// Format renders the result.
func (f FormatterFunc) Format(toolName string, raw any) string {
	return f(toolName, raw)
}
