// Package firewall gates tool execution on the risk policy. It is
// authoritative: the planner cannot bypass it, and confirmation state
// lives in session memory, never on the planner. Outcomes are return
// values; the firewall does not panic and does not raise.
package firewall

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/memory"
	"github.com/bantzhq/bantz/internal/policy"
	"github.com/bantzhq/bantz/pkg/models"
)

// Decision is the verdict class.
type Decision int

const (
	// Allow lets the tool run.
	Allow Decision = iota
	// Deny blocks the tool this turn with a reason.
	Deny
	// AskConfirmation blocks the tool and asks the user first.
	AskConfirmation
)

// Verdict is the firewall's answer for one planned tool.
type Verdict struct {
	Decision     Decision
	Reason       string
	Prompt       string
	Confirmation models.Confirmation
	Risk         models.RiskLevel
}

// Firewall applies the policy to planner output.
type Firewall struct {
	policies *policy.Registry
	events   *bus.Bus
	logger   *slog.Logger
}

// New creates a firewall.
func New(policies *policy.Registry, events *bus.Bus, logger *slog.Logger) *Firewall {
	if logger == nil {
		logger = slog.Default().With("component", "firewall")
	}
	return &Firewall{policies: policies, events: events, logger: logger}
}

// Check decides whether one planned tool may execute now.
//
// Destructive or always-confirm tools must carry the planner's
// requires-confirmation flag; without it the call is denied outright.
// With it, the first pass stores a pending confirmation and asks; the
// second pass (pending matches) clears it and allows.
func (f *Firewall) Check(ctx context.Context, decision *models.PlannerDecision, tool string, session *memory.Tracer, correlationID string) Verdict {
	snapshot := f.policies.Current()
	risk := snapshot.RiskOf(tool)

	if risk != models.RiskDestructive && !snapshot.AlwaysConfirm(tool) {
		return Verdict{Decision: Allow, Confirmation: models.ConfirmationAuto, Risk: risk}
	}

	if !decision.RequiresConfirmation {
		f.logger.Warn("destructive tool without confirmation request", "tool", tool)
		f.publish(ctx, models.EventToolDenied, map[string]any{
			"tool":       tool,
			"reason":     "confirmation missing",
			"risk_level": string(risk),
		}, correlationID)
		return Verdict{Decision: Deny, Reason: "confirmation missing", Confirmation: models.ConfirmationNone, Risk: risk}
	}

	if pending, ok := session.Pending(); ok && pending.Tool == tool {
		session.ClearPending()
		f.publish(ctx, models.EventToolConfirmed, map[string]any{
			"tool":       tool,
			"risk_level": string(risk),
		}, correlationID)
		return Verdict{Decision: Allow, Confirmation: models.ConfirmationUser, Risk: risk}
	}

	prompt := decision.ConfirmationPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = snapshot.ConfirmationPrompt(tool, decision.Slots)
	}
	session.SetPending(models.PendingConfirmation{Tool: tool, Prompt: prompt, Slots: decision.Slots})
	return Verdict{Decision: AskConfirmation, Prompt: prompt, Confirmation: models.ConfirmationNone, Risk: risk}
}

func (f *Firewall) publish(ctx context.Context, eventType models.EventType, data map[string]any, correlationID string) {
	if f.events == nil {
		return
	}
	event := models.NewEvent(eventType, "firewall", data)
	if correlationID != "" {
		event = event.WithCorrelation(correlationID)
	}
	f.events.Publish(ctx, event)
}

var turkishLower = cases.Lower(language.Turkish)

// affirmations are the accepted Turkish yes-forms, compared after
// Turkish-aware lowercasing so "EVET" and "Evet" match.
var affirmations = map[string]bool{
	"evet":       true,
	"olur":       true,
	"tamam":      true,
	"onaylıyorum": true,
	"tabii":      true,
	"yes":        true,
}

// negations are the accepted Turkish no-forms.
var negations = map[string]bool{
	"hayır":  true,
	"iptal":  true,
	"vazgeç": true,
	"olmaz":  true,
	"no":     true,
}

// IsAffirmation reports whether the text is a confirmation answer.
func IsAffirmation(text string) bool {
	return affirmations[normalize(text)]
}

// IsNegation reports whether the text declines a confirmation.
func IsNegation(text string) bool {
	return negations[normalize(text)]
}

func normalize(text string) string {
	return strings.TrimRight(strings.TrimSpace(turkishLower.String(text)), ".!?")
}
