// Package orchestrator drives one interactive turn through its four
// phases: plan with the router model, execute the tool plan behind the
// confirmation firewall, finalize the reply, and update session memory.
// Confirmation and user-ask flows are return values on TurnOutput; the
// orchestrator never raises past its boundary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/firewall"
	"github.com/bantzhq/bantz/internal/latency"
	"github.com/bantzhq/bantz/internal/llm"
	"github.com/bantzhq/bantz/internal/memory"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/internal/toolrun"
	"github.com/bantzhq/bantz/pkg/models"
)

const (
	// apologyReply is the fixed Turkish fallback when planning fails.
	apologyReply = "Üzgünüm efendim, şu anda size yardımcı olamıyorum. Lütfen tekrar dener misiniz?"

	// deniedReply is spoken when the firewall blocks every planned tool.
	deniedReply = "Üzgünüm efendim, bu işlemi onay almadan yapamıyorum."

	// declinedReply acknowledges a declined pending confirmation.
	declinedReply = "Tamam efendim, işlemi iptal ettim."

	// cancelledReply is spoken when the turn is aborted mid-flight.
	cancelledReply = "İşlem iptal edildi efendim."

	// finalizerProbeTimeout bounds the availability check before each
	// finalizer call.
	finalizerProbeTimeout = 1500 * time.Millisecond
)

// Config tunes the finalizer call.
type Config struct {
	FinalizerTemperature float64
	FinalizerMaxTokens   int
}

// Orchestrator processes turns. Collaborators are injected; the
// finalizer and formatter are optional and degrade to the planner's
// tentative reply when absent.
type Orchestrator struct {
	router    llm.Router
	finalizer llm.Finalizer
	formatter llm.Formatter
	firewall  *firewall.Firewall
	runner    *toolrun.Runner
	tracker   *latency.Tracker
	events    *bus.Bus
	config    Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFinalizer wires the reply-polishing model.
func WithFinalizer(finalizer llm.Finalizer) Option {
	return func(o *Orchestrator) { o.finalizer = finalizer }
}

// WithFormatter wires the tool-result formatter for finalizer prompts.
func WithFormatter(formatter llm.Formatter) Option {
	return func(o *Orchestrator) { o.formatter = formatter }
}

// WithMetrics enables turn metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// New creates an orchestrator.
func New(router llm.Router, fw *firewall.Firewall, runner *toolrun.Runner, tracker *latency.Tracker, events *bus.Bus, config Config, opts ...Option) *Orchestrator {
	if config.FinalizerMaxTokens <= 0 {
		config.FinalizerMaxTokens = 256
	}
	if config.FinalizerTemperature <= 0 {
		config.FinalizerTemperature = 0.3
	}
	o := &Orchestrator{
		router:   router,
		firewall: fw,
		runner:   runner,
		tracker:  tracker,
		events:   events,
		config:   config,
		logger:   slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessTurn runs one complete turn for the session. It always
// returns a TurnOutput; failures surface as Outcome=error with a
// Turkish apology, never as a panic or a raw error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, session *Session, userText string) *models.TurnOutput {
	start := time.Now()
	turnNum := session.nextTurn()
	correlationID := uuid.NewString()
	ctx = observability.AddCorrelationID(ctx, correlationID)

	run := o.tracker.StartRun()
	defer o.tracker.FinishRun(run)

	session.Memory.BeginTurn(turnNum)
	o.publish(ctx, models.EventTurnStart, map[string]any{
		"user_input": userText,
		"session_id": session.ID,
		"turn":       turnNum,
	}, correlationID)

	output := o.processTurn(ctx, session, userText, run, correlationID, start)

	record := session.Memory.EndTurn()
	output.CorrelationID = correlationID
	output.ElapsedMS = time.Since(start).Milliseconds()

	status := "ok"
	switch output.Outcome {
	case models.OutcomeError:
		status = "error"
	case models.OutcomeCancelled:
		status = "cancelled"
	}
	o.publish(ctx, models.EventTurnEnd, map[string]any{
		"session_id": session.ID,
		"turn":       turnNum,
		"status":     status,
		"route":      output.Route,
		"outcome":    string(output.Outcome),
		"elapsed_ms": output.ElapsedMS,
		"trimmed":    record.Trimmed,
	}, correlationID)
	if o.metrics != nil {
		o.metrics.TurnCounter.WithLabelValues(output.Route, status).Inc()
	}
	return output
}

func (o *Orchestrator) processTurn(ctx context.Context, session *Session, userText string, run *latency.Run, correlationID string, start time.Time) *models.TurnOutput {
	// An explicit no to a pending confirmation resolves locally, without
	// a planner round trip.
	if pending, ok := session.Memory.Pending(); ok && firewall.IsNegation(userText) {
		session.Memory.ClearPending()
		o.publish(ctx, models.EventToolDenied, map[string]any{
			"tool":   pending.Tool,
			"reason": "user declined",
		}, correlationID)
		session.Memory.AppendTurn(userText, declinedReply)
		return &models.TurnOutput{
			Outcome: models.OutcomeReply,
			Reply:   declinedReply,
			Route:   "confirmation",
			Intent:  "onay reddi",
		}
	}

	// Phase 1: plan. The injected summary is budget-trimmed first.
	summary := session.Memory.RecordInjection(session.Memory.Summary(), len(session.Memory.Turns()), nil)

	planStart := time.Now()
	decision, err := o.router.Plan(ctx, userText, summary)
	o.tracker.RecordPhase(run, latency.PhaseRouter, time.Since(planStart))
	if err != nil {
		if ctx.Err() != nil {
			o.logger.Info("turn cancelled", "error", ctx.Err())
			session.Memory.AppendTurn(userText, cancelledReply)
			return &models.TurnOutput{
				Outcome: models.OutcomeCancelled,
				Reply:   cancelledReply,
				Route:   "unknown",
			}
		}
		o.logger.Error("planner failed", "error", err)
		session.Memory.AppendTurn(userText, apologyReply)
		return &models.TurnOutput{
			Outcome: models.OutcomeError,
			Reply:   apologyReply,
			Route:   "unknown",
		}
	}

	// An explicit yes is authoritative regardless of the planner's flag:
	// it re-arms the confirmation bit and, if the planner dropped the
	// tool, restores the pending plan so the firewall sees the match.
	if pending, ok := session.Memory.Pending(); ok && firewall.IsAffirmation(userText) {
		decision.RequiresConfirmation = true
		if len(decision.ToolPlan) == 0 {
			decision.ToolPlan = []string{pending.Tool}
			if len(decision.Slots) == 0 {
				decision.Slots = pending.Slots
			}
		}
	}

	o.publish(ctx, models.EventLLMDecision, map[string]any{
		"route":      decision.Route,
		"intent":     decision.Intent,
		"confidence": decision.Confidence,
		"tool_plan":  decision.ToolPlan,
	}, correlationID)

	// Phase 2: execute tools sequentially behind the firewall.
	var (
		results       []*models.ToolResult
		pendingPrompt string
		denied        bool
	)
	if len(decision.ToolPlan) > 0 {
		toolStart := time.Now()
		for _, tool := range decision.ToolPlan {
			verdict := o.firewall.Check(ctx, decision, tool, session.Memory, correlationID)
			switch verdict.Decision {
			case firewall.Deny:
				denied = true
				continue
			case firewall.AskConfirmation:
				pendingPrompt = verdict.Prompt
			case firewall.Allow:
				result := o.runner.Execute(ctx, tool, decision.Slots, toolrun.Meta{
					Confirmation:  verdict.Confirmation,
					Risk:          verdict.Risk,
					CorrelationID: correlationID,
				})
				results = append(results, result)
				session.Memory.AppendToolResult(result)
			}
			if pendingPrompt != "" {
				// The rest of the plan waits for the user's answer.
				break
			}
		}
		o.tracker.RecordPhase(run, latency.PhaseTool, time.Since(toolStart))
	}

	// Phase 3: finalize.
	output := &models.TurnOutput{
		Route:       decision.Route,
		Intent:      decision.Intent,
		ToolResults: results,
	}
	switch {
	case pendingPrompt != "":
		output.Outcome = models.OutcomePendingConfirmation
		output.Reply = pendingPrompt
	case decision.AskUser:
		output.Outcome = models.OutcomeAsk
		output.Reply = decision.Question
	case denied && len(results) == 0:
		output.Outcome = models.OutcomeReply
		output.Reply = deniedReply
	default:
		output.Outcome = models.OutcomeReply
		output.Reply, output.FinalizerUsed = o.finalize(ctx, decision, userText, summary, results, run, time.Since(start))
	}

	// Phase 4: update memory.
	session.Memory.AppendTurn(userText, output.Reply)
	if decision.MemoryUpdate != "" {
		session.Memory.AppendSummary(decision.MemoryUpdate)
	} else {
		session.Memory.AppendSummary(o.summaryLine(session.Turn(), decision, results))
	}
	return output
}

// finalize produces the spoken reply. It degrades to the planner's
// tentative reply when the latency budget is spent or the finalizer is
// unavailable, and guards the finalizer output against invented
// numeric facts.
func (o *Orchestrator) finalize(ctx context.Context, decision *models.PlannerDecision, userText, summary string, results []*models.ToolResult, run *latency.Run, elapsed time.Duration) (string, bool) {
	fallback := decision.AssistantReply
	if o.finalizer == nil {
		return fallback, false
	}
	if o.tracker.ShouldSkipFinalizer(elapsed) {
		o.logger.Info("skipping finalizer", "elapsed_ms", elapsed.Milliseconds())
		return fallback, false
	}
	if !o.finalizer.IsAvailable(finalizerProbeTimeout) {
		o.logger.Warn("finalizer unavailable")
		return fallback, false
	}

	// The phase covers the model call and the constrained retry, not
	// the availability probe.
	chatStart := time.Now()
	defer func() {
		o.tracker.RecordPhase(run, latency.PhaseFinalizer, time.Since(chatStart))
	}()

	formatted := o.formatResults(decision, results)
	sources := append([]string{userText}, formatted...)

	messages := o.finalizerMessages(decision, userText, summary, formatted, "")
	reply, err := o.finalizer.Chat(ctx, messages, o.config.FinalizerTemperature, o.config.FinalizerMaxTokens)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			o.logger.Warn("finalizer failed", "error", err)
		}
		return fallback, false
	}
	if !violatesNoNewFacts(reply, sources...) {
		return reply, true
	}

	// One constrained retry, then fall back to the planner's reply.
	o.logger.Warn("finalizer reply introduced new numbers, retrying", "reply", reply)
	constraint := "Yanıtında kullanıcı girdisinde veya araç sonuçlarında geçmeyen hiçbir sayı kullanma."
	messages = o.finalizerMessages(decision, userText, summary, formatted, constraint)
	retry, err := o.finalizer.Chat(ctx, messages, o.config.FinalizerTemperature, o.config.FinalizerMaxTokens)
	if err == nil && strings.TrimSpace(retry) != "" && !violatesNoNewFacts(retry, sources...) {
		return retry, true
	}
	return fallback, false
}

func (o *Orchestrator) finalizerMessages(decision *models.PlannerDecision, userText, summary string, formatted []string, constraint string) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Sen Bantz'sın, Türkçe konuşan bir sesli asistansın. Kısa ve doğal yanıt ver.\n")
	fmt.Fprintf(&sb, "Rota: %s, niyet: %s.\n", decision.Route, decision.Intent)
	if summary != "" {
		fmt.Fprintf(&sb, "Önceki konuşma özeti: %s\n", summary)
	}
	if len(formatted) > 0 {
		sb.WriteString("Araç sonuçları:\n")
		for _, line := range formatted {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	if constraint != "" {
		sb.WriteString(constraint + "\n")
	}
	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: userText},
	}
}

// formatResults renders tool results for the finalizer prompt through
// the formatter contract, falling back to a plain dump.
func (o *Orchestrator) formatResults(decision *models.PlannerDecision, results []*models.ToolResult) []string {
	formatted := make([]string, 0, len(results))
	for _, result := range results {
		if !result.Success {
			formatted = append(formatted, fmt.Sprintf("%s başarısız: %s", result.Tool, result.Error))
			continue
		}
		if o.formatter != nil {
			formatted = append(formatted, o.formatter.Format(result.Tool, result.Result))
			continue
		}
		formatted = append(formatted, fmt.Sprintf("%s: %v", result.Tool, result.Result))
	}
	return formatted
}

// summaryLine builds the structured memory line for this turn.
func (o *Orchestrator) summaryLine(turn int, decision *models.PlannerDecision, results []*models.ToolResult) string {
	action := "yanıt"
	tool := ""
	count := 0
	if len(results) > 0 {
		last := results[len(results)-1]
		tool = last.Tool
		action = "araç çağrısı"
		if items, ok := last.Result.([]any); ok {
			count = len(items)
		}
	}
	var entities []string
	for _, value := range decision.Slots {
		if text, ok := value.(string); ok && text != "" {
			entities = append(entities, text)
		}
	}
	return memory.PromptBlock(turn, decision.Intent, action, entities, count, tool)
}

func (o *Orchestrator) publish(ctx context.Context, eventType models.EventType, data map[string]any, correlationID string) {
	if o.events == nil {
		return
	}
	o.events.Publish(ctx, models.NewEvent(eventType, "orchestrator", data).WithCorrelation(correlationID))
}
