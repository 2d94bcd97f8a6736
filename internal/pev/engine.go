// Package pev runs multi-step task plans through the
// plan-execute-verify loop: each step goes through the tool runner, an
// optional verifier judges the outcome, and repeated failures hand
// control to a fail-safe handler that picks retry, skip, manual
// intervention, or abort.
package pev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/llm"
	"github.com/bantzhq/bantz/internal/toolrun"
	"github.com/bantzhq/bantz/pkg/models"
)

// State is the engine's position in the PEV loop.
type State string

const (
	StateIdle            State = "IDLE"
	StatePlanning        State = "PLANNING"
	StateExecuting       State = "EXECUTING"
	StateVerifying       State = "VERIFYING"
	StateHandlingFailure State = "HANDLING_FAILURE"
	StateCompleted       State = "COMPLETED"
	StateFailed          State = "FAILED"
	StateCancelled       State = "CANCELLED"
)

// Config tunes the engine.
type Config struct {
	// VerifyThreshold is the minimum verifier confidence for a step to
	// count as verified (default 0.7).
	VerifyThreshold float64

	// MaxConsecutiveFailures triggers the fail-safe handler once reached
	// (default 3).
	MaxConsecutiveFailures int
}

// Engine executes one plan at a time.
type Engine struct {
	runner   *toolrun.Runner
	verifier llm.Verifier
	failsafe llm.FailSafeHandler
	events   *bus.Bus
	config   Config
	logger   *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	paused    bool
	cancelled bool
}

// Option configures the engine.
type Option func(*Engine)

// WithVerifier enables post-step verification.
func WithVerifier(verifier llm.Verifier) Option {
	return func(e *Engine) { e.verifier = verifier }
}

// WithFailSafe wires the failure-recovery handler.
func WithFailSafe(handler llm.FailSafeHandler) Option {
	return func(e *Engine) { e.failsafe = handler }
}

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates a PEV engine.
func New(runner *toolrun.Runner, events *bus.Bus, config Config, opts ...Option) *Engine {
	if config.VerifyThreshold <= 0 {
		config.VerifyThreshold = 0.7
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 3
	}
	e := &Engine{
		runner: runner,
		events: events,
		config: config,
		logger: slog.Default().With("component", "pev"),
		state:  StateIdle,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause stops the engine from pulling the next step. The in-flight
// step finishes first.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume continues a paused run.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.cond.Broadcast()
}

// Cancel terminates the run. The in-flight step is marked failed.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
	e.paused = false
	e.cond.Broadcast()
}

// Run executes the plan to a terminal status and reports the result.
func (e *Engine) Run(ctx context.Context, plan *models.TaskPlan) *models.PEVResult {
	start := time.Now()
	result := &models.PEVResult{PlanID: plan.ID}

	e.mu.Lock()
	e.state = StatePlanning
	e.cancelled = false
	e.paused = false
	e.mu.Unlock()

	e.setPlanStatus(plan, models.PlanRunning)
	e.publish(ctx, models.EventRunStarted, map[string]any{
		"plan_id":    plan.ID,
		"user_input": plan.Goal,
		"steps":      len(plan.Steps),
	})

	e.setState(StateExecuting)
	consecutiveFailures := 0

	for {
		if e.waitWhilePaused(plan) {
			break
		}
		step := nextStep(plan)
		if step == nil {
			status := models.PlanCompleted
			for _, s := range plan.Steps {
				if s.Status == models.StepFailed {
					status = models.PlanFailed
				}
			}
			e.setPlanStatus(plan, status)
			break
		}

		stepErr := e.runStep(ctx, plan, step, result)
		if e.isCancelled() {
			// The in-flight step is charged as failed.
			e.setStepStatus(step, models.StepFailed)
			e.setPlanStatus(plan, models.PlanCancelled)
			break
		}
		if stepErr == nil {
			e.setStepStatus(step, models.StepSuccess)
			consecutiveFailures = 0
			continue
		}

		consecutiveFailures++
		e.logger.Warn("step failed",
			"plan", plan.ID, "step", step.ID, "error", stepErr,
			"consecutive", consecutiveFailures)
		if consecutiveFailures < e.config.MaxConsecutiveFailures || e.failsafe == nil {
			e.setStepStatus(step, models.StepFailed)
			if consecutiveFailures >= e.config.MaxConsecutiveFailures {
				e.setPlanStatus(plan, models.PlanFailed)
				break
			}
			continue
		}

		if !e.handleFailure(ctx, plan, step, stepErr, consecutiveFailures, result) {
			break
		}
		consecutiveFailures = 0
	}

	if !plan.Status.IsTerminal() {
		e.setPlanStatus(plan, models.PlanFailed)
	}

	result.Status = plan.Status
	result.Duration = time.Since(start)
	for _, step := range plan.Steps {
		switch step.Status {
		case models.StepSuccess:
			result.Completed++
		case models.StepFailed:
			result.Failed++
		case models.StepSkipped:
			result.Skipped++
		}
	}

	switch plan.Status {
	case models.PlanCompleted:
		e.setState(StateCompleted)
	case models.PlanCancelled:
		e.setState(StateCancelled)
	default:
		e.setState(StateFailed)
	}

	e.publish(ctx, models.EventRunCompleted, map[string]any{
		"plan_id":      plan.ID,
		"status":       string(plan.Status),
		"final_output": fmt.Sprintf("%d/%d adım tamamlandı", result.Completed, len(plan.Steps)),
		"completed":    result.Completed,
		"failed":       result.Failed,
		"skipped":      result.Skipped,
	})
	return result
}

// runStep executes one step with its own retry budget and optional
// verification. A nil return means the step succeeded and verified.
func (e *Engine) runStep(ctx context.Context, plan *models.TaskPlan, step *models.PlanStep, result *models.PEVResult) error {
	e.setStepStatus(step, models.StepRunning)

	for {
		execResult := e.runner.Execute(ctx, step.Tool, step.Args, toolrun.Meta{
			Confirmation: models.ConfirmationAuto,
		})
		if e.isCancelled() {
			return errors.New("cancelled")
		}

		var stepErr error
		if !execResult.Success {
			stepErr = fmt.Errorf("%s: %s", execResult.Kind, execResult.Error)
		} else if e.verifier != nil {
			e.setState(StateVerifying)
			verification, err := e.verifier.Verify(ctx, step, execResult)
			e.setState(StateExecuting)
			if err != nil {
				stepErr = fmt.Errorf("verify: %w", err)
			} else {
				verification.StepID = step.ID
				result.Verifications = append(result.Verifications, verification)
				if verification.Confidence < e.config.VerifyThreshold {
					stepErr = fmt.Errorf("verification confidence %.2f below threshold", verification.Confidence)
				}
			}
		}
		if stepErr == nil {
			return nil
		}
		if step.Retries >= step.MaxRetries {
			return stepErr
		}
		step.Retries++
	}
}

// handleFailure consults the fail-safe handler. It returns false when
// the run must terminate.
func (e *Engine) handleFailure(ctx context.Context, plan *models.TaskPlan, step *models.PlanStep, stepErr error, failures int, result *models.PEVResult) bool {
	e.setState(StateHandlingFailure)
	defer e.setState(StateExecuting)

	choice, err := e.failsafe.Handle(ctx, plan, step, stepErr, failures)
	if err != nil {
		e.logger.Error("fail-safe handler failed", "error", err)
		choice = models.FailSafeAbort
	}
	result.Choices = append(result.Choices, choice)

	switch choice {
	case models.FailSafeRetry:
		e.failsafe.NotifyRetry(ctx, step)
		step.Retries = 0
		return true
	case models.FailSafeSkip:
		e.setStepStatus(step, models.StepSkipped)
		return true
	case models.FailSafeManual:
		e.failsafe.NotifyManual(ctx, step)
		if err := e.failsafe.WaitForManualCompletion(ctx, step); err != nil {
			e.setStepStatus(step, models.StepFailed)
			e.setPlanStatus(plan, models.PlanFailed)
			return false
		}
		// Operator completed the step by hand; count it as a success.
		e.setStepStatus(step, models.StepSuccess)
		return true
	default: // ABORT
		e.setStepStatus(step, models.StepFailed)
		e.setPlanStatus(plan, models.PlanFailed)
		return false
	}
}

// waitWhilePaused blocks during a pause. It returns true when the run
// was cancelled while waiting.
func (e *Engine) waitWhilePaused(plan *models.TaskPlan) bool {
	e.mu.Lock()
	if e.paused && !e.cancelled {
		e.state = StateIdle
		plan.Status = models.PlanPaused
		for e.paused && !e.cancelled {
			e.cond.Wait()
		}
		e.state = StateExecuting
		if plan.Status == models.PlanPaused {
			plan.Status = models.PlanRunning
		}
	}
	cancelled := e.cancelled
	e.mu.Unlock()
	if cancelled {
		e.setPlanStatus(plan, models.PlanCancelled)
	}
	return cancelled
}

// nextStep returns the first step that has not reached a terminal
// status, or nil when the plan is done.
func nextStep(plan *models.TaskPlan) *models.PlanStep {
	for _, step := range plan.Steps {
		if !step.Status.IsTerminal() {
			return step
		}
	}
	return nil
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// setStepStatus enforces the monotone invariant: a terminal step never
// reverts.
func (e *Engine) setStepStatus(step *models.PlanStep, status models.StepStatus) {
	if step.Status.IsTerminal() {
		return
	}
	step.Status = status
}

// setPlanStatus enforces single termination for the plan.
func (e *Engine) setPlanStatus(plan *models.TaskPlan, status models.PlanStatus) {
	if plan.Status.IsTerminal() {
		return
	}
	plan.Status = status
}

func (e *Engine) publish(ctx context.Context, eventType models.EventType, data map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, models.NewEvent(eventType, "pev", data))
}
