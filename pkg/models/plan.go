package models

import "time"

// StepStatus is the lifecycle state of one plan step. Success, failed,
// and skipped are terminal; a step never leaves a terminal state.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// IsTerminal reports whether the step status is final.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepSuccess, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// PlanStatus is the lifecycle state of a whole plan.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// IsTerminal reports whether the plan status is final.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanCompleted, PlanFailed, PlanCancelled:
		return true
	default:
		return false
	}
}

// PlanStep is one tool invocation inside a multi-step plan.
type PlanStep struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	Expected   string         `json:"expected,omitempty"`
	Status     StepStatus     `json:"status"`
	Retries    int            `json:"retries"`
	MaxRetries int            `json:"max_retries"`
}

// TaskPlan is an ordered multi-step plan executed by the PEV engine.
type TaskPlan struct {
	ID     string      `json:"id"`
	Goal   string      `json:"goal"`
	Steps  []*PlanStep `json:"steps"`
	Status PlanStatus  `json:"status"`
}

// VerificationResult is the verifier's judgment on one executed step.
type VerificationResult struct {
	StepID     string  `json:"step_id"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes,omitempty"`
}

// FailSafeChoice is the recovery action picked after repeated failures.
type FailSafeChoice string

const (
	FailSafeRetry  FailSafeChoice = "RETRY"
	FailSafeSkip   FailSafeChoice = "SKIP"
	FailSafeManual FailSafeChoice = "MANUAL"
	FailSafeAbort  FailSafeChoice = "ABORT"
)

// PEVResult summarizes a finished plan run.
type PEVResult struct {
	PlanID        string               `json:"plan_id"`
	Status        PlanStatus           `json:"status"`
	Completed     int                  `json:"completed"`
	Failed        int                  `json:"failed"`
	Skipped       int                  `json:"skipped"`
	Duration      time.Duration        `json:"duration"`
	Verifications []VerificationResult `json:"verifications,omitempty"`
	Choices       []FailSafeChoice     `json:"choices,omitempty"`
}
