package models

import "time"

// RiskLevel classifies how dangerous a tool is to run unattended.
type RiskLevel string

const (
	RiskSafe        RiskLevel = "safe"
	RiskModerate    RiskLevel = "moderate"
	RiskDestructive RiskLevel = "destructive"
)

// ErrorKind categorizes tool failures for retry logic and reporting.
// Kinds are never free-form strings; every failure carries one.
type ErrorKind string

const (
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindNetwork      ErrorKind = "network"
	ErrorKindTimeout      ErrorKind = "timeout"
	ErrorKindPermission   ErrorKind = "permission"
	ErrorKindRateLimit    ErrorKind = "rate_limit"
	ErrorKindInternal     ErrorKind = "internal"
	ErrorKindPolicyDenied ErrorKind = "policy_denied"
	ErrorKindConfirmation ErrorKind = "confirmation_required"
	ErrorKindCircuitOpen  ErrorKind = "circuit_open"
)

// IsRetryable returns true if retrying the operation may succeed.
// Timeout, network, and rate limit errors are retryable; validation,
// permission, and internal errors are not, and an open circuit is a
// hard stop by definition.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindRateLimit:
		return true
	default:
		return false
	}
}

// Confirmation records how a tool execution was authorized.
type Confirmation string

const (
	// ConfirmationAuto means policy allowed the tool without asking.
	ConfirmationAuto Confirmation = "auto"
	// ConfirmationUser means the user explicitly approved this call.
	ConfirmationUser Confirmation = "user"
	// ConfirmationNone means no authorization applied (denied paths).
	ConfirmationNone Confirmation = "none"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolSpec is the immutable descriptor a tool publishes at
// registration: its schema, declared risk, and execution limits.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Params      map[string]ParamSpec `json:"params,omitempty"`
	Risk        RiskLevel            `json:"risk"`
	Timeout     time.Duration        `json:"timeout,omitempty"`
	MaxRetries  int                  `json:"max_retries,omitempty"`
}

// ToolResult is the outcome of one tool execution. Produced by the
// tool runner, consumed by the orchestrator and bus subscribers.
type ToolResult struct {
	Tool      string    `json:"tool"`
	Success   bool      `json:"success"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Retries   int       `json:"retries"`
}
