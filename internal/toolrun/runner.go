package toolrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bantzhq/bantz/internal/backoff"
	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/pkg/models"
)

// Meta carries the authorization context of a call into the emitted
// events. The runner does not decide it; the firewall does.
type Meta struct {
	Confirmation  models.Confirmation
	Risk          models.RiskLevel
	CorrelationID string
}

// Config configures the runner.
type Config struct {
	// TimeoutFloor is the default per-call timeout (default 20s). A
	// descriptor with a shorter timeout tightens it; descriptors can
	// never extend past the floor.
	TimeoutFloor time.Duration

	// BreakerThreshold is the consecutive-failure count that opens a
	// circuit (default 5).
	BreakerThreshold int

	// Schedule is the retry wait schedule (default 1s, 3s, 7s).
	Schedule backoff.Schedule
}

// Runner executes tool calls.
type Runner struct {
	registry *Registry
	breaker  *Breaker
	events   *bus.Bus
	config   Config
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// Option configures the runner.
type Option func(*Runner)

// WithLogger configures the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics enables execution metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// NewRunner creates a runner publishing lifecycle events on the bus.
func NewRunner(registry *Registry, events *bus.Bus, config Config, opts ...Option) *Runner {
	if config.TimeoutFloor <= 0 {
		config.TimeoutFloor = 20 * time.Second
	}
	if len(config.Schedule) == 0 {
		config.Schedule = backoff.DefaultSchedule()
	}
	r := &Runner{
		registry: registry,
		breaker:  NewBreaker(config.BreakerThreshold),
		events:   events,
		config:   config,
		logger:   slog.Default().With("component", "toolrun"),
		schemas:  make(map[string]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Breaker exposes the circuit breaker for inspection.
func (r *Runner) Breaker() *Breaker { return r.breaker }

// Execute runs one tool call to completion: validation, breaker check,
// timeout, and bounded retries on transient failures. It never returns
// an error; failures are ToolResults with Success=false.
func (r *Runner) Execute(ctx context.Context, toolName string, params map[string]any, meta Meta) *models.ToolResult {
	start := time.Now()

	tool, ok := r.registry.Get(toolName)
	if !ok {
		return r.fail(ctx, start, toolName, params, meta, models.ErrorKindValidation, fmt.Sprintf("tool %s not registered", toolName), 0)
	}
	spec := tool.Spec()

	if err := r.validate(spec, params); err != nil {
		return r.fail(ctx, start, toolName, params, meta, models.ErrorKindValidation, err.Error(), 0)
	}

	domain := DomainFor(toolName, params)
	if r.breaker.Open(domain) {
		if r.metrics != nil {
			r.metrics.CircuitOpen.WithLabelValues(domain).Inc()
		}
		return r.fail(ctx, start, toolName, params, meta, models.ErrorKindCircuitOpen, ErrCircuitOpen(domain), 0)
	}

	timeout := r.config.TimeoutFloor
	if spec.Timeout > 0 && spec.Timeout < timeout {
		timeout = spec.Timeout
	}

	r.publish(ctx, models.EventToolCall, map[string]any{
		"tool":       toolName,
		"params":     params,
		"risk_level": string(meta.Risk),
	}, meta)

	var result *models.ToolResult
	retries := 0
	for {
		result = r.attempt(ctx, tool, params, timeout)
		if result.Success {
			break
		}
		if !result.Kind.IsRetryable() || retries >= spec.MaxRetries {
			break
		}
		retries++
		if r.metrics != nil {
			r.metrics.ToolRetries.WithLabelValues(toolName).Inc()
		}
		r.logger.Debug("retrying tool", "tool", toolName, "retry", retries, "kind", result.Kind)
		if err := r.config.Schedule.Sleep(ctx, retries); err != nil {
			break
		}
	}

	result.Tool = toolName
	result.Retries = retries
	result.ElapsedMS = time.Since(start).Milliseconds()

	if result.Success {
		r.breaker.RecordSuccess(domain)
		if r.metrics != nil {
			r.metrics.ToolExecutionCounter.WithLabelValues(toolName, "success").Inc()
			r.metrics.ToolExecutionDuration.WithLabelValues(toolName).Observe(time.Since(start).Seconds())
		}
		r.publish(ctx, models.EventToolExecuted, map[string]any{
			"tool":       toolName,
			"params":     params,
			"result":     result.Result,
			"elapsed_ms": result.ElapsedMS,
			"risk_level": string(meta.Risk),
		}, meta)
		return result
	}

	r.breaker.RecordFailure(domain)
	if r.metrics != nil {
		r.metrics.ToolExecutionCounter.WithLabelValues(toolName, "error").Inc()
	}
	r.publish(ctx, models.EventToolFailed, map[string]any{
		"tool":       toolName,
		"error":      result.Error,
		"elapsed_ms": result.ElapsedMS,
		"params":     params,
	}, meta)
	return result
}

// attempt performs one invocation under the timeout.
func (r *Runner) attempt(ctx context.Context, tool Tool, params map[string]any, timeout time.Duration) *models.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Call(callCtx, params)
	if err != nil {
		return &models.ToolResult{Success: false, Error: err.Error(), Kind: classify(callCtx, err)}
	}
	if result == nil {
		return &models.ToolResult{Success: false, Error: "tool returned no result", Kind: models.ErrorKindInternal}
	}
	if !result.Success && result.Kind == "" {
		result.Kind = models.ErrorKindInternal
	}
	return result
}

// classify maps a transport error to an error kind. Deadline overruns
// are timeouts; cancellation is terminal; anything else is assumed to
// be a network fault, which is the retryable default for transport
// errors.
func classify(ctx context.Context, err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return models.ErrorKindInternal
	default:
		return models.ErrorKindNetwork
	}
}

// validate checks params against the tool's compiled schema.
func (r *Runner) validate(spec models.ToolSpec, params map[string]any) error {
	if len(spec.Params) == 0 {
		return nil
	}
	schema, err := r.schemaFor(spec)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	// Round-trip so numbers match what a JSON decoder would produce.
	var doc any
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid params for %s: %w", spec.Name, err)
	}
	return nil
}

// schemaFor compiles and caches the JSON schema for a tool spec.
func (r *Runner) schemaFor(spec models.ToolSpec) (*jsonschema.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if schema, ok := r.schemas[spec.Name]; ok {
		return schema, nil
	}

	properties := make(map[string]any, len(spec.Params))
	var required []string
	for name, param := range spec.Params {
		properties[name] = map[string]any{"type": param.Type}
		if param.Required {
			required = append(required, name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	resource := spec.Name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, err
	}
	r.schemas[spec.Name] = schema
	return schema, nil
}

// fail builds a terminal failure without invoking the tool and emits
// tool.failed.
func (r *Runner) fail(ctx context.Context, start time.Time, toolName string, params map[string]any, meta Meta, kind models.ErrorKind, message string, retries int) *models.ToolResult {
	result := &models.ToolResult{
		Tool:      toolName,
		Success:   false,
		Error:     message,
		Kind:      kind,
		ElapsedMS: time.Since(start).Milliseconds(),
		Retries:   retries,
	}
	if r.metrics != nil {
		r.metrics.ToolExecutionCounter.WithLabelValues(toolName, "error").Inc()
	}
	r.publish(ctx, models.EventToolFailed, map[string]any{
		"tool":       toolName,
		"error":      message,
		"elapsed_ms": result.ElapsedMS,
		"params":     params,
	}, meta)
	return result
}

func (r *Runner) publish(ctx context.Context, eventType models.EventType, data map[string]any, meta Meta) {
	if r.events == nil {
		return
	}
	if meta.Confirmation != "" {
		data["confirmation"] = string(meta.Confirmation)
	}
	event := models.NewEvent(eventType, "toolrun", data)
	if meta.CorrelationID != "" {
		event = event.WithCorrelation(meta.CorrelationID)
	} else if id := observability.GetCorrelationID(ctx); id != "" {
		event = event.WithCorrelation(id)
	}
	r.events.Publish(ctx, event)
}
