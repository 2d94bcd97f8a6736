// Package subscribers wires the standing bus consumers: the
// observability handler feeding run tracking and tracing, the ingest
// handler feeding the result cache, and the audit handler feeding the
// append-only sink. All of them are best-effort; a subscriber failure
// never fails a turn.
package subscribers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/bantzhq/bantz/internal/audit"
	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/cache"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/pkg/models"
)

// RunHandle is the value-typed record of one tracked run. It carries no
// back-pointers; the registry owns the correlation map.
type RunHandle struct {
	CorrelationID string
	StartedAt     time.Time
	ToolCalls     int
	Failures      int
}

// RunTracker receives run lifecycle notifications. Implementations are
// external (dashboards, session stores); a nil tracker disables
// forwarding.
type RunTracker interface {
	RunStarted(ctx context.Context, handle RunHandle, event models.Event)
	RunCompleted(ctx context.Context, handle RunHandle, event models.Event)
	ToolEvent(ctx context.Context, handle RunHandle, event models.Event)
}

// Registry binds the standing subscribers to a bus.
type Registry struct {
	tracker RunTracker
	results *cache.ResultCache
	sink    *audit.Sink
	tracer  *observability.Tracer
	logger  *slog.Logger

	mu    sync.Mutex
	runs  map[string]*RunHandle
	spans map[string]trace.Span
}

// Option configures the registry.
type Option func(*Registry)

// WithRunTracker forwards run lifecycle to an external tracker.
func WithRunTracker(tracker RunTracker) Option {
	return func(r *Registry) { r.tracker = tracker }
}

// WithResultCache enables the ingest subscriber.
func WithResultCache(results *cache.ResultCache) Option {
	return func(r *Registry) { r.results = results }
}

// WithAuditSink enables the audit subscriber.
func WithAuditSink(sink *audit.Sink) Option {
	return func(r *Registry) { r.sink = sink }
}

// WithTracer opens an otel span per tracked run.
func WithTracer(tracer *observability.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a subscriber registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default().With("component", "subscribers"),
		runs:   make(map[string]*RunHandle),
		spans:  make(map[string]trace.Span),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind subscribes the configured handlers.
func (r *Registry) Bind(b *bus.Bus) {
	for _, topic := range []models.EventType{
		models.EventToolCall, models.EventToolExecuted, models.EventToolFailed,
		models.EventRunStarted, models.EventRunCompleted,
	} {
		b.Subscribe(string(topic), r.observe)
	}
	if r.results != nil {
		b.Subscribe(string(models.EventToolExecuted), r.ingest)
	}
	if r.sink != nil {
		b.Subscribe("tool.*", r.auditEvent)
	}
}

// Runs returns a snapshot of the live run handles.
func (r *Registry) Runs() map[string]RunHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]RunHandle, len(r.runs))
	for id, handle := range r.runs {
		snapshot[id] = *handle
	}
	return snapshot
}

// observe maintains the correlation → RunHandle map and forwards run
// lifecycle to the external tracker.
func (r *Registry) observe(ctx context.Context, event models.Event) {
	id := event.CorrelationID
	if id == "" {
		return
	}

	switch event.Type {
	case models.EventRunStarted:
		handle := &RunHandle{CorrelationID: id, StartedAt: event.Time}
		r.mu.Lock()
		r.runs[id] = handle
		if r.tracer != nil {
			_, span := r.tracer.StartSpan(observability.AddCorrelationID(ctx, id), "run")
			r.spans[id] = span
		}
		r.mu.Unlock()
		if r.tracker != nil {
			r.tracker.RunStarted(ctx, *handle, event)
		}

	case models.EventRunCompleted:
		r.mu.Lock()
		handle, ok := r.runs[id]
		delete(r.runs, id)
		span := r.spans[id]
		delete(r.spans, id)
		r.mu.Unlock()
		if span != nil {
			span.End()
		}
		if !ok {
			return
		}
		if r.tracker != nil {
			r.tracker.RunCompleted(ctx, *handle, event)
		}

	default: // tool.*
		r.mu.Lock()
		handle, ok := r.runs[id]
		if ok {
			handle.ToolCalls++
			if event.Type == models.EventToolFailed {
				handle.Failures++
			}
		}
		var snapshot RunHandle
		if ok {
			snapshot = *handle
		}
		if span := r.spans[id]; span != nil {
			span.AddEvent(string(event.Type))
		}
		r.mu.Unlock()
		if ok && r.tracker != nil {
			r.tracker.ToolEvent(ctx, snapshot, event)
		}
	}
}

// ingest caches successful tool results for pre-route reuse.
func (r *Registry) ingest(_ context.Context, event models.Event) {
	tool, _ := event.Data["tool"].(string)
	if tool == "" {
		return
	}
	params, _ := event.Data["params"].(map[string]any)
	elapsed, _ := event.Data["elapsed_ms"].(int64)
	r.results.Put(cache.ResultEntry{
		Tool:      tool,
		Params:    params,
		Result:    event.Data["result"],
		ElapsedMS: elapsed,
	})
}

// auditEvent records one tool lifecycle event in the audit sink.
func (r *Registry) auditEvent(_ context.Context, event models.Event) {
	entry := audit.Entry{
		Time:          event.Time,
		Event:         event.Type,
		CorrelationID: event.CorrelationID,
	}
	if tool, ok := event.Data["tool"].(string); ok {
		entry.Tool = tool
	}
	if risk, ok := event.Data["risk_level"].(string); ok {
		entry.RiskLevel = models.RiskLevel(risk)
	}
	if confirmation, ok := event.Data["confirmation"].(string); ok {
		entry.Confirmation = confirmation
	}
	if params, ok := event.Data["params"].(map[string]any); ok {
		entry.Params = params
	}
	if errText, ok := event.Data["error"].(string); ok {
		entry.Error = errText
	}
	switch event.Type {
	case models.EventToolExecuted:
		success := true
		entry.Success = &success
	case models.EventToolFailed:
		success := false
		entry.Success = &success
	}
	r.sink.Write(entry)
}
