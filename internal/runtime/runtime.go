// Package runtime assembles the turn pipeline: policy, latency
// tracking, event bus, subscribers, firewall, tool runner,
// orchestrator, reminder scheduler, and the entity graph. It owns the
// session registry and exposes the per-turn entry point.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bantzhq/bantz/internal/audit"
	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/cache"
	"github.com/bantzhq/bantz/internal/config"
	"github.com/bantzhq/bantz/internal/firewall"
	"github.com/bantzhq/bantz/internal/graph"
	"github.com/bantzhq/bantz/internal/latency"
	"github.com/bantzhq/bantz/internal/llm"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/internal/orchestrator"
	"github.com/bantzhq/bantz/internal/pev"
	"github.com/bantzhq/bantz/internal/policy"
	"github.com/bantzhq/bantz/internal/reminders"
	"github.com/bantzhq/bantz/internal/subscribers"
	"github.com/bantzhq/bantz/internal/toolrun"
	"github.com/bantzhq/bantz/pkg/models"
)

// Runtime is the assembled Bantz core.
type Runtime struct {
	config  config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	policies  *policy.Registry
	events    *bus.Bus
	tracker   *latency.Tracker
	tools     *toolrun.Registry
	runner    *toolrun.Runner
	firewall  *firewall.Firewall
	orch      *orchestrator.Orchestrator
	engine    *pev.Engine
	scheduler *reminders.Scheduler
	store     *reminders.SQLStore
	graph     *graph.Graph
	sink      *audit.Sink
	results   *cache.ResultCache

	tracerShutdown func(context.Context) error

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool
}

type sessionEntry struct {
	session *orchestrator.Session
	// turnMu serializes turns within the session; sessions run
	// concurrently with each other.
	turnMu sync.Mutex
	cancel context.CancelFunc
}

// Options carries the injected collaborators.
type Options struct {
	Router    llm.Router
	Finalizer llm.Finalizer
	Formatter llm.Formatter

	// Verifier and FailSafe drive the plan engine; both are optional.
	Verifier llm.Verifier
	FailSafe llm.FailSafeHandler

	// Registerer for metrics; nil uses the default registry.
	Registerer prometheus.Registerer

	// Logger for all components; nil uses slog.Default.
	Logger *slog.Logger
}

// New builds the runtime from configuration. The router is required;
// everything else degrades gracefully.
func New(cfg config.Config, opts Options) (*Runtime, error) {
	if opts.Router == nil {
		return nil, fmt.Errorf("runtime requires a router")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runtime{
		config:   cfg,
		logger:   logger.With("component", "runtime"),
		metrics:  observability.NewMetrics(opts.Registerer),
		sessions: make(map[string]*sessionEntry),
	}

	r.policies = policy.NewRegistry(policy.WithLogger(logger.With("component", "policy")))
	if err := r.policies.Load(cfg.PolicyPath); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	latencyCfg, err := cfg.LatencyBudget()
	if err != nil {
		return nil, fmt.Errorf("load latency budget: %w", err)
	}
	r.tracker = latency.NewTracker(latencyCfg,
		latency.WithLogger(logger.With("component", "latency")),
		latency.WithMetrics(r.metrics))

	r.events = bus.New(
		bus.WithLogger(logger.With("component", "bus")),
		bus.WithMetrics(r.metrics))
	if cfg.Bus.DebugLog {
		r.events.Use(subscribers.LoggingMiddleware(logger.With("component", "bus")))
	}
	if cfg.Bus.RateLimit {
		r.events.Use(subscribers.RateLimitMiddleware(cfg.Bus.RateLimitWindow, r.metrics))
	}

	r.sink, err = audit.NewSink(audit.Config{
		Output: cfg.AuditOutput,
		Logger: logger.With("component", "audit"),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	tracer, tracerShutdown, err := observability.NewTracer(context.Background(), observability.TraceConfig{
		ServiceName:  "bantz",
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	r.tracerShutdown = tracerShutdown

	r.results = cache.NewResultCache(0)
	subscribers.NewRegistry(
		subscribers.WithResultCache(r.results),
		subscribers.WithAuditSink(r.sink),
		subscribers.WithTracer(tracer),
		subscribers.WithLogger(logger.With("component", "subscribers")),
	).Bind(r.events)

	r.tools = toolrun.NewRegistry()
	r.runner = toolrun.NewRunner(r.tools, r.events, toolrun.Config{
		TimeoutFloor:     cfg.Tools.TimeoutFloor,
		BreakerThreshold: cfg.Tools.BreakerThreshold,
	}, toolrun.WithLogger(logger.With("component", "toolrun")),
		toolrun.WithMetrics(r.metrics))

	r.firewall = firewall.New(r.policies, r.events, logger.With("component", "firewall"))

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
		orchestrator.WithMetrics(r.metrics),
	}
	if opts.Finalizer != nil {
		orchOpts = append(orchOpts, orchestrator.WithFinalizer(opts.Finalizer))
	}
	if opts.Formatter != nil {
		orchOpts = append(orchOpts, orchestrator.WithFormatter(opts.Formatter))
	}
	r.orch = orchestrator.New(opts.Router, r.firewall, r.runner, r.tracker, r.events,
		orchestrator.Config{}, orchOpts...)

	engineOpts := []pev.Option{pev.WithLogger(logger.With("component", "pev"))}
	if opts.Verifier != nil {
		engineOpts = append(engineOpts, pev.WithVerifier(opts.Verifier))
	}
	if opts.FailSafe != nil {
		engineOpts = append(engineOpts, pev.WithFailSafe(opts.FailSafe))
	}
	r.engine = pev.New(r.runner, r.events, pev.Config{}, engineOpts...)

	r.store, err = reminders.OpenStore(cfg.RemindersDB)
	if err != nil {
		return nil, fmt.Errorf("open reminder store: %w", err)
	}
	r.scheduler = reminders.NewScheduler(r.store, r.events,
		reminders.WithTick(cfg.Reminders.Tick),
		reminders.WithLogger(logger.With("component", "reminders")),
		reminders.WithMetrics(r.metrics))

	r.graph, err = graph.Open(cfg.GraphDB,
		graph.WithBus(r.events),
		graph.WithLogger(logger.With("component", "graph")))
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}

	return r, nil
}

// Start launches the background workers: the reminder loop and the
// optional policy watcher. Both stop when ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) {
	r.scheduler.Start(ctx)
	if r.config.WatchPolicy {
		go func() {
			if err := r.policies.Watch(ctx, r.config.PolicyPath); err != nil && ctx.Err() == nil {
				r.logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}
}

// Tools exposes the tool registry for wiring tool implementations.
func (r *Runtime) Tools() *toolrun.Registry { return r.tools }

// Bus exposes the event bus for additional subscribers.
func (r *Runtime) Bus() *bus.Bus { return r.events }

// Graph exposes the entity graph.
func (r *Runtime) Graph() *graph.Graph { return r.graph }

// Reminders exposes the reminder store.
func (r *Runtime) Reminders() *reminders.SQLStore { return r.store }

// Tracker exposes the latency tracker.
func (r *Runtime) Tracker() *latency.Tracker { return r.tracker }

// Engine exposes the plan engine for pause, resume, and cancel.
func (r *Runtime) Engine() *pev.Engine { return r.engine }

// RunPlan executes a multi-step task plan through the plan engine. The
// plan runs over the same tool runner and event bus as interactive
// turns.
func (r *Runtime) RunPlan(ctx context.Context, plan *models.TaskPlan) *models.PEVResult {
	return r.engine.Run(ctx, plan)
}

// HandleTurn processes one turn for the session, creating it on first
// use. Turns within a session are serial; distinct sessions run
// concurrently.
func (r *Runtime) HandleTurn(ctx context.Context, sessionID, userText string) *models.TurnOutput {
	entry := r.session(sessionID)

	entry.turnMu.Lock()
	defer entry.turnMu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	entry.cancel = cancel
	r.mu.Unlock()

	turnCtx = observability.AddSessionID(turnCtx, sessionID)
	return r.orch.ProcessTurn(turnCtx, entry.session, userText)
}

// CancelSession aborts the session's in-flight turn, if any.
func (r *Runtime) CancelSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok && entry.cancel != nil {
		entry.cancel()
	}
}

// CloseSession destroys the session state.
func (r *Runtime) CloseSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok {
		if entry.cancel != nil {
			entry.cancel()
		}
		delete(r.sessions, sessionID)
		r.metrics.ActiveSessions.Dec()
	}
}

func (r *Runtime) session(sessionID string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sessionID]; ok {
		return entry
	}
	entry := &sessionEntry{
		session: orchestrator.NewSession(sessionID, r.config.MemoryBudgets()),
	}
	r.sessions[sessionID] = entry
	r.metrics.ActiveSessions.Inc()
	return entry
}

// Close stops the background workers and closes the stores. Safe to
// call once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.scheduler.Stop()
	var firstErr error
	for _, closer := range []func() error{r.sink.Close, r.store.Close, r.graph.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.tracerShutdown(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
