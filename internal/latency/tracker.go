package latency

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bantzhq/bantz/internal/observability"
)

// Phase is one stage of the voice pipeline. The numeric order is the
// only legal execution order; phases may be skipped but never
// reordered within a run.
type Phase int

const (
	PhaseASR Phase = iota
	PhaseRouter
	PhaseTool
	PhaseFinalizer
	PhaseTTS
)

// String returns the lowercase phase name used in logs and metrics.
func (p Phase) String() string {
	switch p {
	case PhaseASR:
		return "asr"
	case PhaseRouter:
		return "router"
	case PhaseTool:
		return "tool"
	case PhaseFinalizer:
		return "finalizer"
	case PhaseTTS:
		return "tts"
	default:
		return "unknown"
	}
}

// Degradation names the fallback applied when a phase overruns.
type Degradation string

const (
	DegradationNone              Degradation = ""
	DegradationPartialASR        Degradation = "USE_PARTIAL_ASR"
	DegradationPreRouteCache     Degradation = "USE_PREROUTE_CACHE"
	DegradationAsyncToolFeedback Degradation = "ASYNC_TOOL_WITH_FEEDBACK"
	DegradationSkipFinalizer     Degradation = "SKIP_FINALIZER_SMALL_MODEL"
	DegradationCachedAudio       Degradation = "USE_CACHED_AUDIO"
)

// degradations is the fixed phase → action mapping.
var degradations = map[Phase]Degradation{
	PhaseASR:       DegradationPartialASR,
	PhaseRouter:    DegradationPreRouteCache,
	PhaseTool:      DegradationAsyncToolFeedback,
	PhaseFinalizer: DegradationSkipFinalizer,
	PhaseTTS:       DegradationCachedAudio,
}

// feedbackPhrases are the Turkish filler lines spoken while a degraded
// phase finishes in the background.
var feedbackPhrases = map[Phase]string{
	PhaseTool:      "Bir bakayım efendim...",
	PhaseFinalizer: "Hemen özetliyorum efendim...",
}

// Record is one phase measurement inside a run.
type Record struct {
	Phase          Phase
	ElapsedMS      float64
	BudgetMS       float64
	Exceeded       bool
	Degradation    Degradation
	FeedbackPhrase string
}

// Run collects the phase records of a single turn. Runs are not safe
// for concurrent use; each turn owns its run.
type Run struct {
	StartedAt time.Time
	EndedAt   time.Time
	Records   []Record
	closed    bool
}

// TotalMS sums the recorded phase durations.
func (r *Run) TotalMS() float64 {
	var total float64
	for _, rec := range r.Records {
		total += rec.ElapsedMS
	}
	return total
}

// Tracker enforces the latency budget. Phase sample windows are
// guarded per window; concurrent runs never interfere.
type Tracker struct {
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics

	windows map[Phase]*window
	e2e     *window
}

// Option configures the tracker.
type Option func(*Tracker)

// WithLogger configures the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics wires phase observations into Prometheus.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = metrics
	}
}

// NewTracker creates a tracker for the given budget.
func NewTracker(config Config, opts ...Option) *Tracker {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultConfig().WindowSize
	}
	t := &Tracker{
		config: config,
		logger: slog.Default().With("component", "latency"),
		windows: map[Phase]*window{
			PhaseASR:       newWindow(config.WindowSize),
			PhaseRouter:    newWindow(config.WindowSize),
			PhaseTool:      newWindow(config.WindowSize),
			PhaseFinalizer: newWindow(config.WindowSize),
			PhaseTTS:       newWindow(config.WindowSize),
		},
		e2e: newWindow(config.WindowSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartRun opens a pipeline run for one turn.
func (t *Tracker) StartRun() *Run {
	return &Run{StartedAt: time.Now()}
}

// RecordPhase appends one phase measurement to the run, marks budget
// violations, and picks the degradation action for the phase.
func (t *Tracker) RecordPhase(run *Run, phase Phase, elapsed time.Duration) Record {
	elapsedMS := float64(elapsed.Milliseconds())
	budget := t.config.budgetFor(phase)

	rec := Record{
		Phase:     phase,
		ElapsedMS: elapsedMS,
		BudgetMS:  budget,
		Exceeded:  elapsedMS > budget,
	}
	if rec.Exceeded {
		rec.Degradation = degradations[phase]
		rec.FeedbackPhrase = feedbackPhrases[phase]
		t.logger.Warn("phase budget exceeded",
			"phase", phase.String(),
			"elapsed_ms", elapsedMS,
			"budget_ms", budget,
			"degradation", rec.Degradation)
		if t.metrics != nil {
			t.metrics.PhaseBudgetExceeded.WithLabelValues(phase.String()).Inc()
		}
	}

	if run != nil && !run.closed {
		run.Records = append(run.Records, rec)
	}
	t.windows[phase].append(elapsedMS)
	if t.metrics != nil {
		t.metrics.PhaseDuration.WithLabelValues(phase.String()).Observe(elapsed.Seconds())
	}
	return rec
}

// FinishRun closes the run and pushes its total into the end-to-end
// window. Calling it twice is a no-op.
func (t *Tracker) FinishRun(run *Run) {
	if run == nil || run.closed {
		return
	}
	run.closed = true
	run.EndedAt = time.Now()
	t.e2e.append(run.TotalMS())
}

// ShouldSkipFinalizer reports whether the remaining end-to-end budget
// no longer fits a finalizer call.
func (t *Tracker) ShouldSkipFinalizer(elapsedSoFar time.Duration) bool {
	remaining := t.config.EndToEndMaxMS - float64(elapsedSoFar.Milliseconds())
	return remaining < t.config.FinalizerMaxMS
}

// Stats summarizes one phase window.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	P50   float64
	P95   float64
}

// PhaseStats returns statistics for one phase from its bounded window.
func (t *Tracker) PhaseStats(phase Phase) Stats {
	return t.windows[phase].stats()
}

// EndToEndStats returns statistics over completed runs.
func (t *Tracker) EndToEndStats() Stats {
	return t.e2e.stats()
}

// window is a bounded ring of samples with its own lock.
type window struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newWindow(size int) *window {
	return &window{samples: make([]float64, size)}
}

func (w *window) append(sample float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = sample
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// stats computes on a snapshot of the window so appends during the
// computation are not observed.
func (w *window) stats() Stats {
	w.mu.Lock()
	var snapshot []float64
	if w.full {
		snapshot = append(snapshot, w.samples...)
	} else {
		snapshot = append(snapshot, w.samples[:w.next]...)
	}
	w.mu.Unlock()

	if len(snapshot) == 0 {
		return Stats{}
	}

	sorted := append([]float64(nil), snapshot...)
	sort.Float64s(sorted)

	return Stats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

// percentile uses nearest-rank on a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
