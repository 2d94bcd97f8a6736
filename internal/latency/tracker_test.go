package latency

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordPhaseWithinBudget(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	run := tracker.StartRun()

	rec := tracker.RecordPhase(run, PhaseRouter, 40*time.Millisecond)
	if rec.Exceeded {
		t.Error("40ms router call should be within the 100ms budget")
	}
	if rec.Degradation != DegradationNone {
		t.Errorf("degradation = %q, want none", rec.Degradation)
	}
}

func TestRecordPhaseExceeded(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	run := tracker.StartRun()

	rec := tracker.RecordPhase(run, PhaseTool, 1400*time.Millisecond)
	if !rec.Exceeded {
		t.Fatal("1400ms tool call must exceed the 1000ms budget")
	}
	if rec.Degradation != DegradationAsyncToolFeedback {
		t.Errorf("degradation = %q, want %q", rec.Degradation, DegradationAsyncToolFeedback)
	}
	if rec.FeedbackPhrase != "Bir bakayım efendim..." {
		t.Errorf("feedback phrase = %q", rec.FeedbackPhrase)
	}
}

func TestExceededIffOverBudget(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	tests := []struct {
		phase   Phase
		elapsed time.Duration
		want    bool
	}{
		{PhaseASR, 500 * time.Millisecond, false}, // equal is not exceeded
		{PhaseASR, 501 * time.Millisecond, true},
		{PhaseRouter, 99 * time.Millisecond, false},
		{PhaseTTS, 301 * time.Millisecond, true},
	}
	for _, tt := range tests {
		rec := tracker.RecordPhase(nil, tt.phase, tt.elapsed)
		if rec.Exceeded != tt.want {
			t.Errorf("%s %v: exceeded = %v, want %v", tt.phase, tt.elapsed, rec.Exceeded, tt.want)
		}
	}
}

func TestRunTotalAndFinish(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	run := tracker.StartRun()

	tracker.RecordPhase(run, PhaseASR, 120*time.Millisecond)
	tracker.RecordPhase(run, PhaseRouter, 40*time.Millisecond)
	tracker.RecordPhase(run, PhaseTool, 300*time.Millisecond)
	tracker.FinishRun(run)

	if got := run.TotalMS(); got != 460 {
		t.Errorf("TotalMS = %v, want 460", got)
	}
	if stats := tracker.EndToEndStats(); stats.Count != 1 || stats.Max != 460 {
		t.Errorf("e2e stats = %+v", stats)
	}

	// Finishing twice or recording after close must not grow the run.
	tracker.FinishRun(run)
	tracker.RecordPhase(run, PhaseTTS, 10*time.Millisecond)
	if len(run.Records) != 3 {
		t.Errorf("records after close = %d, want 3", len(run.Records))
	}
}

func TestShouldSkipFinalizer(t *testing.T) {
	tracker := NewTracker(DefaultConfig()) // e2e 2000, finalizer 500

	if tracker.ShouldSkipFinalizer(1400 * time.Millisecond) {
		t.Error("600ms remaining fits a 500ms finalizer")
	}
	if !tracker.ShouldSkipFinalizer(1600 * time.Millisecond) {
		t.Error("400ms remaining does not fit a 500ms finalizer")
	}
}

func TestPhaseStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 10
	tracker := NewTracker(cfg)

	for i := 1; i <= 20; i++ {
		tracker.RecordPhase(nil, PhaseRouter, time.Duration(i)*time.Millisecond)
	}

	stats := tracker.PhaseStats(PhaseRouter)
	if stats.Count != 10 {
		t.Fatalf("window must be bounded: count = %d, want 10", stats.Count)
	}
	// Only the last 10 samples (11..20) survive.
	if stats.Min != 11 || stats.Max != 20 {
		t.Errorf("min/max = %v/%v, want 11/20", stats.Min, stats.Max)
	}
	if stats.P50 < 11 || stats.P50 > 20 {
		t.Errorf("p50 = %v out of window range", stats.P50)
	}
}

func TestConcurrentRunsDoNotInterfere(t *testing.T) {
	tracker := NewTracker(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := tracker.StartRun()
			for j := 0; j < 50; j++ {
				tracker.RecordPhase(run, PhaseTool, 5*time.Millisecond)
			}
			tracker.FinishRun(run)
			if len(run.Records) != 50 {
				t.Errorf("run records = %d, want 50", len(run.Records))
			}
		}()
	}
	wg.Wait()

	if stats := tracker.EndToEndStats(); stats.Count != 8 {
		t.Errorf("e2e count = %d, want 8", stats.Count)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model-settings.yaml")
	doc := `
voice_pipeline:
  latency_budget:
    asr_max_ms: 250
    router_max_ms: 80
    end_to_end_max_ms: 1500
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ASRMaxMS != 250 || cfg.RouterMaxMS != 80 || cfg.EndToEndMaxMS != 1500 {
		t.Errorf("loaded = %+v", cfg)
	}
	// Unset fields backfill from defaults.
	if cfg.ToolMaxMS != 1000 || cfg.FinalizerMaxMS != 500 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}
