package memory

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bantzhq/bantz/pkg/models"
)

func TestSummaryTrimmedOnWrite(t *testing.T) {
	tr := NewTracer(Config{SummaryCharBudget: 50})

	tr.AppendSummary(strings.Repeat("a", 40))
	if got := len(tr.Summary()); got > 50 {
		t.Fatalf("summary length %d exceeds cap", got)
	}

	tr.AppendSummary(strings.Repeat("b", 40))
	summary := tr.Summary()
	if len(summary) > 50 {
		t.Fatalf("summary length %d exceeds cap after second write", len(summary))
	}
	// Newest suffix is kept.
	if !strings.HasSuffix(summary, strings.Repeat("b", 40)) {
		t.Errorf("newest content must survive the trim: %q", summary)
	}
}

func TestSummaryTrimKeepsRunesIntact(t *testing.T) {
	tr := NewTracer(DefaultConfig())

	// Two-byte runes put the byte cut mid-character unless the trim
	// respects rune boundaries.
	tr.AppendSummary(strings.Repeat("ğ", 299) + "a")

	summary := tr.Summary()
	if !utf8.ValidString(summary) {
		t.Fatalf("summary is not valid UTF-8 after trim: %q", summary[:12])
	}
	if len(summary) > 500 {
		t.Errorf("summary length %d exceeds cap", len(summary))
	}
	if !strings.HasSuffix(summary, "ğa") {
		t.Errorf("newest content must survive the trim: %q", summary[len(summary)-8:])
	}
}

func TestInjectionHardCutKeepsRunesIntact(t *testing.T) {
	tr := NewTracer(Config{MaxTokens: 10}) // 10 tokens ≈ 40 chars
	tr.BeginTurn(1)

	// Single oversized line forces the character cut path.
	injected := tr.RecordInjection(strings.Repeat("ş", 60), 1, nil)
	if !utf8.ValidString(injected) {
		t.Fatalf("injected block is not valid UTF-8 after trim: %q", injected)
	}
	if trimmed := strings.Trim(injected, "ş"); trimmed != "" {
		t.Errorf("trim left partial bytes %q in %q", trimmed, injected)
	}
}

func TestIdempotentMemoryUpdate(t *testing.T) {
	apply := func(tr *Tracer) {
		tr.BeginTurn(3)
		tr.RecordInjection("line1\nline2\nline3", 3, nil)
		tr.AppendSummary("takvim sorgulandı")
		tr.EndTurn()
	}

	a := NewTracer(Config{SummaryCharBudget: 30})
	b := NewTracer(Config{SummaryCharBudget: 30})
	apply(a)
	apply(a)
	apply(b)
	apply(b)

	ra, rb := a.Records(), b.Records()
	if len(ra) != len(rb) {
		t.Fatalf("record counts differ: %d vs %d", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i] != rb[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, ra[i], rb[i])
		}
	}
	if len(a.Summary()) > 30 || a.Summary() != b.Summary() {
		t.Errorf("summaries diverge or exceed cap: %q vs %q", a.Summary(), b.Summary())
	}
}

func TestInjectionTrimsLineWiseFromHead(t *testing.T) {
	tr := NewTracer(Config{MaxTokens: 10}) // 10 tokens ≈ 40 chars
	tr.BeginTurn(1)

	old := strings.Repeat("x", 36)  // 9 tokens
	newer := strings.Repeat("y", 36) // 9 tokens
	block := old + "\n" + newer

	injected := tr.RecordInjection(block, 2, nil)
	if strings.Contains(injected, "x") {
		t.Error("oldest line should be dropped first")
	}
	if !strings.Contains(injected, "y") {
		t.Error("newest line must survive")
	}

	rec := tr.EndTurn()
	if !rec.Trimmed || rec.TrimReason != "token_budget" {
		t.Errorf("trim not recorded: %+v", rec)
	}
	if rec.AfterTokens > 10 {
		t.Errorf("after tokens %d over budget", rec.AfterTokens)
	}
	if rec.OriginalTokens <= rec.AfterTokens {
		t.Errorf("original %d should exceed after %d", rec.OriginalTokens, rec.AfterTokens)
	}
}

func TestInjectionWithinBudgetNotTrimmed(t *testing.T) {
	tr := NewTracer(DefaultConfig())
	tr.BeginTurn(1)

	block := "kısa özet"
	if got := tr.RecordInjection(block, 1, nil); got != block {
		t.Errorf("block changed: %q", got)
	}

	rec := tr.EndTurn()
	if rec.Trimmed {
		t.Errorf("no trim expected: %+v", rec)
	}
	if !rec.Injected || rec.TurnsRepresented != 1 {
		t.Errorf("injection not recorded: %+v", rec)
	}
}

func TestTurnRingBounded(t *testing.T) {
	tr := NewTracer(Config{MaxTurns: 3})
	for i := 0; i < 10; i++ {
		tr.AppendTurn("u", "a")
	}
	if got := len(tr.Turns()); got != 3 {
		t.Errorf("turn ring length = %d, want 3", got)
	}
}

func TestEventRingEvictsFIFO(t *testing.T) {
	tr := NewTracer(Config{MaxEvents: 2})
	tr.AppendEvent(models.NewEvent(models.EventTurnStart, "a", nil))
	tr.AppendEvent(models.NewEvent(models.EventToolCall, "b", nil))
	tr.AppendEvent(models.NewEvent(models.EventTurnEnd, "c", nil))

	events := tr.Events()
	if len(events) != 2 {
		t.Fatalf("event ring length = %d, want 2", len(events))
	}
	if events[0].Type != models.EventToolCall || events[1].Type != models.EventTurnEnd {
		t.Errorf("oldest event must be evicted first: %v, %v", events[0].Type, events[1].Type)
	}
}

func TestPendingConfirmationSlot(t *testing.T) {
	tr := NewTracer(DefaultConfig())

	if _, ok := tr.Pending(); ok {
		t.Fatal("fresh tracer must have no pending confirmation")
	}

	tr.SetPending(models.PendingConfirmation{Tool: "calendar.delete_event", Prompt: "silinsin mi?"})
	pending, ok := tr.Pending()
	if !ok || pending.Tool != "calendar.delete_event" {
		t.Fatalf("pending = %+v, ok = %v", pending, ok)
	}

	tr.ClearPending()
	if _, ok := tr.Pending(); ok {
		t.Fatal("pending must be cleared")
	}
}

func TestPIIFilter(t *testing.T) {
	tr := NewTracer(Config{PIIFilter: true, SummaryCharBudget: 200})
	tr.AppendSummary("ali@example.com adresine yazıldı, tel +90 555 123 4567")

	summary := tr.Summary()
	if strings.Contains(summary, "example.com") {
		t.Errorf("email not redacted: %q", summary)
	}
	if strings.Contains(summary, "555 123") {
		t.Errorf("phone not redacted: %q", summary)
	}
}

func TestPromptBlock(t *testing.T) {
	block := PromptBlock(4, "takvim sorgusu", "etkinlikler listelendi", []string{"Sprint"}, 3, "calendar.list_events")
	for _, want := range []string{"[tur 4]", "takvim sorgusu", "Sprint", "sonuç: 3", "calendar.list_events"} {
		if !strings.Contains(block, want) {
			t.Errorf("block %q missing %q", block, want)
		}
	}
}
