package firewall

import (
	"context"
	"testing"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/memory"
	"github.com/bantzhq/bantz/internal/policy"
	"github.com/bantzhq/bantz/pkg/models"
)

func newTestFirewall(t *testing.T) (*Firewall, *eventLog) {
	t.Helper()
	events := bus.New()
	log := &eventLog{}
	events.Subscribe("tool.*", func(_ context.Context, e models.Event) {
		log.events = append(log.events, e)
	})
	return New(policy.NewRegistry(), events, nil), log
}

type eventLog struct {
	events []models.Event
}

func (l *eventLog) types() []models.EventType {
	types := make([]models.EventType, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}

func TestSafeToolAllowed(t *testing.T) {
	fw, log := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})

	verdict := fw.Check(context.Background(), &models.PlannerDecision{}, "calendar.list_events", session, "c1")
	if verdict.Decision != Allow {
		t.Fatalf("verdict = %+v, want allow", verdict)
	}
	if verdict.Confirmation != models.ConfirmationAuto {
		t.Errorf("confirmation = %s, want auto", verdict.Confirmation)
	}
	if len(log.events) != 0 {
		t.Errorf("unexpected events: %v", log.types())
	}
}

func TestDestructiveWithoutFlagDenied(t *testing.T) {
	fw, log := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})

	decision := &models.PlannerDecision{RequiresConfirmation: false}
	verdict := fw.Check(context.Background(), decision, "calendar.delete_event", session, "c1")
	if verdict.Decision != Deny || verdict.Reason != "confirmation missing" {
		t.Fatalf("verdict = %+v, want deny with confirmation missing", verdict)
	}
	if len(log.events) != 1 || log.events[0].Type != models.EventToolDenied {
		t.Fatalf("events = %v, want tool.denied", log.types())
	}
	if log.events[0].Data["reason"] != "confirmation missing" {
		t.Errorf("reason = %v", log.events[0].Data["reason"])
	}
	if _, ok := session.Pending(); ok {
		t.Error("denied call must not leave a pending confirmation")
	}
}

func TestDestructiveAsksThenAllows(t *testing.T) {
	fw, log := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})

	decision := &models.PlannerDecision{
		RequiresConfirmation: true,
		Slots:                map[string]any{"title": "Sprint"},
	}

	// First pass: no pending confirmation, so ask and park the call.
	verdict := fw.Check(context.Background(), decision, "calendar.delete_event", session, "c1")
	if verdict.Decision != AskConfirmation {
		t.Fatalf("first verdict = %+v, want ask", verdict)
	}
	if verdict.Prompt != "'Sprint' etkinliği silinsin mi? (evet/hayır)" {
		t.Errorf("prompt = %q", verdict.Prompt)
	}
	pending, ok := session.Pending()
	if !ok || pending.Tool != "calendar.delete_event" {
		t.Fatalf("pending = %+v, %v", pending, ok)
	}

	// Second pass: pending matches, clear and allow as user-confirmed.
	verdict = fw.Check(context.Background(), decision, "calendar.delete_event", session, "c1")
	if verdict.Decision != Allow || verdict.Confirmation != models.ConfirmationUser {
		t.Fatalf("second verdict = %+v, want user-confirmed allow", verdict)
	}
	if _, ok := session.Pending(); ok {
		t.Error("pending confirmation must be cleared after allow")
	}
	types := log.types()
	if len(types) != 1 || types[0] != models.EventToolConfirmed {
		t.Errorf("events = %v, want tool.confirmed", types)
	}
}

func TestPlannerPromptPreferred(t *testing.T) {
	fw, _ := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})

	decision := &models.PlannerDecision{
		RequiresConfirmation: true,
		ConfirmationPrompt:   "Bu e-posta gönderilsin mi? (evet/hayır)",
	}
	verdict := fw.Check(context.Background(), decision, "gmail.send_message", session, "c1")
	if verdict.Decision != AskConfirmation {
		t.Fatalf("verdict = %+v", verdict)
	}
	if verdict.Prompt != decision.ConfirmationPrompt {
		t.Errorf("prompt = %q, want the planner's", verdict.Prompt)
	}
}

func TestAlwaysConfirmToolNeedsConfirmation(t *testing.T) {
	fw, _ := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})

	verdict := fw.Check(context.Background(), &models.PlannerDecision{}, "gmail.send_message", session, "c1")
	if verdict.Decision != Deny {
		t.Fatalf("verdict = %+v, want deny for always-confirm without flag", verdict)
	}
}

func TestPendingForOtherToolDoesNotUnlock(t *testing.T) {
	fw, _ := newTestFirewall(t)
	session := memory.NewTracer(memory.Config{})
	session.SetPending(models.PendingConfirmation{Tool: "system.shutdown"})

	decision := &models.PlannerDecision{RequiresConfirmation: true}
	verdict := fw.Check(context.Background(), decision, "calendar.delete_event", session, "c1")
	if verdict.Decision != AskConfirmation {
		t.Fatalf("verdict = %+v, want ask; a different pending tool must not unlock", verdict)
	}
}

func TestIsAffirmation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"evet", true},
		{"Evet", true},
		{"EVET", true},
		{"  evet.  ", true},
		{"tamam", true},
		{"olur!", true},
		{"hayır", false},
		{"belki", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAffirmation(tt.text); got != tt.want {
			t.Errorf("IsAffirmation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsNegation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hayır", true},
		{"HAYIR", true},
		{"iptal", true},
		{"Vazgeç", true},
		{"evet", false},
	}
	for _, tt := range tests {
		if got := IsNegation(tt.text); got != tt.want {
			t.Errorf("IsNegation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
