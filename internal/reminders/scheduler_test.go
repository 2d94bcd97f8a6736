package reminders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/pkg/models"
)

func TestRecurringReminderReArms(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)

	if err := store.Add(ctx, &models.Reminder{
		ID:             "r1",
		Message:        "günlük rapor",
		RemindAt:       t0,
		RepeatInterval: "daily",
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	events := bus.New()
	var fired []models.Event
	events.Subscribe("reminder.fired", func(_ context.Context, e models.Event) {
		fired = append(fired, e)
	})

	now := t0
	scheduler := NewScheduler(store, events, WithNow(func() time.Time { return now }))

	scheduler.TickOnce(ctx)
	if len(fired) != 1 {
		t.Fatalf("fired = %d events, want 1", len(fired))
	}
	if fired[0].Data["id"] != "r1" || fired[0].Data["message"] != "günlük rapor" {
		t.Errorf("event data = %v", fired[0].Data)
	}
	if when, ok := fired[0].Data["time"].(time.Time); !ok || !when.Equal(t0) {
		t.Errorf("time = %v, want %v", fired[0].Data["time"], t0)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ReminderPending {
		t.Errorf("status = %s, want pending after re-arm", got.Status)
	}
	if !got.RemindAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("remind_at = %v, want %v", got.RemindAt, t0.Add(24*time.Hour))
	}

	// Nothing more is due until tomorrow.
	scheduler.TickOnce(ctx)
	if len(fired) != 1 {
		t.Fatalf("re-armed reminder fired early: %d events", len(fired))
	}

	now = t0.Add(24 * time.Hour)
	scheduler.TickOnce(ctx)
	if len(fired) != 2 {
		t.Fatalf("fired = %d events at t0+24h, want 2", len(fired))
	}
}

func TestOneShotReminderMarkedDone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)

	if err := store.Add(ctx, &models.Reminder{ID: "r1", Message: "toplantı", RemindAt: t0}); err != nil {
		t.Fatalf("add: %v", err)
	}

	events := bus.New()
	var messages []models.Event
	events.Subscribe("bantz_message", func(_ context.Context, e models.Event) {
		messages = append(messages, e)
	})

	scheduler := NewScheduler(store, events, WithNow(func() time.Time { return t0 }))
	scheduler.TickOnce(ctx)

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ReminderDone {
		t.Errorf("status = %s, want done", got.Status)
	}
	if len(messages) != 1 || messages[0].Data["message"] != "Hatırlatma efendim: toplantı" {
		t.Errorf("messages = %v", messages)
	}

	scheduler.TickOnce(ctx)
	if len(messages) != 1 {
		t.Errorf("done reminder fired again")
	}
}

func TestUnrecognizedIntervalRetires(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)

	if err := store.Add(ctx, &models.Reminder{
		ID:             "r1",
		Message:        "x",
		RemindAt:       t0,
		RepeatInterval: "her dolunayda",
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	scheduler := NewScheduler(store, bus.New(), WithNow(func() time.Time { return t0 }))
	scheduler.TickOnce(ctx)

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ReminderDone {
		t.Errorf("status = %s, want done for unrecognized interval", got.Status)
	}
}

func TestCorruptTimestampRetired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.db.Exec(`
		INSERT INTO reminders (id, message, remind_at, created_at, status)
		VALUES ('bad', 'x', '12.02.2026 09:00', '2026-02-12T08:00:00Z', 'pending')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	scheduler := NewScheduler(store, bus.New())
	scheduler.TickOnce(ctx)

	due, corrupt, err := store.Due(ctx, time.Now())
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 || len(corrupt) != 0 {
		t.Errorf("poison row still visible: due=%v corrupt=%v", due, corrupt)
	}
}

func TestStartStopCompletesInFlightTick(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "reminders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	scheduler := NewScheduler(store, bus.New(), WithTick(time.Millisecond))
	scheduler.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	scheduler.Stop()
}
