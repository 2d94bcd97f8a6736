package bus

import (
	"context"
	"testing"

	"github.com/bantzhq/bantz/pkg/models"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"tool.call", "tool.call", true},
		{"tool.call", "tool.executed", false},
		{"tool.*", "tool.call", true},
		{"tool.*", "tool.executed", true},
		{"tool.*", "tool", false},
		{"tool.*", "tool.call.extra", true},
		{"tool.*", "turn.start", false},
		{"*", "anything", true},
		{"*.call", "tool.call", true},
		{"*.call", "tool.executed", false},
		{"*.call", "tool.call.extra", false},
		{"turn.start", "turn.start", true},
		{"reminder.fired", "reminder.fired", true},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestPublishRoutesToMatchingHandlers(t *testing.T) {
	b := New()
	var toolEvents, turnEvents []models.EventType

	b.Subscribe("tool.*", func(_ context.Context, e models.Event) {
		toolEvents = append(toolEvents, e.Type)
	})
	b.Subscribe("turn.start", func(_ context.Context, e models.Event) {
		turnEvents = append(turnEvents, e.Type)
	})

	ctx := context.Background()
	b.Publish(ctx, models.NewEvent(models.EventToolCall, "runner", nil))
	b.Publish(ctx, models.NewEvent(models.EventToolExecuted, "runner", nil))
	b.Publish(ctx, models.NewEvent(models.EventTurnStart, "orchestrator", nil))

	if len(toolEvents) != 2 {
		t.Errorf("tool.* handler got %d events, want 2", len(toolEvents))
	}
	if len(turnEvents) != 1 {
		t.Errorf("turn.start handler got %d events, want 1", len(turnEvents))
	}
}

func TestDispatchOrderFollowsRegistration(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe("tool.*", func(context.Context, models.Event) {
			order = append(order, i)
		})
	}

	b.Publish(context.Background(), models.NewEvent(models.EventToolCall, "runner", nil))

	for i, got := range order {
		if got != i {
			t.Fatalf("dispatch order %v not registration order", order)
		}
	}
}

func TestMiddlewareDrop(t *testing.T) {
	b := New()
	called := false
	b.Subscribe("tool.*", func(context.Context, models.Event) { called = true })
	b.Use(func(e models.Event) *models.Event {
		if e.Type == models.EventToolCall {
			return nil
		}
		return &e
	})

	b.Publish(context.Background(), models.NewEvent(models.EventToolCall, "runner", nil))
	if called {
		t.Error("dropped event must not reach handlers")
	}

	b.Publish(context.Background(), models.NewEvent(models.EventToolExecuted, "runner", nil))
	if !called {
		t.Error("non-dropped event must reach handlers")
	}
}

func TestMiddlewareTransformOrder(t *testing.T) {
	b := New()
	var got string
	b.Subscribe("error", func(_ context.Context, e models.Event) {
		got, _ = e.Data["trail"].(string)
	})
	b.Use(func(e models.Event) *models.Event {
		e = e.Clone()
		e.Data["trail"] = "a"
		return &e
	})
	b.Use(func(e models.Event) *models.Event {
		e = e.Clone()
		e.Data["trail"] = e.Data["trail"].(string) + "b"
		return &e
	})

	b.Publish(context.Background(), models.NewEvent(models.EventError, "test", map[string]any{}))
	if got != "ab" {
		t.Errorf("middleware chain order: trail = %q, want ab", got)
	}
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	b := New()
	reached := false
	b.Subscribe("tool.*", func(context.Context, models.Event) { panic("boom") })
	b.Subscribe("tool.*", func(context.Context, models.Event) { reached = true })

	b.Publish(context.Background(), models.NewEvent(models.EventToolCall, "runner", nil))
	if !reached {
		t.Error("panic in one handler must not stop the next")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	count := 0
	sub := b.Subscribe("tool.*", func(context.Context, models.Event) { count++ })

	b.Publish(context.Background(), models.NewEvent(models.EventToolCall, "runner", nil))
	b.Unsubscribe(sub)
	b.Publish(context.Background(), models.NewEvent(models.EventToolCall, "runner", nil))

	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
}

func TestCorrelationIDVisibleToSubscribers(t *testing.T) {
	b := New()
	var got string
	b.Subscribe("turn.start", func(_ context.Context, e models.Event) {
		got = e.CorrelationID
	})

	event := models.NewEvent(models.EventTurnStart, "orchestrator", nil).WithCorrelation("corr-42")
	b.Publish(context.Background(), event)

	if got != "corr-42" {
		t.Errorf("correlation id = %q, want corr-42", got)
	}
}
