package reminders

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/pkg/models"
)

const defaultTick = 10 * time.Second

// Scheduler fires due reminders over the event bus. One background
// loop; Stop lets the in-flight tick finish before returning.
type Scheduler struct {
	store   Store
	events  *bus.Bus
	tick    time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithTick overrides the tick interval. Tests use milliseconds.
func WithTick(tick time.Duration) Option {
	return func(s *Scheduler) {
		if tick > 0 {
			s.tick = tick
		}
	}
}

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics enables fired-reminder counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(store Store, events *bus.Bus, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		events: events,
		tick:   defaultTick,
		logger: slog.Default().With("component", "reminders"),
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the tick loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.TickOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop. The in-flight tick completes first.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

// TickOnce processes every currently due reminder. Errors are logged
// and never escape; the next tick retries.
func (s *Scheduler) TickOnce(ctx context.Context) {
	now := s.now()
	due, corrupt, err := s.store.Due(ctx, now)
	if err != nil {
		s.logger.Error("reminder tick failed", "error", err)
		return
	}

	// Unparseable rows are retired so they cannot poison every tick.
	for _, id := range corrupt {
		s.logger.Error("reminder has unparseable timestamp, retiring", "id", id)
		if err := s.store.MarkDone(ctx, id, "bozuk zaman damgası"); err != nil {
			s.logger.Error("retire reminder failed", "id", id, "error", err)
		}
	}

	for _, reminder := range due {
		s.fire(ctx, reminder)
	}
}

func (s *Scheduler) fire(ctx context.Context, reminder *models.Reminder) {
	s.logger.Info("reminder due", "id", reminder.ID, "message", reminder.Message)

	s.publish(ctx, models.EventReminderFired, map[string]any{
		"id":      reminder.ID,
		"message": reminder.Message,
		"time":    reminder.RemindAt,
	})
	s.publish(ctx, models.EventBantzMessage, map[string]any{
		"message": "Hatırlatma efendim: " + reminder.Message,
	})
	if s.metrics != nil {
		s.metrics.RemindersFired.WithLabelValues(strconv.FormatBool(reminder.RepeatInterval != "")).Inc()
	}

	if reminder.RepeatInterval == "" {
		if err := s.store.MarkDone(ctx, reminder.ID, ""); err != nil {
			s.logger.Error("mark reminder done failed", "id", reminder.ID, "error", err)
		}
		return
	}

	next, err := NextOccurrence(reminder.RemindAt, reminder.RepeatInterval)
	if err != nil {
		s.logger.Warn("unrecognized repeat interval, retiring reminder",
			"id", reminder.ID, "interval", reminder.RepeatInterval)
		if err := s.store.MarkDone(ctx, reminder.ID, ""); err != nil {
			s.logger.Error("mark reminder done failed", "id", reminder.ID, "error", err)
		}
		return
	}

	reminder.RemindAt = next
	reminder.Status = models.ReminderPending
	reminder.SnoozedUntil = nil
	if err := s.store.Update(ctx, reminder); err != nil {
		s.logger.Error("re-arm reminder failed", "id", reminder.ID, "error", err)
	}
}

func (s *Scheduler) publish(ctx context.Context, eventType models.EventType, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, models.NewEvent(eventType, "reminders", data))
}
