// Package bus implements the in-process event bus: topic pub/sub with
// dotted-segment wildcard patterns, an ordered middleware chain, and
// synchronous fan-out on the publisher's goroutine.
package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/pkg/models"
)

// Handler consumes one event. Handlers run synchronously on the
// publisher's goroutine and must be fire-and-forget safe; a slow
// handler slows the producer.
type Handler func(ctx context.Context, event models.Event)

// Middleware transforms or drops an event before dispatch. Returning
// nil halts propagation silently.
type Middleware func(event models.Event) *models.Event

// Subscription identifies one registered handler so it can be removed.
// Subscribers are held in an arena addressed by ID; no handler
// comparison is ever needed.
type Subscription struct {
	id      uint64
	pattern string
}

type entry struct {
	id      uint64
	pattern string
	handler Handler
}

// Bus routes events to subscribers.
type Bus struct {
	mu          sync.RWMutex
	nextID      uint64
	entries     []entry
	middlewares []Middleware

	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the bus.
type Option func(*Bus)

// WithLogger configures the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics enables publish counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(b *Bus) {
		b.metrics = metrics
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default().With("component", "bus")}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an exact topic or a wildcard
// pattern like "tool.*". Dispatch order follows registration order.
func (b *Bus) Subscribe(pattern string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := Subscription{id: b.nextID, pattern: pattern}
	b.entries = append(b.entries, entry{id: sub.id, pattern: pattern, handler: handler})
	return sub
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == sub.id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// Use appends a middleware to the chain. Middlewares run in the order
// they were added, before any handler sees the event.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// Publish fans the event out to every matching subscriber. A handler
// panic is logged and never stops the remaining handlers. The bus does
// not queue: backpressure lands on the publisher.
func (b *Bus) Publish(ctx context.Context, event models.Event) {
	b.mu.RLock()
	middlewares := append([]Middleware(nil), b.middlewares...)
	entries := append([]entry(nil), b.entries...)
	b.mu.RUnlock()

	for _, mw := range middlewares {
		next := mw(event)
		if next == nil {
			if b.metrics != nil {
				b.metrics.EventsDropped.WithLabelValues("custom").Inc()
			}
			return
		}
		event = *next
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	}

	for _, e := range entries {
		if !Match(e.pattern, string(event.Type)) {
			continue
		}
		b.dispatch(ctx, e, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, e entry, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"pattern", e.pattern,
				"event", string(event.Type),
				"panic", r)
		}
	}()
	e.handler(ctx, event)
}

// Match reports whether a dotted pattern matches a topic. "*" matches
// exactly one segment; a trailing "*" matches any remaining suffix.
func Match(pattern, topic string) bool {
	if pattern == topic || pattern == "*" {
		return true
	}

	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")

	for i, p := range pSegs {
		trailing := i == len(pSegs)-1
		if p == "*" && trailing {
			// Trailing star matches any non-empty suffix.
			return len(tSegs) >= len(pSegs)
		}
		if i >= len(tSegs) {
			return false
		}
		if p != "*" && p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}
