package subscribers

import (
	"log/slog"
	"time"

	"github.com/bantzhq/bantz/internal/bus"
	"github.com/bantzhq/bantz/internal/cache"
	"github.com/bantzhq/bantz/internal/observability"
	"github.com/bantzhq/bantz/pkg/models"
)

// DefaultRateLimitWindow is the duplicate-suppression window.
const DefaultRateLimitWindow = 100 * time.Millisecond

// LoggingMiddleware dumps every event at debug level and passes it on.
func LoggingMiddleware(logger *slog.Logger) bus.Middleware {
	if logger == nil {
		logger = slog.Default().With("component", "bus")
	}
	return func(event models.Event) *models.Event {
		logger.Debug("event",
			"type", string(event.Type),
			"source", event.Source,
			"correlation_id", event.CorrelationID,
			"data", event.Data)
		return &event
	}
}

// RateLimitMiddleware drops duplicate {type, source} events published
// within the window. The official mitigation for slow subscribers on a
// synchronous bus.
func RateLimitMiddleware(window time.Duration, metrics *observability.Metrics) bus.Middleware {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	dedupe := cache.NewDedupeCache(cache.DedupeOptions{TTL: window})
	return func(event models.Event) *models.Event {
		if dedupe.Check(string(event.Type) + "|" + event.Source) {
			if metrics != nil {
				metrics.EventsDropped.WithLabelValues("rate_limit").Inc()
			}
			return nil
		}
		return &event
	}
}
