// Package backoff provides the wait schedules used when retrying tool
// calls and store operations.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Schedule is a fixed sequence of waits. Attempts past the end of the
// sequence reuse the last value.
type Schedule []time.Duration

// DefaultSchedule is the tool-retry schedule: 1s, 3s, 7s, 7s, ...
func DefaultSchedule() Schedule {
	return Schedule{1 * time.Second, 3 * time.Second, 7 * time.Second}
}

// Wait returns the delay before the given retry. Retry numbers start
// at 1; zero or negative returns 0.
func (s Schedule) Wait(retry int) time.Duration {
	if retry <= 0 || len(s) == 0 {
		return 0
	}
	if retry > len(s) {
		return s[len(s)-1]
	}
	return s[retry-1]
}

// Sleep blocks for the scheduled delay or until the context is done.
// Returns the context error when interrupted.
func (s Schedule) Sleep(ctx context.Context, retry int) error {
	wait := s.Wait(retry)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy defines exponential backoff with jitter, used where a fixed
// schedule is too rigid (store contention, watcher restarts).
type Policy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
}

// DefaultPolicy returns the default jittered policy.
// Initial: 100ms, Max: 30s, Factor: 2, Jitter: 10%
func DefaultPolicy() Policy {
	return Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}

// Compute calculates the backoff duration for a given attempt number.
// Attempt numbers start at 1.
func (p Policy) Compute(attempt int) time.Duration {
	return p.ComputeWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the backoff using a provided random value
// in [0.0, 1.0). Deterministic for tests.
func (p Policy) ComputeWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	jitterAmount := base * p.Jitter * randomValue
	total := math.Min(p.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}
