package backoff

import (
	"context"
	"testing"
	"time"
)

func TestScheduleWait(t *testing.T) {
	s := DefaultSchedule()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, 1 * time.Second},
		{2, 3 * time.Second},
		{3, 7 * time.Second},
		{4, 7 * time.Second},
		{100, 7 * time.Second},
	}

	for _, tt := range tests {
		if got := s.Wait(tt.retry); got != tt.want {
			t.Errorf("Wait(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestScheduleWaitEmpty(t *testing.T) {
	var s Schedule
	if got := s.Wait(1); got != 0 {
		t.Errorf("empty schedule Wait(1) = %v, want 0", got)
	}
}

func TestScheduleSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := Schedule{time.Minute}
	if err := s.Sleep(ctx, 1); err == nil {
		t.Fatal("expected context error from cancelled sleep")
	}
}

func TestPolicyCompute(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1000 * time.Millisecond}, // clamped to max
	}

	for _, tt := range tests {
		if got := p.ComputeWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("Compute(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyJitterDeterministic(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0.5}

	// base 100, jitter 100*0.5*0.5 = 25
	if got := p.ComputeWithRand(1, 0.5); got != 125*time.Millisecond {
		t.Errorf("ComputeWithRand = %v, want 125ms", got)
	}
}
