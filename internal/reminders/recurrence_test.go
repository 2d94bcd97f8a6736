package reminders

import (
	"testing"
	"time"
)

func TestNextOccurrence(t *testing.T) {
	base := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		interval string
		want     time.Time
	}{
		{"hourly", base.Add(time.Hour)},
		{"saatlik", base.Add(time.Hour)},
		{"daily", base.Add(24 * time.Hour)},
		{"günlük", base.Add(24 * time.Hour)},
		{"weekly", base.Add(7 * 24 * time.Hour)},
		{"haftalık", base.Add(7 * 24 * time.Hour)},
		{"monthly", time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)},
		{"aylık", time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)},
		{"30m", base.Add(30 * time.Minute)},
		{"2h", base.Add(2 * time.Hour)},
		{"3d", base.Add(3 * 24 * time.Hour)},
		{"1w", base.Add(7 * 24 * time.Hour)},
		{"  Daily  ", base.Add(24 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := NextOccurrence(base, tt.interval)
		if err != nil {
			t.Errorf("NextOccurrence(%q): %v", tt.interval, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("NextOccurrence(%q) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestNextOccurrenceCron(t *testing.T) {
	base := time.Date(2026, 2, 12, 9, 30, 0, 0, time.UTC)
	got, err := NextOccurrence(base, "0 9 * * 1")
	if err != nil {
		t.Fatalf("cron interval: %v", err)
	}
	// The Monday after Thursday 2026-02-12.
	want := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("next = %v, want %v", got, want)
	}
}

func TestNextOccurrenceDeterministic(t *testing.T) {
	base := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	first, err := NextOccurrence(base, "daily")
	if err != nil {
		t.Fatal(err)
	}
	second, err := NextOccurrence(base, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) {
		t.Errorf("recurrence not deterministic: %v vs %v", first, second)
	}
}

func TestNextOccurrenceUnrecognized(t *testing.T) {
	base := time.Now()
	for _, interval := range []string{"", "yearly-ish", "0x", "her gün sabah", "-5m"} {
		if _, err := NextOccurrence(base, interval); err == nil {
			t.Errorf("NextOccurrence(%q) accepted, want error", interval)
		}
	}
}
