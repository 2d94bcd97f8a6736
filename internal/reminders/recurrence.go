package reminders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var shorthandPattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

// namedIntervals maps the recognized English and Turkish interval
// names to a step function over the last fire time.
var namedIntervals = map[string]func(time.Time) time.Time{
	"hourly":   func(t time.Time) time.Time { return t.Add(time.Hour) },
	"saatlik":  func(t time.Time) time.Time { return t.Add(time.Hour) },
	"daily":    func(t time.Time) time.Time { return t.Add(24 * time.Hour) },
	"günlük":   func(t time.Time) time.Time { return t.Add(24 * time.Hour) },
	"weekly":   func(t time.Time) time.Time { return t.Add(7 * 24 * time.Hour) },
	"haftalık": func(t time.Time) time.Time { return t.Add(7 * 24 * time.Hour) },
	"monthly":  func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	"aylık":    func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
}

// NextOccurrence computes the follow-up fire time for a recurring
// reminder. Deterministic: the same (lastFire, interval) always yields
// the same result. Recognized forms are the named intervals (English
// and Turkish), the NNm/NNh/NNd/NNw shorthands, and standard cron
// expressions.
func NextOccurrence(lastFire time.Time, interval string) (time.Time, error) {
	normalized := strings.ToLower(strings.TrimSpace(interval))
	if normalized == "" {
		return time.Time{}, fmt.Errorf("empty repeat interval")
	}

	if step, ok := namedIntervals[normalized]; ok {
		return step(lastFire), nil
	}

	if m := shorthandPattern.FindStringSubmatch(normalized); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("bad interval count %q", interval)
		}
		switch m[2] {
		case "m":
			return lastFire.Add(time.Duration(n) * time.Minute), nil
		case "h":
			return lastFire.Add(time.Duration(n) * time.Hour), nil
		case "d":
			return lastFire.Add(time.Duration(n) * 24 * time.Hour), nil
		case "w":
			return lastFire.Add(time.Duration(n) * 7 * 24 * time.Hour), nil
		}
	}

	if schedule, err := cron.ParseStandard(normalized); err == nil {
		return schedule.Next(lastFire), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized repeat interval %q", interval)
}
