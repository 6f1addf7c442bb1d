package detector

import (
	"sort"
	"strings"
	"time"
)

// UnlockCalendar maps a token to the day of month its monthly supply unlock happens.
type UnlockCalendar struct {
	Days       map[string]int
	WindowDays int
}

// DefaultUnlockCalendar returns the tracked tokens with a 7-day pre-unlock window.
func DefaultUnlockCalendar() UnlockCalendar {
	return UnlockCalendar{
		Days: map[string]int{
			"ENA": 2, "ZK": 17, "ZRO": 20, "W": 3, "STRK": 15,
			"PIXEL": 19, "MANTA": 18, "ALT": 25, "DYM": 6,
		},
		WindowDays: 7,
	}
}

// Tokens lists the calendar's assets in sorted order.
func (c UnlockCalendar) Tokens() []string {
	out := make([]string, 0, len(c.Days))
	for k := range c.Days {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NextUnlock returns midnight UTC of the next unlock day at or after now.
// Months without that day are skipped.
func NextUnlock(now time.Time, day int) time.Time {
	now = now.UTC()
	y, m, _ := now.Date()
	for i := 0; i < 3; i++ {
		month := m + time.Month(i)
		cand := time.Date(y, month, day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes Feb 30 into March; reject that.
		if cand.Day() != day {
			continue
		}
		if !cand.Before(now) {
			return cand
		}
	}
	return time.Date(y, m+3, day, 0, 0, 0, 0, time.UTC)
}

// InWindow reports whether now is within WindowDays before asset's next unlock.
func (c UnlockCalendar) InWindow(asset string, now time.Time) bool {
	day, ok := c.Days[strings.ToUpper(asset)]
	if !ok {
		return false
	}
	next := NextUnlock(now, day)
	start := next.AddDate(0, 0, -c.WindowDays)
	return !now.Before(start) && !now.After(next)
}
