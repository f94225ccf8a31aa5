// Package quiethours defers fire instants out of a local do-not-disturb window.
package quiethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindd/internal/reminder"
	"remindd/internal/timeconv"
)

// Window is a parsed [Start, End) window in minutes after local midnight.
type Window struct {
	Start int
	End   int
}

// Overnight reports whether the window spans midnight (e.g. 22:00-07:00).
func (w Window) Overnight() bool { return w.Start > w.End }

// Contains reports whether minute-of-day m falls inside the window.
func (w Window) Contains(m int) bool {
	if w.Start == w.End {
		return false
	}
	if w.Start < w.End {
		return m >= w.Start && m < w.End
	}
	return m >= w.Start || m < w.End
}

// ParseHHMM parses "HH:MM" with hour 0-23 and minute 0-59.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Parse validates qh and returns its window. ok is false when qh is nil
// or disabled.
func Parse(qh *reminder.QuietHours) (w Window, ok bool, err error) {
	if qh == nil || !qh.Enabled {
		return Window{}, false, nil
	}
	sh, sm, err := ParseHHMM(qh.StartLocal)
	if err != nil {
		return Window{}, false, fmt.Errorf("quietHours.startLocal: %w", err)
	}
	eh, em, err := ParseHHMM(qh.EndLocal)
	if err != nil {
		return Window{}, false, fmt.Errorf("quietHours.endLocal: %w", err)
	}
	return Window{Start: sh*60 + sm, End: eh*60 + em}, true, nil
}

// Apply moves t to the end of the quiet window when t falls inside it.
// Instants outside the window, and invalid or empty windows, pass through.
//
// The result is always strictly after t when shifted, and Apply(Apply(t)) == Apply(t).
func Apply(t time.Time, qh *reminder.QuietHours, loc *time.Location) time.Time {
	w, ok, err := Parse(qh)
	if err != nil || !ok {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	mod := local.Hour()*60 + local.Minute()
	if !w.Contains(mod) {
		return t
	}

	day := 0
	if w.Overnight() && mod >= w.Start {
		day = 1
	}
	out := timeconv.Date(loc, local.Year(), local.Month(), local.Day()+day, w.End/60, w.End%60, 0, 0)
	if !out.After(t) {
		// t is in the second pass of a repeated hour: the window end is the
		// later instant with the same wall clock.
		wall := time.Date(local.Year(), local.Month(), local.Day()+day, w.End/60, w.End%60, 0, 0, time.UTC)
		_, off := out.Add(12 * time.Hour).Zone()
		alt := wall.Add(-time.Duration(off) * time.Second)
		if l := alt.In(loc); alt.After(t) && l.Hour()*60+l.Minute() == w.End && l.Day() == wall.Day() {
			out = alt
		} else {
			out = timeconv.Date(loc, local.Year(), local.Month(), local.Day()+day+1, w.End/60, w.End%60, 0, 0)
		}
	}
	return out.UTC()
}
