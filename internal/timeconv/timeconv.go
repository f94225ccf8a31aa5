// Package timeconv converts between wall-clock strings in an IANA zone and
// absolute instants, using the host timezone database.
package timeconv

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // fallback when the host has no zoneinfo

	"remindd/internal/reminder"
)

// LocalLayout is the wall-clock format produced by UTCToLocal.
const LocalLayout = "2006-01-02T15:04:05.000"

var wallLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// Load resolves an IANA zone name. Empty means the host local zone.
func Load(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", reminder.ErrInvalidTimezone, tz, err)
	}
	return loc, nil
}

// LocalName returns the host zone as an IANA name, falling back to UTC
// when the host does not expose one.
func LocalName() string {
	if tz := strings.TrimPrefix(strings.TrimSpace(os.Getenv("TZ")), ":"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}

// LocalToUTC interprets wall as a wall-clock time in tz.
//
// Strings carrying an explicit offset (RFC 3339) keep their offset.
// Ambiguous local times resolve to the earlier instant; nonexistent ones
// (spring-forward gaps) move forward by the gap length.
func LocalToUTC(wall, tz string) (time.Time, error) {
	loc, err := Load(tz)
	if err != nil {
		return time.Time{}, err
	}
	s := strings.TrimSpace(wall)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", reminder.ErrInvalidTriggerTime)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range wallLayouts {
		p, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return Date(loc, p.Year(), p.Month(), p.Day(), p.Hour(), p.Minute(), p.Second(), p.Nanosecond()).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", reminder.ErrInvalidTriggerTime, wall)
}

// UTCToLocal formats t as a wall-clock string in tz.
func UTCToLocal(t time.Time, tz string) (string, error) {
	loc, err := Load(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(LocalLayout), nil
}

// Date is time.Date with a fixed policy for DST edges: the earlier instant
// for repeated wall times, a forward shift by the gap for skipped ones.
func Date(loc *time.Location, year int, month time.Month, day, hour, min, sec, nsec int) time.Time {
	t := time.Date(year, month, day, hour, min, sec, nsec, loc)

	// time.Date normalizes overflowing fields; compare against the
	// normalized wall clock so only DST gaps are detected.
	want := time.Date(year, month, day, hour, min, sec, nsec, time.UTC)
	got := wallOf(t)
	if got.Before(want) {
		return t.Add(want.Sub(got))
	}
	if got.After(want) {
		return t
	}

	// Repeated wall time: take the earliest instant showing it. Offsets in
	// effect half a day either side cover any single transition.
	for _, probe := range []time.Time{t.Add(-12 * time.Hour), t.Add(12 * time.Hour)} {
		_, off := probe.Zone()
		alt := want.Add(-time.Duration(off) * time.Second).In(loc)
		if alt.Before(t) && wallOf(alt).Equal(want) {
			t = alt
		}
	}
	return t
}

func wallOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
