// Package planner computes the next fire instant of a reminder trigger.
package planner

import (
	"fmt"
	"math"
	"strings"
	"time"

	"remindd/internal/quiethours"
	"remindd/internal/reminder"
	"remindd/internal/timeconv"
)

// maxSteps bounds the calendar walk after the closed-form estimate.
const maxSteps = 1000

const (
	// maxIntervalMinutes keeps the interval step representable as a Duration.
	maxIntervalMinutes = math.MaxInt64 / int64(time.Minute)
	// maxCalendarInterval bounds daily, weekly and monthly multipliers so
	// k*interval stays far from int overflow.
	maxCalendarInterval = 100_000
)

// Next returns the first fire instant of r strictly after now, deferred
// past r's quiet hours. ok=false means the trigger has no future occurrence.
//
// Next satisfies reminder.NextFunc.
func Next(r reminder.Reminder, now time.Time) (time.Time, bool, error) {
	tt, ok := r.Trigger.(reminder.TimeTrigger)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: %T", reminder.ErrUnsupportedTrigger, r.Trigger)
	}
	loc, err := timeconv.Load(tt.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	base, err := timeconv.LocalToUTC(tt.At, tt.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	now = now.UTC()

	var next time.Time
	switch {
	case base.After(now):
		next = base
	case tt.Repeat == nil:
		return time.Time{}, false, nil
	default:
		next, err = occurrenceAfter(base, now, tt.Repeat, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		if next.IsZero() {
			return time.Time{}, false, nil
		}
		if !next.After(now) {
			return time.Time{}, false, fmt.Errorf("%w: repeat out of range", reminder.ErrUnsupportedTrigger)
		}
	}
	return quiethours.Apply(next, r.QuietHours, loc), true, nil
}

// PinTimezone records name as the trigger zone when the trigger has none, so
// later plans do not drift with the host zone. It reports whether r changed.
func PinTimezone(r *reminder.Reminder, name string) bool {
	tt, ok := r.Trigger.(reminder.TimeTrigger)
	if !ok || strings.TrimSpace(tt.Timezone) != "" || name == "" {
		return false
	}
	tt.Timezone = name
	r.Trigger = tt
	return true
}

// occurrenceAfter returns the smallest occurrence of base under rp that is
// strictly after now. base is known to be at or before now.
func occurrenceAfter(base, now time.Time, rp reminder.Repeat, loc *time.Location) (time.Time, error) {
	switch v := rp.(type) {
	case reminder.IntervalRepeat:
		if v.Minutes <= 0 {
			return time.Time{}, fmt.Errorf("interval repeat needs minutes > 0, got %d", v.Minutes)
		}
		if int64(v.Minutes) > maxIntervalMinutes {
			return time.Time{}, fmt.Errorf("%w: interval of %d minutes is too large", reminder.ErrUnsupportedTrigger, v.Minutes)
		}
		step := time.Duration(v.Minutes) * time.Minute
		elapsed := now.Sub(base)
		n := elapsed / step
		// step*(n+1) exceeds elapsed by at most one step
		if step > math.MaxInt64-elapsed {
			return time.Time{}, fmt.Errorf("%w: interval of %d minutes is too large", reminder.ErrUnsupportedTrigger, v.Minutes)
		}
		return base.Add(step * (n + 1)), nil
	case reminder.DailyRepeat:
		if err := checkCalendar(v.Interval); err != nil {
			return time.Time{}, err
		}
		return walkDays(base, now, reminder.Every(v.Interval), loc), nil
	case reminder.WeeklyRepeat:
		if err := checkCalendar(v.Interval); err != nil {
			return time.Time{}, err
		}
		return walkDays(base, now, 7*reminder.Every(v.Interval), loc), nil
	case reminder.MonthlyRepeat:
		if err := checkCalendar(v.Interval); err != nil {
			return time.Time{}, err
		}
		return walkMonths(base, now, reminder.Every(v.Interval), loc), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported repeat %T", rp)
	}
}

func checkCalendar(interval int) error {
	if interval > maxCalendarInterval {
		return fmt.Errorf("%w: repeat interval %d exceeds %d", reminder.ErrUnsupportedTrigger, interval, maxCalendarInterval)
	}
	return nil
}

// walkDays keeps the local wall clock of base and steps by days, so DST
// changes shift the UTC instant rather than the local hour.
func walkDays(base, now time.Time, days int, loc *time.Location) time.Time {
	b := base.In(loc)
	at := func(k int) time.Time {
		return timeconv.Date(loc, b.Year(), b.Month(), b.Day()+k*days, b.Hour(), b.Minute(), b.Second(), b.Nanosecond())
	}
	elapsed := int(now.Sub(base).Hours() / 24)
	k := elapsed / days
	if k > 0 {
		k-- // DST can stretch a day; start one step early
	}
	for i := 0; i < maxSteps; i++ {
		if c := at(k); c.After(now) {
			return c.UTC()
		}
		k++
	}
	return time.Time{}
}

// walkMonths steps by calendar months, clamping the day to the month
// length. Each candidate is derived from base so a clamp never carries over.
func walkMonths(base, now time.Time, months int, loc *time.Location) time.Time {
	b := base.In(loc)
	at := func(k int) time.Time {
		y, m := addMonths(b.Year(), b.Month(), k*months)
		d := b.Day()
		if last := daysIn(y, m); d > last {
			d = last
		}
		return timeconv.Date(loc, y, m, d, b.Hour(), b.Minute(), b.Second(), b.Nanosecond())
	}
	n := now.In(loc)
	elapsed := (n.Year()-b.Year())*12 + int(n.Month()-b.Month())
	k := elapsed / months
	if k > 0 {
		k--
	}
	for i := 0; i < maxSteps; i++ {
		if c := at(k); c.After(now) {
			return c.UTC()
		}
		k++
	}
	return time.Time{}
}

func addMonths(y int, m time.Month, n int) (int, time.Month) {
	idx := int(m-1) + n
	y += idx / 12
	idx %= 12
	if idx < 0 {
		idx += 12
		y--
	}
	return y, time.Month(idx + 1)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
