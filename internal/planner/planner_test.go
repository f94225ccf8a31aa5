package planner

import (
	"errors"
	"testing"
	"time"

	"remindd/internal/reminder"
)

func mk(at, tz string, rp reminder.Repeat) reminder.Reminder {
	return reminder.Reminder{
		ID:      "r1",
		Title:   "test",
		Status:  reminder.StatusScheduled,
		Trigger: reminder.TimeTrigger{At: at, Timezone: tz, Repeat: rp},
	}
}

func utc(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		r      reminder.Reminder
		now    time.Time
		want   time.Time
		wantOK bool
	}{
		{
			name: "one-shot future", r: mk("2023-10-27T12:00:00", "UTC", nil),
			now: utc(2023, 10, 27, 10, 0), want: utc(2023, 10, 27, 12, 0), wantOK: true,
		},
		{
			name: "one-shot past", r: mk("2023-10-27T08:00:00", "UTC", nil),
			now: utc(2023, 10, 27, 10, 0), wantOK: false,
		},
		{
			name: "one-shot exactly now", r: mk("2023-10-27T10:00:00", "UTC", nil),
			now: utc(2023, 10, 27, 10, 0), wantOK: false,
		},
		{
			name: "interval closed form", r: mk("2023-10-27T08:00:00", "UTC", reminder.IntervalRepeat{Minutes: 60}),
			now: utc(2023, 10, 27, 10, 15), want: utc(2023, 10, 27, 11, 0), wantOK: true,
		},
		{
			name: "interval on boundary", r: mk("2023-10-27T08:00:00", "UTC", reminder.IntervalRepeat{Minutes: 60}),
			now: utc(2023, 10, 27, 11, 0), want: utc(2023, 10, 27, 12, 0), wantOK: true,
		},
		{
			name: "repeat with future base", r: mk("2023-10-28T08:00:00", "UTC", reminder.DailyRepeat{Interval: 1}),
			now: utc(2023, 10, 27, 10, 0), want: utc(2023, 10, 28, 8, 0), wantOK: true,
		},
		{
			name: "daily keeps wall clock over dst", r: mk("2024-03-09T09:00:00", "America/Toronto", reminder.DailyRepeat{Interval: 1}),
			now: utc(2024, 3, 9, 15, 0), want: utc(2024, 3, 10, 13, 0), wantOK: true,
		},
		{
			name: "daily every third day", r: mk("2023-10-01T07:30:00", "UTC", reminder.DailyRepeat{Interval: 3}),
			now: utc(2023, 10, 27, 10, 0), want: utc(2023, 10, 28, 7, 30), wantOK: true,
		},
		{
			name: "weekly every other week", r: mk("2023-10-02T08:00:00", "UTC", reminder.WeeklyRepeat{Interval: 2}),
			now: utc(2023, 10, 20, 0, 0), want: utc(2023, 10, 30, 8, 0), wantOK: true,
		},
		{
			name: "monthly clamps to leap february", r: mk("2024-01-31T09:00:00", "UTC", reminder.MonthlyRepeat{Interval: 1}),
			now: utc(2024, 2, 10, 0, 0), want: utc(2024, 2, 29, 9, 0), wantOK: true,
		},
		{
			name: "monthly clamp does not carry", r: mk("2024-01-31T09:00:00", "UTC", reminder.MonthlyRepeat{Interval: 1}),
			now: utc(2024, 3, 1, 0, 0), want: utc(2024, 3, 31, 9, 0), wantOK: true,
		},
		{
			name: "monthly across year", r: mk("2023-11-15T09:00:00", "UTC", reminder.MonthlyRepeat{Interval: 2}),
			now: utc(2024, 1, 15, 9, 0), want: utc(2024, 3, 15, 9, 0), wantOK: true,
		},
		{
			name: "quiet hours defer", r: func() reminder.Reminder {
				r := mk("2023-10-27T23:00:00", "UTC", nil)
				r.QuietHours = &reminder.QuietHours{Enabled: true, StartLocal: "22:00", EndLocal: "07:00"}
				return r
			}(),
			now: utc(2023, 10, 27, 10, 0), want: utc(2023, 10, 28, 7, 0), wantOK: true,
		},
		{
			name: "quiet hours outside window", r: func() reminder.Reminder {
				r := mk("2023-10-27T20:00:00", "UTC", nil)
				r.QuietHours = &reminder.QuietHours{Enabled: true, StartLocal: "22:00", EndLocal: "07:00"}
				return r
			}(),
			now: utc(2023, 10, 27, 10, 0), want: utc(2023, 10, 27, 20, 0), wantOK: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := Next(tt.r, tt.now)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (got %s)", ok, tt.wantOK, got)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("Next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNextErrors(t *testing.T) {
	t.Parallel()
	now := utc(2023, 10, 27, 10, 0)
	if _, _, err := Next(mk("2023-10-27T12:00:00", "Nowhere/Land", nil), now); !errors.Is(err, reminder.ErrInvalidTimezone) {
		t.Fatalf("bad zone err = %v", err)
	}
	if _, _, err := Next(mk("soon", "UTC", nil), now); !errors.Is(err, reminder.ErrInvalidTriggerTime) {
		t.Fatalf("bad time err = %v", err)
	}
	if _, _, err := Next(mk("2023-10-27T08:00:00", "UTC", reminder.IntervalRepeat{}), now); err == nil {
		t.Fatal("expected error for zero-minute interval")
	}
	oversized := []reminder.Repeat{
		reminder.IntervalRepeat{Minutes: 200_000_000},
		reminder.IntervalRepeat{Minutes: 1 << 53},
		reminder.DailyRepeat{Interval: 1 << 40},
		reminder.WeeklyRepeat{Interval: 1 << 60},
		reminder.MonthlyRepeat{Interval: 1 << 50},
	}
	for _, rp := range oversized {
		got, ok, err := Next(mk("2023-10-27T08:00:00", "UTC", rp), utc(2023, 10, 27, 10, 15))
		if !errors.Is(err, reminder.ErrUnsupportedTrigger) {
			t.Fatalf("%#v: got=%s ok=%v err=%v, want ErrUnsupportedTrigger", rp, got, ok, err)
		}
	}
	loc := reminder.Reminder{Trigger: reminder.LocationTrigger{Lat: 1, Lon: 2, RadiusM: 50, On: "enter"}}
	if _, _, err := Next(loc, now); !errors.Is(err, reminder.ErrUnsupportedTrigger) {
		t.Fatalf("location err = %v", err)
	}
}

// Every repeating plan lands strictly after now and is stable when asked again.
func TestNextIsFutureAndStable(t *testing.T) {
	t.Parallel()
	repeats := []reminder.Repeat{
		reminder.IntervalRepeat{Minutes: 45},
		reminder.DailyRepeat{Interval: 1},
		reminder.WeeklyRepeat{Interval: 3},
		reminder.MonthlyRepeat{Interval: 1},
	}
	zones := []string{"UTC", "America/New_York", "Europe/Berlin", "Australia/Lord_Howe"}
	start := utc(2024, 1, 1, 0, 0)
	for _, tz := range zones {
		for _, rp := range repeats {
			r := mk("2023-12-31T02:30:00", tz, rp)
			for i := 0; i < 400; i++ {
				now := start.Add(time.Duration(i) * 23 * time.Hour)
				got, ok, err := Next(r, now)
				if err != nil || !ok {
					t.Fatalf("%s %T at %s: ok=%v err=%v", tz, rp, now, ok, err)
				}
				if !got.After(now) {
					t.Fatalf("%s %T at %s: next %s not in the future", tz, rp, now, got)
				}
				again, _, _ := Next(r, now)
				if !again.Equal(got) {
					t.Fatalf("%s %T: unstable plan %s vs %s", tz, rp, got, again)
				}
			}
		}
	}
}

func TestPinTimezone(t *testing.T) {
	t.Parallel()
	r := mk("2023-10-27T12:00:00", "", nil)
	if !PinTimezone(&r, "Europe/Berlin") {
		t.Fatal("expected empty zone to be pinned")
	}
	if tz := r.Trigger.(reminder.TimeTrigger).Timezone; tz != "Europe/Berlin" {
		t.Fatalf("timezone = %q", tz)
	}
	if PinTimezone(&r, "Asia/Tokyo") {
		t.Fatal("pinned zone must not change")
	}
}
