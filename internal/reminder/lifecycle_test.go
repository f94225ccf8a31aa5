package reminder

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC)

func newTestReminder(t *testing.T, trig Trigger) Reminder {
	t.Helper()
	r, err := New(Draft{Title: "water plants", Trigger: trig}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func hourLater(_ Reminder, now time.Time) (time.Time, bool, error) {
	return now.Add(time.Hour), true, nil
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{At: "2023-10-27T12:00:00", Timezone: "UTC"})
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Status != StatusScheduled {
		t.Fatalf("status = %s, want scheduled", r.Status)
	}
	if r.Priority != PriorityNormal || r.Target.Type != TargetNote {
		t.Fatalf("defaults not applied: %+v", r)
	}
	other := newTestReminder(t, TimeTrigger{At: "2023-10-27T12:00:00", Timezone: "UTC"})
	if other.ID == r.ID {
		t.Fatal("ids must not repeat")
	}
	if _, err := New(Draft{Title: "x"}, t0); !errors.Is(err, ErrUnsupportedTrigger) {
		t.Fatalf("missing trigger err = %v", err)
	}
}

func TestCompleteTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		trig       Trigger
		next       NextFunc
		wantStatus Status
		wantNext   bool
	}{
		{name: "one-shot", trig: TimeTrigger{At: "2023-10-27T09:00:00", Timezone: "UTC"}, next: hourLater, wantStatus: StatusDone},
		{name: "repeating", trig: TimeTrigger{At: "2023-10-27T09:00:00", Timezone: "UTC", Repeat: DailyRepeat{Interval: 1}}, next: hourLater, wantStatus: StatusScheduled, wantNext: true},
		{
			name: "repeating exhausted",
			trig: TimeTrigger{At: "2023-10-27T09:00:00", Timezone: "UTC", Repeat: DailyRepeat{Interval: 1}},
			next: func(Reminder, time.Time) (time.Time, bool, error) {
				return time.Time{}, false, nil
			},
			wantStatus: StatusDone,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestReminder(t, tt.trig)
			now := t0.Add(3 * time.Hour)
			if err := r.Complete(now, tt.next); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if r.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", r.Status, tt.wantStatus)
			}
			if tt.wantNext {
				if r.NextFireAt == nil || !r.NextFireAt.After(now) {
					t.Fatalf("nextFireAt = %v, want after %v", r.NextFireAt, now)
				}
				if r.LastFiredAt == nil || !r.LastFiredAt.Equal(now) {
					t.Fatalf("lastFiredAt = %v, want %v", r.LastFiredAt, now)
				}
			} else if r.NextFireAt != nil {
				t.Fatalf("nextFireAt = %v, want nil", r.NextFireAt)
			}
		})
	}
}

func TestSnoozeAndTerminalStates(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{At: "2023-10-27T12:00:00", Timezone: "UTC"})

	if err := r.Snooze(t0, 10*time.Minute); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if r.Status != StatusSnoozed || !r.NextFireAt.Equal(t0.Add(10*time.Minute)) {
		t.Fatalf("after snooze: status=%s next=%v", r.Status, r.NextFireAt)
	}
	if err := r.Snooze(t0, 0); err == nil {
		t.Fatal("expected error for zero snooze")
	}

	if err := r.Dismiss(t0); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	for name, op := range map[string]func() error{
		"snooze":   func() error { return r.Snooze(t0, time.Minute) },
		"complete": func() error { return r.Complete(t0, hourLater) },
		"dismiss":  func() error { return r.Dismiss(t0) },
		"fire":     func() error { return r.MarkFired(t0, t0) },
	} {
		if err := op(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s on dismissed: err = %v, want ErrInvalidTransition", name, err)
		}
	}
}

func TestSetTriggerReturnsToScheduled(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{At: "2023-10-27T12:00:00", Timezone: "UTC"})
	if err := r.MarkFired(t0, t0); err != nil {
		t.Fatalf("MarkFired: %v", err)
	}
	r.ScheduleError = "bad zone"
	if err := r.SetTrigger(t0, TimeTrigger{At: "2023-10-28T12:00:00", Timezone: "UTC"}); err != nil {
		t.Fatalf("SetTrigger: %v", err)
	}
	if r.Status != StatusScheduled || r.NextFireAt != nil || r.ScheduleError != "" {
		t.Fatalf("after edit: %+v", r)
	}

	r.Status = StatusDismissed
	if err := r.SetTrigger(t0, TimeTrigger{At: "2023-10-29T12:00:00", Timezone: "UTC"}); err != nil {
		t.Fatalf("SetTrigger on dismissed: %v", err)
	}
	if r.Status != StatusDismissed {
		t.Fatalf("dismissed reminder changed status to %s", r.Status)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	if !CanTransition(StatusScheduled, StatusFired) {
		t.Fatal("scheduled -> fired must be allowed")
	}
	if CanTransition(StatusDismissed, StatusScheduled) {
		t.Fatal("dismissed is terminal")
	}
	if CanTransition(StatusDone, StatusFired) {
		t.Fatal("done -> fired must be rejected")
	}
}

func TestAdvanceResumesSnoozed(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{At: "2023-10-27T09:00:00", Timezone: "UTC", Repeat: DailyRepeat{Interval: 1}})
	if err := r.Snooze(t0, 10*time.Minute); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	at := t0.Add(10 * time.Minute)
	next := t0.Add(23 * time.Hour)
	if err := r.Advance(at, at, next); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if r.Status != StatusScheduled || !r.NextFireAt.Equal(next) || !r.LastFiredAt.Equal(at) {
		t.Fatalf("unexpected reminder after advance: %+v", r)
	}
	if err := r.Dismiss(at); err != nil {
		t.Fatal(err)
	}
	if err := r.Advance(at, at, next); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from dismissed: %v", err)
	}
}
