package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NextFunc computes the next fire instant of r strictly after now.
// ok=false means the trigger has no future occurrence.
type NextFunc func(r Reminder, now time.Time) (next time.Time, ok bool, err error)

// Draft carries the user-supplied fields of a new reminder.
type Draft struct {
	Title      string
	Body       string
	Target     Target
	Trigger    Trigger
	Priority   Priority
	QuietHours *QuietHours
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusScheduled, StatusFired, StatusSnoozed, StatusDone, StatusDismissed},
	StatusSnoozed:   {StatusScheduled, StatusFired, StatusSnoozed, StatusDone, StatusDismissed},
	StatusFired:     {StatusScheduled, StatusSnoozed, StatusDone, StatusDismissed},
	StatusDone:      {StatusScheduled},
	StatusDismissed: {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s never schedules again on its own.
func IsTerminal(s Status) bool { return s == StatusDone || s == StatusDismissed }

// New builds a scheduled reminder with a fresh id. The caller plans nextFireAt.
func New(d Draft, now time.Time) (Reminder, error) {
	if strings.TrimSpace(d.Title) == "" {
		return Reminder{}, errors.New("title required")
	}
	if d.Trigger == nil {
		return Reminder{}, fmt.Errorf("%w: missing trigger", ErrUnsupportedTrigger)
	}
	if d.Target.Type == "" {
		d.Target.Type = TargetNote
	}
	if d.Priority == "" {
		d.Priority = PriorityNormal
	}
	now = now.UTC()
	return Reminder{
		ID:         uuid.NewString(),
		Title:      d.Title,
		Body:       d.Body,
		Target:     d.Target,
		Trigger:    cloneTrigger(d.Trigger),
		Priority:   d.Priority,
		QuietHours: d.QuietHours,
		Status:     StatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *Reminder) transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now.UTC()
	return nil
}

// MarkFired records that the reminder was delivered (or missed) at.
func (r *Reminder) MarkFired(now, at time.Time) error {
	if r.Status != StatusScheduled && r.Status != StatusSnoozed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusFired)
	}
	if err := r.transition(StatusFired, now); err != nil {
		return err
	}
	r.LastFiredAt = TimePtr(at)
	r.NextFireAt = nil
	return nil
}

// Snooze defers the reminder to now+d regardless of its trigger.
func (r *Reminder) Snooze(now time.Time, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("snooze duration must be > 0, got %s", d)
	}
	if IsTerminal(r.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusSnoozed)
	}
	if err := r.transition(StatusSnoozed, now); err != nil {
		return err
	}
	r.NextFireAt = TimePtr(now.Add(d))
	return nil
}

// Complete satisfies the current occurrence. Repeating reminders start the
// next cycle from now; others, or repeats with no future occurrence, end as done.
func (r *Reminder) Complete(now time.Time, next NextFunc) error {
	if IsTerminal(r.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusDone)
	}
	if r.IsRepeating() && next != nil {
		at, ok, err := next(*r, now)
		if err == nil && ok {
			if err := r.transition(StatusScheduled, now); err != nil {
				return err
			}
			r.LastFiredAt = TimePtr(now)
			r.NextFireAt = TimePtr(at)
			return nil
		}
	}
	if err := r.transition(StatusDone, now); err != nil {
		return err
	}
	r.NextFireAt = nil
	return nil
}

// Dismiss marks the reminder seen without completing it.
func (r *Reminder) Dismiss(now time.Time) error {
	if err := r.transition(StatusDismissed, now); err != nil {
		return err
	}
	r.NextFireAt = nil
	return nil
}

// SetTrigger replaces the trigger and forces replanning. Done, fired and
// snoozed reminders return to scheduled; a dismissed reminder stays dismissed.
func (r *Reminder) SetTrigger(now time.Time, t Trigger) error {
	if t == nil {
		return fmt.Errorf("%w: missing trigger", ErrUnsupportedTrigger)
	}
	r.Trigger = cloneTrigger(t)
	r.NextFireAt = nil
	r.ScheduleError = ""
	r.UpdatedAt = now.UTC()
	switch r.Status {
	case StatusDone, StatusFired, StatusSnoozed:
		return r.transition(StatusScheduled, now)
	}
	return nil
}

// Advance records an elapsed occurrence at `at` and moves on to next.
// A snoozed reminder returns to scheduled.
func (r *Reminder) Advance(now, at, next time.Time) error {
	if r.Status != StatusScheduled && r.Status != StatusSnoozed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusScheduled)
	}
	if err := r.transition(StatusScheduled, now); err != nil {
		return err
	}
	r.LastFiredAt = TimePtr(at)
	r.NextFireAt = TimePtr(next)
	return nil
}
