package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/planner"
	"remindd/internal/quiethours"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// validate rejects reminders whose trigger or quiet hours cannot be planned.
func validate(r reminder.Reminder, now time.Time) error {
	if _, _, err := quiethours.Parse(r.QuietHours); err != nil {
		return err
	}
	if _, _, err := planner.Next(r, now); err != nil {
		return err
	}
	return nil
}

// Create adds a reminder and schedules it. A one-shot already in the past
// is accepted and recorded as missed by the pass.
func (e *Engine) Create(ctx context.Context, d reminder.Draft) (reminder.Reminder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return reminder.Reminder{}, ErrNotOpen
	}
	now := e.now()
	r, err := reminder.New(d, now)
	if err != nil {
		return reminder.Reminder{}, err
	}
	planner.PinTimezone(&r, e.localZone())
	if err := validate(r, now); err != nil {
		return reminder.Reminder{}, err
	}
	e.doc.Reminders = append(e.doc.Reminders, r)
	e.dirty = true
	e.publish(eventbus.ReminderCreated, &r, nil)
	e.log.Info("reminder created", logx.String("id", r.ID), logx.String("title", r.Title))

	_, err = e.passLocked(ctx, "create")
	return e.getLocked(r.ID), err
}

// Update applies p. Trigger or quiet-hours edits clear any schedule error
// and force replanning.
func (e *Engine) Update(ctx context.Context, id string, p Patch) (reminder.Reminder, error) {
	return e.mutate(ctx, id, "update", eventbus.ReminderUpdated, func(r *reminder.Reminder, now time.Time) error {
		cand := r.Clone()
		if p.Title != nil {
			if strings.TrimSpace(*p.Title) == "" {
				return fmt.Errorf("title required")
			}
			cand.Title = *p.Title
		}
		if p.Body != nil {
			cand.Body = *p.Body
		}
		if p.Target != nil {
			cand.Target = *p.Target
		}
		if p.Priority != nil {
			cand.Priority = *p.Priority
		}
		switch {
		case p.ClearQuietHours:
			cand.QuietHours = nil
		case p.QuietHours != nil:
			qh := *p.QuietHours
			cand.QuietHours = &qh
		}
		if p.reschedules() {
			trig := cand.Trigger
			if p.Trigger != nil {
				trig = p.Trigger
			}
			if err := cand.SetTrigger(now, trig); err != nil {
				return err
			}
			planner.PinTimezone(&cand, e.localZone())
			if err := validate(cand, now); err != nil {
				return err
			}
		}
		if p.Title != nil || p.Body != nil || p.Target != nil || p.Priority != nil {
			// pending deliveries carry the old content
			platform := e.config().Platform
			rec := cand.Record(platform)
			rec.FireAt = nil
			cand.SetRecord(platform, rec)
		}
		cand.UpdatedAt = now.UTC()
		*r = cand
		return nil
	})
}

// Delete removes a reminder and withdraws its handles. Handles whose
// cancel fails are retried on later passes.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return ErrNotOpen
	}
	i := e.doc.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	r := e.doc.Reminders[i]
	e.doc.Reminders = append(e.doc.Reminders[:i], e.doc.Reminders[i+1:]...)
	e.dirty = true

	rec := r.Record(e.config().Platform)
	if ids := append(append([]string(nil), rec.ScheduledIDs...), rec.StaleIDs...); len(ids) > 0 {
		actx, cancel := context.WithTimeout(ctx, e.config().AdapterTimeout)
		err := e.adapter.Cancel(actx, ids)
		cancel()
		if err != nil {
			e.orphans = append(e.orphans, ids...)
			e.log.Warn("cancel failed for deleted reminder", logx.String("id", id), logx.Err(err))
			e.publish(eventbus.ReminderCancelFailed, &r, err)
		}
	}
	e.publish(eventbus.ReminderDeleted, &r, nil)
	e.log.Info("reminder deleted", logx.String("id", id))

	_, err := e.passLocked(ctx, "delete")
	return err
}

// Snooze defers a reminder by d. d <= 0 uses the configured snooze.
func (e *Engine) Snooze(ctx context.Context, id string, d time.Duration) (reminder.Reminder, error) {
	if d <= 0 {
		d = e.config().Snooze
	}
	return e.mutate(ctx, id, "snooze", eventbus.ReminderSnoozed, func(r *reminder.Reminder, now time.Time) error {
		return r.Snooze(now, d)
	})
}

// Complete satisfies the current occurrence. Repeating reminders move on to
// their next occurrence.
func (e *Engine) Complete(ctx context.Context, id string) (reminder.Reminder, error) {
	return e.mutate(ctx, id, "complete", eventbus.ReminderCompleted, func(r *reminder.Reminder, now time.Time) error {
		return r.Complete(now, planner.Next)
	})
}

func (e *Engine) Dismiss(ctx context.Context, id string) (reminder.Reminder, error) {
	return e.mutate(ctx, id, "dismiss", eventbus.ReminderDismissed, func(r *reminder.Reminder, now time.Time) error {
		return r.Dismiss(now)
	})
}

// OpenReminder marks id as the reminder the user is looking at. The
// document is not modified.
func (e *Engine) OpenReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Reminder{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return reminder.Reminder{}, ErrNotOpen
	}
	i := e.doc.Index(id)
	if i < 0 {
		return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	e.active = id
	r := e.doc.Reminders[i].Clone()
	e.publish(eventbus.ReminderOpened, &r, nil)
	return r, nil
}

// ActiveID returns the id last opened, if any.
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// HandleInteraction maps a notification action to a user operation.
func (e *Engine) HandleInteraction(ctx context.Context, in notify.Interaction) error {
	var err error
	switch in.Action {
	case notify.ActionOpen:
		_, err = e.OpenReminder(ctx, in.ReminderID)
	case notify.ActionSnooze:
		_, err = e.Snooze(ctx, in.ReminderID, e.config().Snooze)
	case notify.ActionDone:
		_, err = e.Complete(ctx, in.ReminderID)
	default:
		err = fmt.Errorf("unknown action %q", in.Action)
	}
	return err
}

func (e *Engine) mutate(ctx context.Context, id, reason, event string, fn func(r *reminder.Reminder, now time.Time) error) (reminder.Reminder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return reminder.Reminder{}, ErrNotOpen
	}
	i := e.doc.Index(id)
	if i < 0 {
		return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	r := &e.doc.Reminders[i]
	if err := fn(r, e.now()); err != nil {
		return r.Clone(), err
	}
	e.dirty = true
	e.publish(event, r, nil)
	e.log.Info("reminder "+reason, logx.String("id", id), logx.String("status", string(r.Status)))

	_, err := e.passLocked(ctx, reason)
	return e.getLocked(id), err
}

// List returns a copy of every reminder in document order.
func (e *Engine) List() []reminder.Reminder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	out := make([]reminder.Reminder, len(e.doc.Reminders))
	for i := range e.doc.Reminders {
		out[i] = e.doc.Reminders[i].Clone()
	}
	return out
}

func (e *Engine) Get(id string) (reminder.Reminder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc.Index(id) < 0 {
		return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	return e.getLocked(id), nil
}

func (e *Engine) getLocked(id string) reminder.Reminder {
	i := e.doc.Index(id)
	if i < 0 {
		return reminder.Reminder{}
	}
	return e.doc.Reminders[i].Clone()
}

// Debug reports the document together with what the backend holds.
func (e *Engine) Debug(ctx context.Context) (DebugInfo, error) {
	info := DebugInfo{Reminders: e.List(), Capabilities: e.adapter.Capabilities()}
	e.mu.Lock()
	info.Orphans = append([]string(nil), e.orphans...)
	if e.last != nil {
		rep := *e.last
		info.LastReport = &rep
	}
	e.mu.Unlock()
	if sup := e.Supervisor(); sup != nil {
		info.Tasks = sup.Stats()
	}

	if l, ok := e.adapter.(notify.Lister); ok && info.Capabilities.ListScheduled {
		actx, cancel := context.WithTimeout(ctx, e.config().AdapterTimeout)
		defer cancel()
		list, err := l.ListScheduled(actx)
		if err != nil {
			return info, fmt.Errorf("list scheduled: %w", err)
		}
		info.Scheduled = list
	}
	return info, nil
}

// CancelAll withdraws every handle the document knows about. Reminders keep
// their status, so the next pass schedules them again.
func (e *Engine) CancelAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return ErrNotOpen
	}
	cfg := e.config()
	ids := append([]string(nil), e.orphans...)
	for i := range e.doc.Reminders {
		r := &e.doc.Reminders[i]
		rec := r.Record(cfg.Platform)
		ids = append(ids, rec.ScheduledIDs...)
		ids = append(ids, rec.StaleIDs...)
		if len(rec.ScheduledIDs) > 0 || len(rec.StaleIDs) > 0 || rec.FireAt != nil {
			r.SetRecord(cfg.Platform, reminder.PlatformRecord{})
			e.dirty = true
		}
	}
	if len(ids) == 0 {
		return nil
	}
	actx, cancel := context.WithTimeout(ctx, cfg.AdapterTimeout)
	defer cancel()
	if err := e.adapter.Cancel(actx, ids); err != nil {
		e.orphans = ids
		return fmt.Errorf("%w: %w", reminder.ErrAdapterCancelFailed, err)
	}
	e.orphans = nil
	e.log.Info("all handles cancelled", logx.Int("count", len(ids)))
	if err := e.store.Save(ctx, e.doc); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	e.dirty = false
	return nil
}
