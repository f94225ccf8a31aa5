package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/planner"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// pass is the state of one reconciliation run. e.mu is held throughout.
type pass struct {
	e       *Engine
	cfg     Config
	now     time.Time
	force   bool
	changed bool
	rep     Report
}

func (e *Engine) passLocked(ctx context.Context, reason string) (Report, error) {
	start := time.Now()
	p := &pass{
		e:     e,
		cfg:   e.config(),
		now:   e.now().UTC(),
		force: e.forceAll,
	}
	p.rep.Reason = reason
	p.rep.At = p.now
	e.forceAll = false

	p.rep.Permission = p.permission(ctx)
	p.retryStale(ctx)
	for i := range e.doc.Reminders {
		if err := ctx.Err(); err != nil {
			return p.rep, err
		}
		r := &e.doc.Reminders[i]
		switch r.Status {
		case reminder.StatusScheduled, reminder.StatusSnoozed:
			p.active(ctx, r)
		default:
			// fired, done and dismissed hold no live handles
			p.release(ctx, r)
		}
	}

	var saveErr error
	if p.changed || e.dirty {
		if saveErr = e.store.Save(ctx, e.doc); saveErr != nil {
			e.dirty = true
			e.log.Error("save reminders failed", logx.Err(saveErr))
			saveErr = fmt.Errorf("save reminders: %w", saveErr)
		} else {
			e.dirty = false
			p.rep.Saved = true
		}
	}
	p.rep.Took = time.Since(start)
	rep := p.rep
	e.last = &rep

	e.bus.Publish(eventbus.Event{Type: eventbus.ReconcileDone, Data: eventbus.ReconcileEvent{
		Reason:    reason,
		Scheduled: rep.Scheduled,
		Cancelled: rep.Cancelled,
		Changed:   rep.Saved,
		Took:      rep.Took,
	}})
	e.log.Debug("reconcile pass",
		logx.String("reason", reason),
		logx.String("permission", string(rep.Permission)),
		logx.Int("scheduled", rep.Scheduled),
		logx.Int("cancelled", rep.Cancelled),
		logx.Int("fired", rep.Fired),
		logx.Int("missed", rep.Missed),
		logx.Int("failed", rep.Failed),
		logx.Bool("saved", rep.Saved),
		logx.Duration("took", rep.Took),
	)
	return rep, saveErr
}

func (p *pass) adapterCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.AdapterTimeout)
}

// permission resolves the backend state once per pass, prompting when unknown.
func (p *pass) permission(ctx context.Context) notify.Permission {
	e := p.e
	actx, cancel := p.adapterCtx(ctx)
	defer cancel()

	perm, err := e.adapter.Permission(actx)
	if err != nil {
		e.log.Debug("permission check failed", logx.Err(err))
		perm = notify.PermissionUnknown
	}
	if perm == notify.PermissionUnknown {
		perm, err = e.adapter.RequestPermission(actx)
		if err != nil {
			e.log.Debug("permission request failed", logx.Err(err))
			perm = notify.PermissionDenied
		}
	}
	if perm != e.permission {
		if perm != notify.PermissionGranted {
			e.log.Warn("notifications not permitted, reminders stay unscheduled", logx.String("permission", string(perm)))
		} else if e.permission != notify.PermissionUnknown {
			e.log.Info("notification permission granted")
		}
		e.bus.Publish(eventbus.Event{Type: eventbus.PermissionChanged, Data: perm})
		e.permission = perm
	}
	return perm
}

// retryStale re-attempts cancellations that failed on earlier passes.
func (p *pass) retryStale(ctx context.Context) {
	e := p.e
	if len(e.orphans) > 0 {
		if err := p.cancel(ctx, e.orphans); err == nil {
			e.orphans = nil
		}
	}
	for i := range e.doc.Reminders {
		r := &e.doc.Reminders[i]
		rec := r.Record(p.cfg.Platform)
		if len(rec.StaleIDs) == 0 {
			continue
		}
		if err := p.cancel(ctx, rec.StaleIDs); err != nil {
			continue
		}
		rec.StaleIDs = nil
		r.SetRecord(p.cfg.Platform, rec)
		p.changed = true
	}
}

func (p *pass) cancel(ctx context.Context, ids []string) error {
	actx, cancel := p.adapterCtx(ctx)
	defer cancel()
	if err := p.e.adapter.Cancel(actx, ids); err != nil {
		return fmt.Errorf("%w: %w", reminder.ErrAdapterCancelFailed, err)
	}
	p.rep.Cancelled += len(ids)
	return nil
}

// release withdraws the live handles of r. Failed ids move to StaleIDs.
func (p *pass) release(ctx context.Context, r *reminder.Reminder) {
	rec := r.Record(p.cfg.Platform)
	if len(rec.ScheduledIDs) == 0 && rec.FireAt == nil {
		return
	}
	if len(rec.ScheduledIDs) > 0 {
		if err := p.cancel(ctx, rec.ScheduledIDs); err != nil {
			rec.StaleIDs = append(rec.StaleIDs, rec.ScheduledIDs...)
			p.e.log.Warn("cancel failed", logx.String("id", r.ID), logx.Strs("handles", rec.ScheduledIDs), logx.Err(err))
			p.publish(eventbus.ReminderCancelFailed, r, err)
		}
	}
	rec.ScheduledIDs = nil
	rec.FireAt = nil
	r.SetRecord(p.cfg.Platform, rec)
	p.changed = true
}

// active plans a scheduled or snoozed reminder and keeps its handles in step.
func (p *pass) active(ctx context.Context, r *reminder.Reminder) {
	if r.ScheduleError != "" {
		p.release(ctx, r)
		return
	}
	if r.NextFireAt == nil || !r.NextFireAt.After(p.now) {
		if !p.plan(r) {
			p.release(ctx, r)
			return
		}
	}
	if p.rep.Permission != notify.PermissionGranted {
		p.release(ctx, r)
		return
	}
	p.schedule(ctx, r)
}

// plan advances a due reminder. It reports whether r is still active.
func (p *pass) plan(r *reminder.Reminder) bool {
	e := p.e
	prev := r.NextFireAt
	delivered := false
	if prev != nil && !p.force {
		rec := r.Record(p.cfg.Platform)
		delivered = len(rec.ScheduledIDs) > 0 && rec.FireAt != nil && rec.FireAt.Equal(*prev)
	}

	next, ok, err := planner.Next(*r, p.now)
	if err != nil {
		r.ScheduleError = err.Error()
		r.NextFireAt = nil
		p.changed = true
		p.rep.Unschedulable++
		e.log.Warn("reminder unschedulable", logx.String("id", r.ID), logx.Err(err))
		p.publish(eventbus.ReminderUnschedulable, r, err)
		return false
	}

	if prev != nil {
		if delivered {
			p.rep.Fired++
		} else {
			p.rep.Missed++
		}
	}

	if !ok {
		at := p.now
		if prev != nil {
			at = *prev
		}
		if err := r.MarkFired(p.now, at); err != nil {
			e.log.Error("mark fired failed", logx.String("id", r.ID), logx.Err(err))
			return false
		}
		if prev == nil {
			// a one-shot already in the past when first planned
			p.rep.Missed++
		}
		p.changed = true
		p.publishOccurrence(r, delivered)
		return false
	}

	if prev != nil {
		if err := r.Advance(p.now, *prev, next); err != nil {
			e.log.Error("advance failed", logx.String("id", r.ID), logx.Err(err))
			return false
		}
		p.publishOccurrence(r, delivered)
	} else {
		r.NextFireAt = reminder.TimePtr(next)
	}
	p.changed = true
	return true
}

// schedule replaces the backend handles when the desired instant moved.
func (p *pass) schedule(ctx context.Context, r *reminder.Reminder) {
	e := p.e
	want := *r.NextFireAt
	rec := r.Record(p.cfg.Platform)
	if !p.force && len(rec.ScheduledIDs) > 0 && rec.FireAt != nil && rec.FireAt.Equal(want) {
		return
	}

	if len(rec.ScheduledIDs) > 0 {
		if err := p.cancel(ctx, rec.ScheduledIDs); err != nil {
			rec.StaleIDs = append(rec.StaleIDs, rec.ScheduledIDs...)
			e.log.Warn("cancel failed", logx.String("id", r.ID), logx.Err(err))
			p.publish(eventbus.ReminderCancelFailed, r, err)
		}
		rec.ScheduledIDs = nil
		rec.FireAt = nil
	}
	p.changed = true

	actx, cancel := p.adapterCtx(ctx)
	ids, err := e.adapter.ScheduleTime(actx, r.Clone(), want)
	cancel()
	if err == nil && len(ids) == 0 {
		err = errors.New("no handles returned")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", reminder.ErrAdapterScheduleFailed, err)
		r.SetRecord(p.cfg.Platform, rec)
		p.rep.Failed++
		e.log.Warn("schedule failed", logx.String("id", r.ID), logx.Time("fire_at", want), logx.Err(err))
		p.publish(eventbus.ReminderScheduleFailed, r, err)
		return
	}
	rec.ScheduledIDs = ids
	rec.FireAt = reminder.TimePtr(want)
	r.SetRecord(p.cfg.Platform, rec)
	p.rep.Scheduled++
	p.publish(eventbus.ReminderScheduled, r, nil)
}

func (p *pass) publishOccurrence(r *reminder.Reminder, delivered bool) {
	if delivered {
		p.publish(eventbus.ReminderFired, r, nil)
		return
	}
	p.e.log.Info("reminder missed", logx.String("id", r.ID), logx.OptTime("last_fired_at", r.LastFiredAt))
	p.publish(eventbus.ReminderMissed, r, nil)
}

func (p *pass) publish(typ string, r *reminder.Reminder, err error) {
	p.e.publish(typ, r, err)
}

func (e *Engine) publish(typ string, r *reminder.Reminder, err error) {
	ev := eventbus.ReminderEvent{
		ID:     r.ID,
		Title:  r.Title,
		Status: string(r.Status),
		FireAt: r.NextFireAt,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
