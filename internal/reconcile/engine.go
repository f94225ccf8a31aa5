// Package reconcile keeps the notification backend in step with the
// reminders document. It is the only writer of that document.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/planner"
	"remindd/internal/reminder"
	rtsup "remindd/internal/runtime/supervisor"
	"remindd/internal/storage"
	"remindd/internal/timeconv"
	logx "remindd/pkg/logx"
)

var ErrNotOpen = errors.New("engine not open")

type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocalZone replaces the host zone name used to pin triggers.
func WithLocalZone(name func() string) Option {
	return func(e *Engine) { e.localZone = name }
}

// Engine owns the in-memory document. One mutex serializes passes and
// user operations; adapter calls happen with it held.
type Engine struct {
	cfgMu sync.RWMutex
	cfg   Config

	store   storage.Gateway
	adapter notify.Adapter
	log     logx.Logger
	bus     eventbus.Bus

	now       func() time.Time
	localZone func() string

	mu         sync.Mutex
	doc        *reminder.File
	dirty      bool // last save failed
	forceAll   bool // first pass after Open reschedules everything
	permission notify.Permission
	orphans    []string // handles of deleted reminders whose cancel failed
	last       *Report
	active     string

	runMu   sync.Mutex
	sup     *rtsup.Supervisor
	cron    *cron.Cron
	cronID  cron.EntryID
	kick    chan string
	inbox   chan notify.Interaction
	cleanup []func()
}

func New(cfg Config, store storage.Gateway, adapter notify.Adapter, log logx.Logger, bus eventbus.Bus, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	e := &Engine{
		cfg:        cfg.withDefaults(),
		store:      store,
		adapter:    adapter,
		log:        log.With(logx.String("comp", "reconcile")),
		bus:        bus,
		now:        time.Now,
		localZone:  timeconv.LocalName,
		permission: notify.PermissionUnknown,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Apply swaps in new settings. A changed interval re-arms the periodic pass.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfgMu.Lock()
	old := e.cfg
	cfg.Platform = old.Platform // the bookkeeping key is fixed for the process lifetime
	e.cfg = cfg
	e.cfgMu.Unlock()

	if cfg.Interval != old.Interval {
		e.runMu.Lock()
		if e.cron != nil {
			e.cron.Remove(e.cronID)
			e.cronID = e.cron.Schedule(cron.Every(cfg.Interval), cron.FuncJob(func() { e.RunNow("periodic") }))
		}
		e.runMu.Unlock()
		e.log.Info("reconcile interval changed", logx.Duration("from", old.Interval), logx.Duration("to", cfg.Interval))
	}
}

// Open loads the document, pins unset trigger zones and runs the load pass.
func (e *Engine) Open(ctx context.Context) (Report, error) {
	f, err := e.store.Load(ctx)
	var rec *storage.Recovered
	switch {
	case errors.As(err, &rec):
		e.log.Warn("reminders document recovered", logx.Err(err))
		e.bus.Publish(eventbus.Event{Type: eventbus.DocumentRecovered, Data: rec})
	case err != nil:
		return Report{}, fmt.Errorf("load reminders: %w", err)
	}
	if f == nil {
		f = reminder.EmptyFile()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = f
	e.forceAll = true
	e.dirty = rec != nil
	zone := e.localZone()
	for i := range e.doc.Reminders {
		if planner.PinTimezone(&e.doc.Reminders[i], zone) {
			e.dirty = true
		}
	}
	e.log.Info("reminders loaded", logx.Int("count", len(e.doc.Reminders)))
	return e.passLocked(ctx, "load")
}

// Start launches periodic passes, the run-now loop and the interaction
// consumer. Open must have been called.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.sup != nil {
		return
	}
	cfg := e.config()
	e.sup = rtsup.New(ctx, rtsup.WithLogger(e.log), rtsup.WithCancelOnError(false))
	e.kick = make(chan string, 1)
	e.inbox = make(chan notify.Interaction, 64)
	kick, inbox := e.kick, e.inbox

	e.sup.GoRestart0("reconcile.loop", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case reason := <-kick:
				if _, err := e.reconcile(c, reason); err != nil && !errors.Is(err, context.Canceled) {
					e.log.Warn("reconcile pass failed", logx.String("reason", reason), logx.Err(err))
				}
			}
		}
	}, rtsup.WithPublishFirstError(true))

	e.sup.GoRestart0("reconcile.interactions", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case in := <-inbox:
				if err := e.HandleInteraction(c, in); err != nil {
					e.log.Warn("interaction failed", logx.String("id", in.ReminderID), logx.String("action", string(in.Action)), logx.Err(err))
				}
			}
		}
	})

	e.cleanup = append(e.cleanup, e.adapter.OnInteraction(func(in notify.Interaction) {
		select {
		case inbox <- in:
		default:
			e.log.Warn("interaction dropped", logx.String("id", in.ReminderID))
		}
	}))

	// A delivered handle means a reminder just became due.
	events, unsub := e.bus.Subscribe(32)
	e.cleanup = append(e.cleanup, unsub)
	e.sup.Go0("reconcile.deliveries", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type == eventbus.NotifySent {
					e.RunNow("delivered")
				}
			}
		}
	})

	e.cron = cron.New(cron.WithLocation(time.UTC))
	e.cronID = e.cron.Schedule(cron.Every(cfg.Interval), cron.FuncJob(func() { e.RunNow("periodic") }))
	e.cron.Start()
	e.log.Info("engine started", logx.Duration("interval", cfg.Interval))
}

// Stop halts background work. Pending handles stay with the adapter.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	sup, c, cleanup := e.sup, e.cron, e.cleanup
	e.sup, e.cron, e.cleanup = nil, nil, nil
	e.runMu.Unlock()
	if sup == nil {
		return nil
	}
	for _, fn := range cleanup {
		fn()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	err := sup.Stop(ctx)
	e.log.Info("engine stopped")
	return err
}

// RunNow requests a pass without waiting. Requests coalesce while one is
// pending. It serves host focus and visibility triggers.
func (e *Engine) RunNow(reason string) {
	e.runMu.Lock()
	kick := e.kick
	e.runMu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- reason:
	default:
	}
}

// Reconcile runs one pass and waits for it.
func (e *Engine) Reconcile(ctx context.Context) (Report, error) {
	return e.reconcile(ctx, "manual")
}

func (e *Engine) reconcile(ctx context.Context, reason string) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return Report{}, ErrNotOpen
	}
	return e.passLocked(ctx, reason)
}

// Supervisor exposes the background supervisor for debug output.
func (e *Engine) Supervisor() *rtsup.Supervisor {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.sup
}
