// Package timer is an in-process notification backend: each handle is a
// timer, and fired handles are delivered through a rate-limited worker pool.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/reminder"
	rtsup "remindd/internal/runtime/supervisor"
	logx "remindd/pkg/logx"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery pipeline stopped")
)

// Config controls the delivery pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// interactionSource is implemented by deliverers that report user actions.
type interactionSource interface {
	SetInteractionHandler(fn func(notify.Interaction))
}

// permissionRequester is implemented by deliverers that can prompt the user.
type permissionRequester interface {
	RequestPermission(ctx context.Context) (notify.Permission, error)
}

type pending struct {
	timer *time.Timer
	ver   uint64
	msg   notify.Message
}

type job struct {
	msg notify.Message
}

// Adapter implements notify.Adapter and notify.Lister.
//
// Handles live only as long as the process. After a restart the engine
// reschedules everything, so nothing here is persisted.
type Adapter struct {
	mu sync.Mutex

	log       logx.Logger
	bus       eventbus.Bus
	deliverer notify.Deliverer

	cfg     Config
	limiter *rate.Limiter

	// handle -> pending timer; ver guards callbacks of replaced timers.
	tmu     sync.Mutex
	pending map[string]*pending
	ver     uint64

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	imu       sync.Mutex
	listeners map[uint64]func(notify.Interaction)
	lseq      uint64

	now func() time.Time
}

var (
	_ notify.Adapter = (*Adapter)(nil)
	_ notify.Lister  = (*Adapter)(nil)
)

func New(cfg Config, d notify.Deliverer, log logx.Logger, bus eventbus.Bus) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	a := &Adapter{
		log:       log.With(logx.String("comp", "notify.timer")),
		bus:       bus,
		deliverer: d,
		pending:   map[string]*pending{},
		listeners: map[uint64]func(notify.Interaction){},
		now:       time.Now,
	}
	a.applyLocked(cfg)
	if src, ok := d.(interactionSource); ok {
		src.SetInteractionHandler(a.Dispatch)
	}
	return a
}

func (a *Adapter) Apply(cfg Config) {
	a.mu.Lock()
	a.applyLocked(cfg)
	a.mu.Unlock()
}

func (a *Adapter) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	a.cfg = cfg
	// burst = rate per sec so a cluster of reminders at the same minute flows.
	a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the delivery workers. It is idempotent.
func (a *Adapter) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	if a.stopDone != nil {
		done := a.stopDone
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		a.mu.Lock()
	}
	if a.queue != nil {
		a.mu.Unlock()
		return
	}
	a.queue = make(chan job, a.cfg.QueueSize)
	a.accepting = true
	workers := a.cfg.Workers
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// delivery is best-effort; a failing worker must not stop the daemon.
		rtsup.WithCancelOnError(false),
	)
	sup, q := a.sup, a.queue
	a.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("deliver.%d", i), func(c context.Context) error {
			a.workerLoop(c, q)
			a.mu.Lock()
			stopping := a.stopDone != nil
			a.mu.Unlock()
			if stopping || c.Err() != nil {
				return context.Canceled
			}
			return errors.New("delivery worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	a.log.Info("delivery pipeline started", logx.Int("workers", workers), logx.String("deliverer", a.deliverer.Name()))
}

// Stop stops all timers, closes intake and drains queued deliveries until
// ctx ends.
func (a *Adapter) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	a.tmu.Lock()
	for id, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, id)
	}
	a.tmu.Unlock()

	a.mu.Lock()
	q, sup := a.queue, a.sup
	if q == nil {
		a.mu.Unlock()
		return
	}
	if a.stopDone != nil {
		done := a.stopDone
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	a.stopDone = done
	a.accepting = false
	a.mu.Unlock()

	go func() {
		defer close(done)
		a.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		a.mu.Lock()
		a.queue = nil
		a.sup = nil
		a.stopDone = nil
		a.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Supervisor exposes the worker supervisor for debug output (nil when stopped).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sup
}

func (a *Adapter) Capabilities() notify.Capabilities {
	_, actions := a.deliverer.(interactionSource)
	return notify.Capabilities{Time: true, Actions: actions, ListScheduled: true}
}

func (a *Adapter) Permission(ctx context.Context) (notify.Permission, error) {
	return a.deliverer.Permission(ctx)
}

func (a *Adapter) RequestPermission(ctx context.Context) (notify.Permission, error) {
	if r, ok := a.deliverer.(permissionRequester); ok {
		return r.RequestPermission(ctx)
	}
	return a.deliverer.Permission(ctx)
}

// ScheduleTime arms one timer for fireAt. A past fireAt fires immediately.
func (a *Adapter) ScheduleTime(ctx context.Context, r reminder.Reminder, fireAt time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fireAt.IsZero() {
		return nil, errors.New("fireAt required")
	}
	id := uuid.NewString()
	msg := notify.Message{
		Handle:     id,
		ReminderID: r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Priority:   r.Priority,
		Target:     r.Target,
		FireAt:     fireAt.UTC(),
		Actions:    a.Capabilities().Actions,
	}

	delay := fireAt.Sub(a.now())
	if delay < 0 {
		delay = 0
	}

	a.tmu.Lock()
	a.ver++
	ver := a.ver
	p := &pending{ver: ver, msg: msg}
	p.timer = time.AfterFunc(delay, func() { a.fire(id, ver) })
	a.pending[id] = p
	a.tmu.Unlock()

	a.log.Debug("timer armed", logx.String("handle", id), logx.String("id", r.ID), logx.Time("fire_at", msg.FireAt))
	return []string{id}, nil
}

// Cancel stops the given timers. Unknown or already-fired handles are ignored.
func (a *Adapter) Cancel(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.tmu.Lock()
	for _, id := range ids {
		if p, ok := a.pending[id]; ok {
			p.timer.Stop()
			delete(a.pending, id)
		}
	}
	a.tmu.Unlock()
	return nil
}

// ListScheduled returns pending handles ordered by fire time.
func (a *Adapter) ListScheduled(ctx context.Context) ([]notify.ScheduledInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.tmu.Lock()
	out := make([]notify.ScheduledInfo, 0, len(a.pending))
	for id, p := range a.pending {
		out = append(out, notify.ScheduledInfo{PlatformID: id, ReminderID: p.msg.ReminderID, FireAt: p.msg.FireAt, Title: p.msg.Title})
	}
	a.tmu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].PlatformID < out[j].PlatformID
	})
	return out, nil
}

func (a *Adapter) OnInteraction(fn func(notify.Interaction)) func() {
	if fn == nil {
		return func() {}
	}
	a.imu.Lock()
	a.lseq++
	id := a.lseq
	a.listeners[id] = fn
	a.imu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.imu.Lock()
			delete(a.listeners, id)
			a.imu.Unlock()
		})
	}
}

// Dispatch forwards a user action to every registered listener.
func (a *Adapter) Dispatch(in notify.Interaction) {
	a.imu.Lock()
	fns := make([]func(notify.Interaction), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.imu.Unlock()
	a.log.Debug("interaction", logx.String("id", in.ReminderID), logx.String("action", string(in.Action)))
	for _, fn := range fns {
		fn(in)
	}
}

func (a *Adapter) fire(id string, ver uint64) {
	a.tmu.Lock()
	p, ok := a.pending[id]
	if !ok || p.ver != ver {
		a.tmu.Unlock()
		return
	}
	delete(a.pending, id)
	msg := p.msg
	a.tmu.Unlock()

	if err := a.enqueue(msg); err != nil {
		a.log.Warn("delivery dropped", logx.String("handle", id), logx.String("id", msg.ReminderID), logx.Err(err))
	}
}

func (a *Adapter) enqueue(msg notify.Message) error {
	a.mu.Lock()
	if !a.accepting || a.queue == nil {
		a.mu.Unlock()
		a.publish(eventbus.NotifyDropped, msg, 0, ErrStopped)
		return ErrStopped
	}
	q := a.queue
	a.sendWG.Add(1)
	a.mu.Unlock()
	defer a.sendWG.Done()

	select {
	case q <- job{msg: msg}:
		a.publish(eventbus.NotifyQueued, msg, 0, nil)
		return nil
	default:
		a.publish(eventbus.NotifyDropped, msg, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (a *Adapter) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			a.deliverWithRetry(ctx, j)
		}
	}
}

func (a *Adapter) deliverWithRetry(ctx context.Context, j job) {
	a.mu.Lock()
	cfg, lim := a.cfg, a.limiter
	a.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := a.deliverer.Deliver(callCtx, j.msg)
		cancel()
		if err == nil {
			a.publish(eventbus.NotifySent, j.msg, attempt, nil)
			return
		}
		lastErr = err
		a.log.Debug("delivery failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	a.log.Warn("delivery failed", logx.String("id", j.msg.ReminderID), logx.Int("attempts", maxAttempts), logx.Err(lastErr))
	a.publish(eventbus.NotifyFailed, j.msg, maxAttempts, lastErr)
}

func (a *Adapter) publish(typ string, msg notify.Message, attempt int, err error) {
	now := a.now()
	ev := eventbus.DeliveryEvent{Handle: msg.Handle, ReminderID: msg.ReminderID, Attempt: attempt, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	a.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// retryDelay is the wait before attempt+1: exponential from RetryBase,
// capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
