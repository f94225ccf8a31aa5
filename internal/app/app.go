package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/mcpserver"
	"remindd/internal/notify"
	"remindd/internal/notify/logsink"
	"remindd/internal/notify/telegram"
	"remindd/internal/notify/timer"
	"remindd/internal/reconcile"
	rtsup "remindd/internal/runtime/supervisor"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

// Version is set at build time.
var Version = "dev"

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Gateway

	tg      *telegram.Deliverer // nil without a token
	adapter *timer.Adapter
	engine  *reconcile.Engine
	mcp     *mcpserver.Server // nil unless enabled

	stdin  *os.File
	stdout *os.File
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Chat logging needs a sender; start without it and enable it once the
	// bot exists.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg)
	log := root.With(logx.String("comp", "app"))

	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	var (
		tg        *telegram.Deliverer
		deliverer notify.Deliverer
	)
	tc, ok, err := mapTelegramConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	if ok {
		tg, err = telegram.New(tc, root)
		if err != nil {
			_ = store.Close()
			return fail(fmt.Errorf("telegram: %w", err))
		}
		logSvc.SetSender(tg)
		deliverer = tg
	} else {
		deliverer = logsink.New(root)
		if logCfg.Chat.Enabled {
			log.Warn("telegram logging enabled without a bot; ignoring")
			logCfg.Chat.Enabled = false
		}
	}
	logSvc.Apply(logCfg)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	adapter := timer.New(ncfg, deliverer, root, bus)

	rcfg, err := mapReconcileConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	eng := reconcile.New(rcfg, store, adapter, root, bus)

	var mcp *mcpserver.Server
	if cfg.MCP.Enabled {
		mcp = mcpserver.New(eng, Version, root)
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		tg:      tg,
		adapter: adapter,
		engine:  eng,
		mcp:     mcp,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}, nil
}

// Engine exposes the reconciliation engine.
func (a *App) Engine() *reconcile.Engine { return a.engine }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapReconcileConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapTelegramConfig(cfg)
		return err
	})

	if a.tg != nil {
		a.tg.Start(a.sup.Context())
	}
	a.adapter.Start(a.sup.Context())

	rep, err := a.engine.Open(a.sup.Context())
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	a.log.Info("reminders loaded",
		logx.Int("scheduled", rep.Scheduled),
		logx.Int("missed", rep.Missed),
		logx.Int("unschedulable", rep.Unschedulable),
		logx.String("permission", string(rep.Permission)),
	)
	a.engine.Start(a.sup.Context())

	if a.mcp != nil {
		a.sup.Go("mcp.stdio", func(c context.Context) error {
			err := a.mcp.Serve(c, a.stdin, a.stdout)
			if err == nil && c.Err() == nil {
				a.log.Info("mcp client disconnected")
				a.sup.Cancel()
			}
			return err
		})
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// keep only the newest
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sdNotify(daemon.SdNotifyReady)
	a.startWatchdog()

	a.log.Info("app started", logx.String("version", Version), logx.Bool("mcp", a.mcp != nil), logx.Bool("telegram", a.tg != nil))
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	a.sdNotify(daemon.SdNotifyReloading)
	defer a.sdNotify(daemon.SdNotifyReady)

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strs("sections", restart))
	}

	logCfg := mapLoggingConfig(newCfg)
	// the console target follows the running MCP server, not the file
	logCfg.ConsoleStderr = a.mcp != nil
	if a.tg == nil {
		logCfg.Chat.Enabled = false
	}
	a.logs.Apply(logCfg)

	if rc, err := mapReconcileConfig(newCfg); err != nil {
		a.log.Warn("invalid reconcile config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(rc)
	}

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.adapter.Apply(nc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// engine first so no pass schedules into a stopping adapter
	step("engine", 3*time.Second, a.engine.Stop)
	step("notifier", 2*time.Second, func(c context.Context) error { a.adapter.Stop(c); return nil })
	step("telegram", 3*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
