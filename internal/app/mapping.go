package app

import (
	"fmt"
	"strings"
	"time"

	"remindd/internal/config"
	"remindd/internal/notify/telegram"
	"remindd/internal/notify/timer"
	"remindd/internal/reconcile"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

// mapLoggingConfig converts the logging section. MCP owns stdout, so the
// console writer moves to stderr when it is enabled.
func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:         cfg.Logging.Level,
		Console:       cfg.Logging.Console,
		ConsoleStderr: cfg.MCP.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file":
		if path == "" {
			path = "./reminders.json"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapReconcileConfig(cfg *config.Config) (reconcile.Config, error) {
	rc := cfg.Reconcile
	interval, err := config.ParseDurationOrDefault("reconcile.interval", rc.Interval, 5*time.Minute)
	if err != nil {
		return reconcile.Config{}, err
	}
	snooze, err := config.ParseDurationOrDefault("reconcile.snooze", rc.Snooze, 10*time.Minute)
	if err != nil {
		return reconcile.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("reconcile.adapter_timeout", rc.AdapterTimeout, 10*time.Second)
	if err != nil {
		return reconcile.Config{}, err
	}
	if interval < time.Second {
		return reconcile.Config{}, fmt.Errorf("reconcile.interval must be >= 1s")
	}
	return reconcile.Config{
		Interval:       interval,
		Snooze:         snooze,
		AdapterTimeout: timeout,
		Platform:       strings.TrimSpace(rc.Platform),
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (timer.Config, error) {
	nc := config.DefaultNotifier
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 {
		return timer.Config{}, fmt.Errorf("notifier: counts must be >= 0")
	}
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return timer.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return timer.Config{}, err
	}
	send, err := config.ParseDurationOrDefault("notifier.send_timeout", nc.SendTimeout, 10*time.Second)
	if err != nil {
		return timer.Config{}, err
	}
	return timer.Config{
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   send,
	}, nil
}

// mapTelegramConfig reports ok=false when no token is configured.
func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	tc := cfg.Telegram
	token := strings.TrimSpace(tc.Token)
	if token == "" {
		return telegram.Config{}, false, nil
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", tc.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:       token,
		ChatID:      tc.ChatID,
		ThreadID:    tc.ThreadID,
		LogChatID:   tc.LogChatID,
		PollTimeout: poll,
	}, true, nil
}
