package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks fields that cannot be caught by strict decoding. It is
// used both at startup and as the Watch validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	check("reconcile.interval", cfg.Reconcile.Interval)
	check("reconcile.snooze", cfg.Reconcile.Snooze)
	check("reconcile.adapter_timeout", cfg.Reconcile.AdapterTimeout)
	check("storage.busy_timeout", cfg.Storage.BusyTimeout)
	check("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if n := cfg.Notifier; n != nil {
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.send_timeout", n.SendTimeout)
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier: counts must be >= 0"))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "memory", "mem":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path: required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id: required when token is set"))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("logging.telegram: requires telegram.token"))
	}
	return errors.Join(errs...)
}
