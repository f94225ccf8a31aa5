package config

import (
	"sort"
	"strings"

	logx "remindd/pkg/logx"
)

// DefaultNotifier mirrors the timer adapter defaults. An omitted section
// and an explicit default section compare equal.
var DefaultNotifier = NotifierConfig{
	Workers:       2,
	QueueSize:     256,
	RatePerSec:    3,
	RetryMax:      3,
	RetryBase:     "500ms",
	RetryMaxDelay: "10s",
	SendTimeout:   "10s",
}

// SummarizeConfigChange returns the changed section names and safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID || ot.LogChatID != nt.LogChatID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Bool("telegram.token_changed", strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)),
			logx.Bool("telegram.chat_set", nt.ChatID != 0),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Reconcile != newCfg.Reconcile {
		changed = append(changed, "reconcile")
		attrs = append(attrs,
			logx.String("reconcile.interval", strings.TrimSpace(newCfg.Reconcile.Interval)),
			logx.String("reconcile.snooze", strings.TrimSpace(newCfg.Reconcile.Snooze)),
			logx.String("reconcile.adapter_timeout", strings.TrimSpace(newCfg.Reconcile.AdapterTimeout)),
			logx.String("reconcile.platform", strings.TrimSpace(newCfg.Reconcile.Platform)),
		)
	}

	oldN, newN := DefaultNotifier, DefaultNotifier
	if oldCfg.Notifier != nil {
		oldN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		newN = *newCfg.Notifier
	}
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	oldS, newS := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(oldS.Driver) != strings.TrimSpace(newS.Driver) ||
		strings.TrimSpace(oldS.Path) != strings.TrimSpace(newS.Path) ||
		strings.TrimSpace(oldS.BusyTimeout) != strings.TrimSpace(newS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newS.BusyTimeout)),
		)
	}

	if oldCfg.MCP != newCfg.MCP {
		changed = append(changed, "mcp")
		attrs = append(attrs, logx.Bool("mcp.enabled", newCfg.MCP.Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports the changed sections that only take effect after
// a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "telegram", "mcp":
			out = append(out, s)
		}
	}
	return out
}
