package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reconcile ReconcileConfig `json:"reconcile"`

	// Notifier tunes the in-process delivery pipeline. Omitted means defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Telegram TelegramConfig  `json:"telegram"`
	MCP      MCPConfig       `json:"mcp"`
}

// ReconcileConfig controls the reconciliation engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - interval: "5m"
//   - snooze: "10m"
//   - adapter_timeout: "10s"
//   - platform: "desktop"
type ReconcileConfig struct {
	Interval       string `json:"interval,omitempty"`
	Snooze         string `json:"snooze,omitempty"`
	AdapterTimeout string `json:"adapter_timeout,omitempty"`
	// Platform keys the per-backend bookkeeping stored in each reminder.
	// Changing it orphans handles recorded under the old key.
	Platform string `json:"platform,omitempty"`
}

// NotifierConfig controls the timer adapter's delivery pipeline.
type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig selects where the reminders document lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./reminders.db" }
//
// Drivers: "file" (JSON, or YAML by extension), "sqlite", "memory".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TelegramConfig enables delivery to a Telegram chat. An empty token keeps
// deliveries in the log.
type TelegramConfig struct {
	Token     string `json:"token"`
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	LogChatID int64  `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type MCPConfig struct {
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
