package reconcile

import (
	"time"

	"remindd/internal/notify"
	"remindd/internal/reminder"
	rtsup "remindd/internal/runtime/supervisor"
)

// Config controls the engine. Zero values take defaults.
type Config struct {
	// Interval between periodic passes.
	Interval time.Duration
	// Snooze is the duration used by the snooze-10m interaction and by
	// Snooze calls that pass no duration.
	Snooze time.Duration
	// AdapterTimeout bounds each adapter call.
	AdapterTimeout time.Duration
	// Platform keys the bookkeeping record inside each reminder.
	Platform string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Snooze <= 0 {
		c.Snooze = 10 * time.Minute
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 10 * time.Second
	}
	if c.Platform == "" {
		c.Platform = "desktop"
	}
	return c
}

// Report summarizes one pass.
type Report struct {
	Reason        string            `json:"reason"`
	At            time.Time         `json:"at"`
	Permission    notify.Permission `json:"permission"`
	Scheduled     int               `json:"scheduled"`
	Cancelled     int               `json:"cancelled"`
	Fired         int               `json:"fired"`
	Missed        int               `json:"missed"`
	Unschedulable int               `json:"unschedulable"`
	Failed        int               `json:"failed"`
	Saved         bool              `json:"saved"`
	Took          time.Duration     `json:"took"`
}

// Patch is a partial edit. Nil fields are left unchanged.
type Patch struct {
	Title      *string
	Body       *string
	Target     *reminder.Target
	Trigger    reminder.Trigger
	Priority   *reminder.Priority
	QuietHours *reminder.QuietHours
	// ClearQuietHours removes the window; it wins over QuietHours.
	ClearQuietHours bool
}

func (p Patch) reschedules() bool {
	return p.Trigger != nil || p.QuietHours != nil || p.ClearQuietHours
}

// DebugInfo is a point-in-time view of the document and the backend.
type DebugInfo struct {
	Reminders    []reminder.Reminder    `json:"reminders"`
	Capabilities notify.Capabilities    `json:"capabilities"`
	Scheduled    []notify.ScheduledInfo `json:"scheduled,omitempty"`
	Orphans      []string               `json:"orphans,omitempty"`
	LastReport   *Report                `json:"lastReport,omitempty"`
	Tasks        []rtsup.TaskStats      `json:"tasks,omitempty"`
}
