package eventbus

import "time"

// Reminder lifecycle events, published by the reconciliation engine.
const (
	ReminderCreated        = "reminder.created"
	ReminderUpdated        = "reminder.updated"
	ReminderDeleted        = "reminder.deleted"
	ReminderScheduled      = "reminder.scheduled"
	ReminderFired          = "reminder.fired"
	ReminderMissed         = "reminder.missed"
	ReminderSnoozed        = "reminder.snoozed"
	ReminderCompleted      = "reminder.completed"
	ReminderDismissed      = "reminder.dismissed"
	ReminderOpened         = "reminder.opened"
	ReminderUnschedulable  = "reminder.unschedulable"
	ReminderScheduleFailed = "reminder.schedule_failed"
	ReminderCancelFailed   = "reminder.cancel_failed"
	PermissionChanged      = "permission.changed"
	ReconcileDone          = "reconcile.done"
	DocumentRecovered      = "document.recovered"
)

// Delivery events, published by the timer adapter's pipeline.
const (
	NotifyQueued  = "notify.queued"
	NotifySent    = "notify.sent"
	NotifyFailed  = "notify.failed"
	NotifyDropped = "notify.dropped"
)

// ReminderEvent is the Data of reminder.* events.
type ReminderEvent struct {
	ID     string     `json:"id"`
	Title  string     `json:"title,omitempty"`
	Status string     `json:"status,omitempty"`
	FireAt *time.Time `json:"fire_at,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// DeliveryEvent is the Data of notify.* events.
type DeliveryEvent struct {
	Handle     string    `json:"handle"`
	ReminderID string    `json:"reminder_id"`
	Attempt    int       `json:"attempt,omitempty"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// ReconcileEvent is the Data of reconcile.done.
type ReconcileEvent struct {
	Reason    string        `json:"reason"`
	Scheduled int           `json:"scheduled"`
	Cancelled int           `json:"cancelled"`
	Changed   bool          `json:"changed"`
	Took      time.Duration `json:"took"`
}
