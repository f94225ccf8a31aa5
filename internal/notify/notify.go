// Package notify defines the contract between the reconciliation engine and a
// host notification backend.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindd/internal/reminder"
)

// ErrNoDestination is returned by deliverers with nowhere to send.
var ErrNoDestination = errors.New("no delivery destination configured")

// Permission is the host's notification authorization state.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionDenied  Permission = "denied"
	PermissionGranted Permission = "granted"
)

// Capabilities advertises what a backend supports.
type Capabilities struct {
	Time          bool `json:"time"`
	Location      bool `json:"location"`
	Actions       bool `json:"actions"`
	ListScheduled bool `json:"listScheduled"`
}

// Action is a user response to a delivered notification.
type Action string

const (
	ActionOpen   Action = "open"
	ActionSnooze Action = "snooze-10m"
	ActionDone   Action = "done"
)

// ParseAction maps a wire value to an Action. Unknown values return false.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionOpen, ActionSnooze, ActionDone:
		return a, true
	}
	return "", false
}

// Interaction is one user action on a delivered notification.
type Interaction struct {
	ReminderID string `json:"reminderId"`
	Action     Action `json:"action"`
}

// ScheduledInfo describes one pending backend handle.
type ScheduledInfo struct {
	PlatformID string    `json:"platformId"`
	ReminderID string    `json:"reminderId"`
	FireAt     time.Time `json:"fireAt"`
	Title      string    `json:"title"`
}

// Adapter is a notification backend. Handles are opaque to callers.
type Adapter interface {
	Capabilities() Capabilities
	Permission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	// ScheduleTime arranges one delivery of r at fireAt and returns the
	// handles that must be passed to Cancel to withdraw it.
	ScheduleTime(ctx context.Context, r reminder.Reminder, fireAt time.Time) ([]string, error)
	// Cancel withdraws handles. Unknown handles are not an error.
	Cancel(ctx context.Context, ids []string) error
	// OnInteraction registers fn for user actions and returns an unsubscribe.
	OnInteraction(fn func(Interaction)) (unsubscribe func())
}

// Lister is implemented by backends that can enumerate pending handles.
type Lister interface {
	ListScheduled(ctx context.Context) ([]ScheduledInfo, error)
}

// Message is what a deliverer renders when a handle fires.
type Message struct {
	Handle     string
	ReminderID string
	Title      string
	Body       string
	Priority   reminder.Priority
	Target     reminder.Target
	FireAt     time.Time
	Actions    bool
}

// Deliverer puts a fired message in front of the user.
type Deliverer interface {
	Name() string
	Permission(ctx context.Context) (Permission, error)
	Deliver(ctx context.Context, m Message) error
}
