package reminder

import (
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusFired     Status = "fired"
	StatusSnoozed   Status = "snoozed"
	StatusDismissed Status = "dismissed"
	StatusDone      Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusFired, StatusSnoozed, StatusDismissed, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts low/normal/high; anything else maps to normal.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

type TargetKind string

const (
	TargetNote  TargetKind = "note"
	TargetPath  TargetKind = "path"
	TargetQuery TargetKind = "query"
)

// Target points at what a reminder is about. The scheduler never reads it.
type Target struct {
	Type   TargetKind `json:"type"`
	NoteID string     `json:"noteId,omitempty"`
	Path   string     `json:"path,omitempty"`
	Query  string     `json:"query,omitempty"`
}

// QuietHours is a local do-not-disturb window, "HH:mm" bounds, end exclusive.
type QuietHours struct {
	Enabled    bool   `json:"enabled"`
	StartLocal string `json:"startLocal"`
	EndLocal   string `json:"endLocal"`
}

// PlatformRecord is the notification-backend bookkeeping for one platform.
//
// ScheduledIDs are live handles for FireAt. StaleIDs are handles whose
// cancellation failed and is retried on the next reconciliation pass.
type PlatformRecord struct {
	ScheduledIDs []string   `json:"scheduledIds,omitempty"`
	FireAt       *time.Time `json:"fireAt,omitempty"`
	StaleIDs     []string   `json:"staleIds,omitempty"`
}

func (p PlatformRecord) empty() bool {
	return len(p.ScheduledIDs) == 0 && len(p.StaleIDs) == 0 && p.FireAt == nil
}

type Reminder struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Body       string      `json:"body,omitempty"`
	Target     Target      `json:"target"`
	Trigger    Trigger     `json:"-"`
	Priority   Priority    `json:"priority,omitempty"`
	QuietHours *QuietHours `json:"quietHours,omitempty"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
	NextFireAt  *time.Time `json:"nextFireAt,omitempty"`

	// ScheduleError is set when the trigger cannot produce an instant
	// (bad timezone, unparsable time). Cleared by editing the trigger.
	ScheduleError string `json:"scheduleError,omitempty"`

	Platform map[string]PlatformRecord `json:"platform,omitempty"`
}

// Handles returns the live handles recorded for platform.
func (r *Reminder) Handles(platform string) []string {
	return r.Platform[platform].ScheduledIDs
}

// Record returns the bookkeeping for platform (zero value if absent).
func (r *Reminder) Record(platform string) PlatformRecord {
	return r.Platform[platform]
}

// SetRecord stores rec for platform, dropping empty records.
func (r *Reminder) SetRecord(platform string, rec PlatformRecord) {
	if rec.empty() {
		delete(r.Platform, platform)
		if len(r.Platform) == 0 {
			r.Platform = nil
		}
		return
	}
	if r.Platform == nil {
		r.Platform = map[string]PlatformRecord{}
	}
	r.Platform[platform] = rec
}

// Clone returns a deep copy so callers can mutate freely.
func (r Reminder) Clone() Reminder {
	cp := r
	if r.QuietHours != nil {
		qh := *r.QuietHours
		cp.QuietHours = &qh
	}
	cp.LastFiredAt = cloneTime(r.LastFiredAt)
	cp.NextFireAt = cloneTime(r.NextFireAt)
	cp.Trigger = cloneTrigger(r.Trigger)
	if r.Platform != nil {
		cp.Platform = make(map[string]PlatformRecord, len(r.Platform))
		for k, v := range r.Platform {
			cp.Platform[k] = PlatformRecord{
				ScheduledIDs: append([]string(nil), v.ScheduledIDs...),
				FireAt:       cloneTime(v.FireAt),
				StaleIDs:     append([]string(nil), v.StaleIDs...),
			}
		}
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t in UTC.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}
