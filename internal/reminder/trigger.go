package reminder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Trigger is the sealed set of trigger kinds: TimeTrigger and LocationTrigger.
type Trigger interface {
	triggerType() string
}

// Repeat is the sealed set of recurrence rules attached to a TimeTrigger.
type Repeat interface {
	repeatKind() string
}

// TimeTrigger fires at a wall-clock instant in Timezone, optionally repeating.
// An empty Timezone means the host zone, pinned on first planning.
type TimeTrigger struct {
	At       string
	Timezone string
	Repeat   Repeat
}

// LocationTrigger is carried in the model only; it is never planned.
type LocationTrigger struct {
	Lat     float64
	Lon     float64
	RadiusM float64
	On      string // "enter" | "exit"
	Label   string
}

type IntervalRepeat struct{ Minutes int }

type DailyRepeat struct{ Interval int }

// WeeklyRepeat keeps ByWeekday (0=Sunday) for round-tripping; planning ignores it.
type WeeklyRepeat struct {
	Interval  int
	ByWeekday []int
}

// MonthlyRepeat keeps ByMonthday for round-tripping; planning ignores it.
type MonthlyRepeat struct {
	Interval   int
	ByMonthday []int
}

func (TimeTrigger) triggerType() string     { return "time" }
func (LocationTrigger) triggerType() string { return "location" }

func (IntervalRepeat) repeatKind() string { return "interval" }
func (DailyRepeat) repeatKind() string    { return "daily" }
func (WeeklyRepeat) repeatKind() string   { return "weekly" }
func (MonthlyRepeat) repeatKind() string  { return "monthly" }

// Every normalizes an interval multiplier; values below 1 mean 1.
func Every(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// IsRepeating reports whether the reminder has a time trigger with a repeat rule.
func (r *Reminder) IsRepeating() bool {
	tt, ok := r.Trigger.(TimeTrigger)
	return ok && tt.Repeat != nil
}

func cloneTrigger(t Trigger) Trigger {
	tt, ok := t.(TimeTrigger)
	if !ok {
		return t
	}
	switch rp := tt.Repeat.(type) {
	case WeeklyRepeat:
		rp.ByWeekday = append([]int(nil), rp.ByWeekday...)
		tt.Repeat = rp
	case MonthlyRepeat:
		rp.ByMonthday = append([]int(nil), rp.ByMonthday...)
		tt.Repeat = rp
	}
	return tt
}

// ---- wire format ----

type triggerWire struct {
	Type     string      `json:"type"`
	At       string      `json:"at,omitempty"`
	Timezone string      `json:"timezone,omitempty"`
	Repeat   *repeatWire `json:"repeat,omitempty"`

	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	RadiusM *float64 `json:"radiusM,omitempty"`
	On      string   `json:"on,omitempty"`
	Label   string   `json:"label,omitempty"`
}

type repeatWire struct {
	Kind       string `json:"kind"`
	Minutes    int    `json:"minutes,omitempty"`
	Interval   int    `json:"interval,omitempty"`
	ByWeekday  []int  `json:"byWeekday,omitempty"`
	ByMonthday []int  `json:"byMonthday,omitempty"`
}

func encodeTrigger(t Trigger) (*triggerWire, error) {
	switch v := t.(type) {
	case nil:
		return nil, nil
	case TimeTrigger:
		w := &triggerWire{Type: v.triggerType(), At: v.At, Timezone: v.Timezone}
		if v.Repeat != nil {
			rw, err := encodeRepeat(v.Repeat)
			if err != nil {
				return nil, err
			}
			w.Repeat = rw
		}
		return w, nil
	case LocationTrigger:
		lat, lon, rad := v.Lat, v.Lon, v.RadiusM
		return &triggerWire{Type: v.triggerType(), Lat: &lat, Lon: &lon, RadiusM: &rad, On: v.On, Label: v.Label}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedTrigger, t)
	}
}

func encodeRepeat(r Repeat) (*repeatWire, error) {
	switch v := r.(type) {
	case IntervalRepeat:
		return &repeatWire{Kind: v.repeatKind(), Minutes: v.Minutes}, nil
	case DailyRepeat:
		return &repeatWire{Kind: v.repeatKind(), Interval: v.Interval}, nil
	case WeeklyRepeat:
		return &repeatWire{Kind: v.repeatKind(), Interval: v.Interval, ByWeekday: v.ByWeekday}, nil
	case MonthlyRepeat:
		return &repeatWire{Kind: v.repeatKind(), Interval: v.Interval, ByMonthday: v.ByMonthday}, nil
	default:
		return nil, fmt.Errorf("unsupported repeat %T", r)
	}
}

func decodeTrigger(w *triggerWire) (Trigger, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: missing trigger", ErrUnsupportedTrigger)
	}
	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "time":
		tt := TimeTrigger{At: w.At, Timezone: w.Timezone}
		if w.Repeat != nil {
			rp, err := decodeRepeat(w.Repeat)
			if err != nil {
				return nil, err
			}
			tt.Repeat = rp
		}
		return tt, nil
	case "location":
		lt := LocationTrigger{On: w.On, Label: w.Label}
		if w.Lat != nil {
			lt.Lat = *w.Lat
		}
		if w.Lon != nil {
			lt.Lon = *w.Lon
		}
		if w.RadiusM != nil {
			lt.RadiusM = *w.RadiusM
		}
		return lt, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnsupportedTrigger, w.Type)
	}
}

func decodeRepeat(w *repeatWire) (Repeat, error) {
	switch strings.ToLower(strings.TrimSpace(w.Kind)) {
	case "interval":
		return IntervalRepeat{Minutes: w.Minutes}, nil
	case "daily":
		return DailyRepeat{Interval: w.Interval}, nil
	case "weekly":
		return WeeklyRepeat{Interval: w.Interval, ByWeekday: w.ByWeekday}, nil
	case "monthly":
		return MonthlyRepeat{Interval: w.Interval, ByMonthday: w.ByMonthday}, nil
	default:
		return nil, fmt.Errorf("unsupported repeat kind %q", w.Kind)
	}
}

// MarshalJSON writes the trigger as a tagged object under "trigger".
func (r Reminder) MarshalJSON() ([]byte, error) {
	type alias Reminder
	tw, err := encodeTrigger(r.Trigger)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Trigger *triggerWire `json:"trigger"`
	}{alias: alias(r), Trigger: tw})
}

func (r *Reminder) UnmarshalJSON(b []byte) error {
	type alias Reminder
	aux := struct {
		*alias
		Trigger *triggerWire `json:"trigger"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t, err := decodeTrigger(aux.Trigger)
	if err != nil {
		return err
	}
	r.Trigger = t
	return nil
}

// MarshalTrigger and UnmarshalTrigger expose the trigger wire format for
// callers that accept a trigger on its own (tool arguments, patches).
func MarshalTrigger(t Trigger) ([]byte, error) {
	w, err := encodeTrigger(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func UnmarshalTrigger(b []byte) (Trigger, error) {
	var w triggerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return decodeTrigger(&w)
}
