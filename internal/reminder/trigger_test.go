package reminder

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestReminderJSONKeepsTaggedVariants(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{
		At:       "2023-10-27T08:00:00",
		Timezone: "America/Toronto",
		Repeat:   WeeklyRepeat{Interval: 2, ByWeekday: []int{1, 3}},
	})
	r.SetRecord("desktop", PlatformRecord{ScheduledIDs: []string{"h1"}})

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"type":"time"`, `"kind":"weekly"`, `"byWeekday":[1,3]`, `"scheduledIds":["h1"]`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("encoded reminder missing %s: %s", want, b)
		}
	}

	var back Reminder
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Trigger, r.Trigger) {
		t.Fatalf("trigger = %#v, want %#v", back.Trigger, r.Trigger)
	}
}

func TestDecodeLocationAndUnknownTriggers(t *testing.T) {
	t.Parallel()
	trig, err := UnmarshalTrigger([]byte(`{"type":"location","lat":0,"lon":12.5,"radiusM":100,"on":"enter"}`))
	if err != nil {
		t.Fatalf("UnmarshalTrigger: %v", err)
	}
	lt, ok := trig.(LocationTrigger)
	if !ok || lt.Lon != 12.5 || lt.On != "enter" {
		t.Fatalf("unexpected trigger %#v", trig)
	}

	if _, err := UnmarshalTrigger([]byte(`{"type":"sunrise"}`)); !errors.Is(err, ErrUnsupportedTrigger) {
		t.Fatalf("unknown type err = %v", err)
	}
	if _, err := UnmarshalTrigger([]byte(`{"type":"time","at":"x","repeat":{"kind":"yearly"}}`)); err == nil {
		t.Fatal("expected error for unknown repeat kind")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	r := newTestReminder(t, TimeTrigger{At: "2023-10-27T08:00:00", Timezone: "UTC", Repeat: MonthlyRepeat{Interval: 1, ByMonthday: []int{1}}})
	r.SetRecord("desktop", PlatformRecord{ScheduledIDs: []string{"a"}})

	cp := r.Clone()
	cp.Platform["desktop"].ScheduledIDs[0] = "b"
	cp.Trigger.(TimeTrigger).Repeat.(MonthlyRepeat).ByMonthday[0] = 9

	if r.Handles("desktop")[0] != "a" {
		t.Fatal("clone shares platform ids")
	}
	if r.Trigger.(TimeTrigger).Repeat.(MonthlyRepeat).ByMonthday[0] != 1 {
		t.Fatal("clone shares repeat slices")
	}
}
