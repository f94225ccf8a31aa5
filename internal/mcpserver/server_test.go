package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"remindd/internal/notify/logsink"
	"remindd/internal/notify/timer"
	"remindd/internal/reconcile"
	"remindd/internal/reminder"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

func newTestServer(t *testing.T) (*Server, *reconcile.Engine) {
	t.Helper()
	adapter := timer.New(timer.Config{}, logsink.New(logx.Nop()), logx.Nop(), nil)
	t.Cleanup(func() { adapter.Stop(context.Background()) })
	eng := reconcile.New(reconcile.Config{}, storage.NewMemory(logx.Nop()), adapter, logx.Nop(), nil)
	if _, err := eng.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(eng, "test", logx.Nop()), eng
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func addReminder(t *testing.T, s *Server, args map[string]any) reminder.Reminder {
	t.Helper()
	res, err := s.handleAdd(context.Background(), call(args))
	if err != nil {
		t.Fatalf("handleAdd: %v", err)
	}
	text := resultText(t, res)
	if res.IsError {
		t.Fatalf("add_reminder failed: %s", text)
	}
	var r reminder.Reminder
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		t.Fatalf("decode reminder: %v\n%s", err, text)
	}
	return r
}

func TestAddReminder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
		check   func(t *testing.T, r reminder.Reminder)
	}{
		{
			name: "daily with quiet hours",
			args: map[string]any{
				"title": "stretch", "at": "2099-01-15T23:00:00", "timezone": "Europe/Berlin",
				"repeat": "daily", "quiet_start": "22:00", "quiet_end": "07:00", "priority": "high",
			},
			check: func(t *testing.T, r reminder.Reminder) {
				tt, ok := r.Trigger.(reminder.TimeTrigger)
				if !ok || tt.Timezone != "Europe/Berlin" {
					t.Fatalf("trigger = %#v", r.Trigger)
				}
				if _, ok := tt.Repeat.(reminder.DailyRepeat); !ok {
					t.Fatalf("repeat = %#v", tt.Repeat)
				}
				if r.Priority != reminder.PriorityHigh || r.QuietHours == nil || r.NextFireAt == nil {
					t.Fatalf("reminder = %+v", r)
				}
			},
		},
		{
			name: "interval with target",
			args: map[string]any{"title": "drink", "at": "2099-01-15T08:00:00", "timezone": "UTC", "repeat": "interval", "every": float64(90), "target_path": "notes/water.md"},
			check: func(t *testing.T, r reminder.Reminder) {
				tt := r.Trigger.(reminder.TimeTrigger)
				if rp, ok := tt.Repeat.(reminder.IntervalRepeat); !ok || rp.Minutes != 90 {
					t.Fatalf("repeat = %#v", tt.Repeat)
				}
				if r.Target.Type != reminder.TargetPath || r.Target.Path != "notes/water.md" {
					t.Fatalf("target = %+v", r.Target)
				}
			},
		},
		{name: "missing title", args: map[string]any{"at": "2099-01-15T08:00:00"}, wantErr: "title is required"},
		{name: "bad timezone", args: map[string]any{"title": "x", "at": "2099-01-15T08:00:00", "timezone": "Nowhere/Land"}, wantErr: "invalid timezone"},
		{name: "interval without every", args: map[string]any{"title": "x", "at": "2099-01-15T08:00:00", "repeat": "interval"}, wantErr: "every"},
		{name: "half quiet hours", args: map[string]any{"title": "x", "at": "2099-01-15T08:00:00", "quiet_start": "22:00"}, wantErr: "quiet_start"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t)
			if tt.wantErr == "" {
				tt.check(t, addReminder(t, s, tt.args))
				return
			}
			res, err := s.handleAdd(context.Background(), call(tt.args))
			if err != nil {
				t.Fatalf("handleAdd: %v", err)
			}
			if text := resultText(t, res); !res.IsError || !strings.Contains(text, tt.wantErr) {
				t.Fatalf("result = %q (error %v), want %q", text, res.IsError, tt.wantErr)
			}
		})
	}
}

func TestReminderLifecycleTools(t *testing.T) {
	t.Parallel()
	s, eng := newTestServer(t)
	ctx := context.Background()
	r := addReminder(t, s, map[string]any{"title": "review", "at": "2099-03-01T10:00:00", "timezone": "UTC", "repeat": "weekly"})

	res, _ := s.handleUpdate(ctx, call(map[string]any{"id": r.ID, "every": float64(2), "title": "review PRs"}))
	if res.IsError {
		t.Fatalf("update: %s", resultText(t, res))
	}
	got, _ := eng.Get(r.ID)
	tt := got.Trigger.(reminder.TimeTrigger)
	if wr, ok := tt.Repeat.(reminder.WeeklyRepeat); !ok || wr.Interval != 2 || got.Title != "review PRs" {
		t.Fatalf("updated reminder = %+v", got)
	}

	res, _ = s.handleSnooze(ctx, call(map[string]any{"id": r.ID, "minutes": float64(5)}))
	if res.IsError {
		t.Fatalf("snooze: %s", resultText(t, res))
	}
	if got, _ := eng.Get(r.ID); got.Status != reminder.StatusSnoozed {
		t.Fatalf("status = %s", got.Status)
	}

	res, _ = s.handleList(ctx, call(map[string]any{"status": "snoozed"}))
	if text := resultText(t, res); !strings.Contains(text, r.ID) {
		t.Fatalf("list = %s", text)
	}
	res, _ = s.handleList(ctx, call(map[string]any{"status": "done"}))
	if text := resultText(t, res); text != "No reminders found." {
		t.Fatalf("list done = %s", text)
	}

	res, _ = s.byID(eng.Dismiss)(ctx, call(map[string]any{"id": r.ID}))
	if res.IsError {
		t.Fatalf("dismiss: %s", resultText(t, res))
	}

	res, _ = s.handleReconcile(ctx, call(nil))
	if text := resultText(t, res); res.IsError || !strings.Contains(text, `"reason": "manual"`) {
		t.Fatalf("reconcile = %s", text)
	}
	res, _ = s.handleDebug(ctx, call(nil))
	if text := resultText(t, res); !strings.Contains(text, r.ID) {
		t.Fatalf("debug = %s", text)
	}

	res, _ = s.handleDelete(ctx, call(map[string]any{"id": r.ID}))
	if res.IsError {
		t.Fatalf("delete: %s", resultText(t, res))
	}
	res, _ = s.handleGet(ctx, call(map[string]any{"id": r.ID}))
	if !res.IsError {
		t.Fatal("deleted reminder still readable")
	}
}
