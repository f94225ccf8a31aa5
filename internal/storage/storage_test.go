package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

func sampleFile(t *testing.T) *reminder.File {
	t.Helper()
	now := time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC)
	r, err := reminder.New(reminder.Draft{
		Title:      "stand-up",
		Trigger:    reminder.TimeTrigger{At: "2023-10-27T12:00:00", Timezone: "UTC", Repeat: reminder.DailyRepeat{Interval: 1}},
		QuietHours: &reminder.QuietHours{Enabled: true, StartLocal: "22:00", EndLocal: "07:00"},
	}, now)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	r.NextFireAt = reminder.TimePtr(now.Add(2 * time.Hour))
	r.SetRecord("desktop", reminder.PlatformRecord{ScheduledIDs: []string{"h1"}, FireAt: r.NextFireAt})
	f := reminder.EmptyFile()
	f.Reminders = append(f.Reminders, r)
	return f
}

func TestGatewayRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "json file", cfg: Config{Driver: "file", Path: filepath.Join(dir, "reminders.json")}},
		{name: "yaml file", cfg: Config{Driver: "file", Path: filepath.Join(dir, "reminders.yaml")}},
		{name: "sqlite", cfg: Config{Driver: "sqlite", Path: filepath.Join(dir, "reminders.db")}},
		{name: "memory", cfg: Config{Driver: "memory"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			g, err := Open(tt.cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer g.Close()

			got, err := g.Load(ctx)
			if err != nil || got != nil {
				t.Fatalf("empty Load = %v, %v; want nil, nil", got, err)
			}

			want := sampleFile(t)
			if err := g.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			// Saving twice replaces, never appends.
			if err := g.Save(ctx, want); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, err = g.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.SchemaVersion != reminder.CurrentSchemaVersion || len(got.Reminders) != 1 {
				t.Fatalf("loaded %+v", got)
			}
			r := got.Reminders[0]
			if r.ID != want.Reminders[0].ID || r.Title != "stand-up" {
				t.Fatalf("reminder = %+v", r)
			}
			if _, ok := r.Trigger.(reminder.TimeTrigger).Repeat.(reminder.DailyRepeat); !ok {
				t.Fatalf("repeat lost: %#v", r.Trigger)
			}
			if h := r.Handles("desktop"); len(h) != 1 || h[0] != "h1" {
				t.Fatalf("handles = %v", h)
			}
			if r.NextFireAt == nil || !r.NextFireAt.Equal(*want.Reminders[0].NextFireAt) {
				t.Fatalf("nextFireAt = %v", r.NextFireAt)
			}
		})
	}
}

func TestFileSaveLeavesNoTemp(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "reminders.json")
	g, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := g.Save(context.Background(), sampleFile(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `"schemaVersion": 1`) {
		t.Fatalf("unexpected document:\n%s", b)
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	good := `{"id":"a","title":"x","target":{"type":"note"},"status":"scheduled","createdAt":"2023-10-27T10:00:00Z","updatedAt":"2023-10-27T10:00:00Z","trigger":{"type":"time","at":"2023-10-27T12:00:00","timezone":"UTC"}}`
	tests := []struct {
		name        string
		raw         string
		wantCount   int
		wantCorrupt bool
	}{
		{name: "empty bytes", raw: "", wantCount: 0},
		{name: "current", raw: `{"schemaVersion":1,"reminders":[` + good + `]}`, wantCount: 1},
		{name: "missing version", raw: `{"reminders":[` + good + `]}`, wantCount: 0},
		{name: "future version", raw: `{"schemaVersion":99,"reminders":[]}`, wantCorrupt: true},
		{name: "not an object", raw: `[1,2,3]`, wantCorrupt: true},
		{name: "garbage", raw: `{{{`, wantCorrupt: true},
		{name: "reminders not a list", raw: `{"schemaVersion":1,"reminders":{}}`, wantCorrupt: true},
		{
			name:        "bad entries dropped",
			raw:         `{"schemaVersion":1,"reminders":[` + good + `,{"id":"b","status":"scheduled","trigger":{"type":"sunrise"}},{"id":"c","status":"bogus","trigger":{"type":"time","at":"x"}},` + good + `]}`,
			wantCount:   1,
			wantCorrupt: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := Migrate([]byte(tt.raw), logx.Nop())
			if f == nil {
				t.Fatal("Migrate returned nil document")
			}
			if f.SchemaVersion != reminder.CurrentSchemaVersion {
				t.Fatalf("schemaVersion = %d", f.SchemaVersion)
			}
			if len(f.Reminders) != tt.wantCount {
				t.Fatalf("reminders = %d, want %d", len(f.Reminders), tt.wantCount)
			}
			corrupt := errors.Is(err, reminder.ErrDocumentCorrupt)
			if corrupt != tt.wantCorrupt {
				t.Fatalf("err = %v, wantCorrupt %v", err, tt.wantCorrupt)
			}
			var rec *Recovered
			if tt.wantCorrupt && !errors.As(err, &rec) {
				t.Fatalf("err %v is not *Recovered", err)
			}
		})
	}
}

func TestCorruptFileLoadsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml\n\t- ["), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	g, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f, err := g.Load(context.Background())
	if !errors.Is(err, reminder.ErrDocumentCorrupt) {
		t.Fatalf("err = %v", err)
	}
	if f == nil || len(f.Reminders) != 0 {
		t.Fatalf("document = %+v", f)
	}
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.db")
	for i := 0; i < 2; i++ {
		g, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if i == 0 {
			if err := g.Save(context.Background(), sampleFile(t)); err != nil {
				t.Fatalf("Save: %v", err)
			}
		} else {
			f, err := g.Load(context.Background())
			if err != nil || f == nil || len(f.Reminders) != 1 {
				t.Fatalf("reopened Load = %+v, %v", f, err)
			}
		}
		if err := g.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestClosedGateway(t *testing.T) {
	t.Parallel()
	m := NewMemory(logx.Nop())
	_ = m.Close()
	if err := m.Save(context.Background(), reminder.EmptyFile()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Save after Close = %v", err)
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
