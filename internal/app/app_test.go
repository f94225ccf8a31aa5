package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remindd/internal/config"
	"remindd/internal/reminder"
)

func TestMapReconcileConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      config.ReconcileConfig
		want    time.Duration
		wantErr string
	}{
		{name: "defaults", want: 5 * time.Minute},
		{name: "explicit", in: config.ReconcileConfig{Interval: "90s"}, want: 90 * time.Second},
		{name: "too short", in: config.ReconcileConfig{Interval: "10ms"}, wantErr: ">= 1s"},
		{name: "bad snooze", in: config.ReconcileConfig{Snooze: "soon"}, wantErr: "reconcile.snooze"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapReconcileConfig(&config.Config{Reconcile: tt.in})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Interval != tt.want {
				t.Fatalf("interval = %v, want %v", got.Interval, tt.want)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		in         config.StorageConfig
		wantDriver string
		wantBusy   time.Duration
		wantErr    bool
	}{
		{name: "default file", wantDriver: "file"},
		{name: "sqlite", in: config.StorageConfig{Driver: "SQLite3", Path: "x.db"}, wantDriver: "sqlite", wantBusy: time.Second},
		{name: "sqlite busy", in: config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"}, wantDriver: "sqlite", wantBusy: 3 * time.Second},
		{name: "sqlite without path", in: config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "memory", in: config.StorageConfig{Driver: "mem"}, wantDriver: "memory"},
		{name: "unknown", in: config.StorageConfig{Driver: "postgres"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Driver != tt.wantDriver || got.BusyTimeout != tt.wantBusy {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestMapNotifierConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Workers != 2 || got.QueueSize != 256 || got.RetryBase != 500*time.Millisecond || got.SendTimeout != 10*time.Second {
		t.Fatalf("defaults = %+v", got)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{Workers: -1}}); err == nil {
		t.Fatal("expected error for negative workers")
	}
}

func TestMapTelegramConfig(t *testing.T) {
	t.Parallel()
	if _, ok, err := mapTelegramConfig(&config.Config{}); ok || err != nil {
		t.Fatalf("empty token: ok=%v err=%v", ok, err)
	}
	tc, ok, err := mapTelegramConfig(&config.Config{Telegram: config.TelegramConfig{Token: " t ", ChatID: 7}})
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if tc.Token != "t" || tc.PollTimeout != 10*time.Second {
		t.Fatalf("got %+v", tc)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{"storage":{"driver":"sqlite"}}`)
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
}

func TestAppStartStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, `{
  "logging": {"level": "error"},
  "storage": {"driver": "file", "path": "`+filepath.ToSlash(filepath.Join(dir, "reminders.json"))+`"},
  "reconcile": {"interval": "1m"}
}`)
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r, err := a.Engine().Create(ctx, reminder.Draft{
		Title:   "water plants",
		Trigger: reminder.TimeTrigger{At: time.Now().Add(time.Hour).UTC().Format("2006-01-02T15:04:05"), Timezone: "UTC"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Status != reminder.StatusScheduled {
		t.Fatalf("status = %s", r.Status)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	b, err := os.ReadFile(filepath.Join(dir, "reminders.json"))
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if !strings.Contains(string(b), "water plants") {
		t.Fatalf("reminder not persisted: %s", b)
	}
}
