package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendLog(_ context.Context, text string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","message":"schedule failed","time":"x","id":"r1","comp":"reconcile"}`))
	want := "[WARN] schedule failed\n- comp=reconcile\n- id=r1"
	if got != want {
		t.Fatalf("formatChatLine() = %q, want %q", got, want)
	}

	raw := formatChatLine([]byte("  not json \n"))
	if raw != "not json" {
		t.Fatalf("formatChatLine(raw) = %q", raw)
	}
}

func TestChatSinkHonorsMinLevel(t *testing.T) {
	t.Parallel()
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}})
	defer svc.Close()

	snd := &captureSender{}
	svc.SetSender(snd)

	log.Info("ignored")
	log.Warn("forwarded", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for snd.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(snd.msgs), snd.msgs)
	}
	if !strings.HasPrefix(snd.msgs[0], "[WARN] forwarded") {
		t.Fatalf("unexpected message %q", snd.msgs[0])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.With(String("a", "b")).Error("no panic")
}
