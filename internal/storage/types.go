package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON document, YAML when Path ends in .yaml/.yml
//   - "sqlite": SQLite database file
//   - "memory": nothing survives a restart
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Gateway loads and saves the whole reminders document.
type Gateway interface {
	// Load returns the stored document, or (nil, nil) when nothing has
	// been stored yet. A damaged document is returned as an empty or
	// partial one together with a *Recovered error.
	Load(ctx context.Context) (*reminder.File, error)
	Save(ctx context.Context, f *reminder.File) error
	Close() error
}

// Open initializes the configured gateway.
func Open(cfg Config, log logx.Logger) (Gateway, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(log), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
