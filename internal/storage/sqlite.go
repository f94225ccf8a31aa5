package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// migration is one schema step for the database itself. The document
// inside it is versioned separately (see Migrate).
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reminders_document (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	schema_version INTEGER NOT NULL,
	body           TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type documentRow struct {
	SchemaVersion int    `db:"schema_version"`
	Body          string `db:"body"`
	UpdatedAt     string `db:"updated_at"`
}

func openSQLite(cfg Config, log logx.Logger) (Gateway, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite prefers a single writer; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{db: db, log: log}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		s.log.Info("sqlite migration applied", logx.Int("version", m.version))
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context) (*reminder.File, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT schema_version, body, updated_at FROM reminders_document WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return Migrate([]byte(row.Body), s.log)
}

func (s *sqliteStore) Save(ctx context.Context, f *reminder.File) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	b, err := encode(f)
	if err != nil {
		return err
	}
	version := reminder.CurrentSchemaVersion
	if f != nil && f.SchemaVersion > 0 {
		version = f.SchemaVersion
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOp(ctx, defaultRetryConfig, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminders_document (id, schema_version, body, updated_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				schema_version = excluded.schema_version,
				body = excluded.body,
				updated_at = excluded.updated_at`,
			version, string(b), now,
		)
		if err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		return tx.Commit()
	})
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
