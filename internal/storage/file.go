package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindd/internal/codec"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// fileStore keeps the document in a single file and replaces it atomically
// (write temp, fsync, rename) so a crash leaves either the old or new copy.
type fileStore struct {
	log  logx.Logger
	path string
	yaml bool

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Gateway, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, yaml: codec.IsYAML(path)}, nil
}

func (s *fileStore) Load(ctx context.Context) (*reminder.File, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	jb, _, err := codec.ToJSON(s.path, b)
	if err != nil {
		s.log.Warn("reminders document unparsable", logx.Err(err))
		return reminder.EmptyFile(), &Recovered{Reason: err.Error()}
	}
	return Migrate(jb, s.log)
}

func (s *fileStore) Save(ctx context.Context, f *reminder.File) error {
	_ = ctx
	b, err := encode(f)
	if err != nil {
		return err
	}
	if s.yaml {
		if b, err = codec.FromJSON(b); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return writeAtomic(s.path, b)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
