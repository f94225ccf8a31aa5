package storage

import (
	"context"
	"sync"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Memory keeps the encoded document in process memory. Saving and loading
// still round-trips through the wire format.
type Memory struct {
	log logx.Logger

	mu     sync.Mutex
	raw    []byte
	saves  int
	closed bool
}

func NewMemory(log logx.Logger) *Memory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Memory{log: log}
}

// Seed replaces the stored bytes verbatim, as if written by another build.
func (m *Memory) Seed(raw []byte) {
	m.mu.Lock()
	m.raw = append([]byte(nil), raw...)
	m.mu.Unlock()
}

// Saves returns how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Load(ctx context.Context) (*reminder.File, error) {
	_ = ctx
	m.mu.Lock()
	raw := m.raw
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if raw == nil {
		return nil, nil
	}
	return Migrate(raw, m.log)
}

func (m *Memory) Save(ctx context.Context, f *reminder.File) error {
	_ = ctx
	b, err := encode(f)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.raw = b
	m.saves++
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
