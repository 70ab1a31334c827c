// Package server exposes the authoritative context API consumed by remote.Client.
package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/meikuraledutech/ctxsync"
)

// Store persists one conversation per session on the server side.
// LoadContext returns nil, nil when the session has nothing stored.
// Expire deletes every context last saved before the cutoff and reports
// how many were removed.
type Store interface {
	SaveContext(ctx context.Context, session ctxsync.Session, msgs []ctxsync.Message) (*ctxsync.Record, error)
	LoadContext(ctx context.Context, session ctxsync.Session) (*ctxsync.Record, error)
	ClearContext(ctx context.Context, session ctxsync.Session) error
	Expire(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[ctxsync.Session]ctxsync.Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[ctxsync.Session]ctxsync.Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) SaveContext(_ context.Context, session ctxsync.Session, msgs []ctxsync.Message) (*ctxsync.Record, error) {
	rec := ctxsync.Record{
		Session:  session,
		Messages: slices.Clone(msgs),
		SavedAt:  m.now().UTC(),
	}

	m.mu.Lock()
	m.records[session] = rec
	m.mu.Unlock()

	return &rec, nil
}

func (m *MemoryStore) LoadContext(_ context.Context, session ctxsync.Session) (*ctxsync.Record, error) {
	m.mu.RLock()
	rec, ok := m.records[session]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	rec.Messages = slices.Clone(rec.Messages)
	return &rec, nil
}

func (m *MemoryStore) ClearContext(_ context.Context, session ctxsync.Session) error {
	m.mu.Lock()
	delete(m.records, session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for session, rec := range m.records {
		if rec.SavedAt.Before(before) {
			delete(m.records, session)
			n++
		}
	}
	return n, nil
}

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
