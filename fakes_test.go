package ctxsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var errBoom = errors.New("boom")

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeLocal struct {
	mu      sync.Mutex
	recs    map[Session]Record
	getErr  error
	putErr  error
	delErr  error
	puts    []Record
	deletes []Session
	now     func() time.Time
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{recs: make(map[Session]Record), now: time.Now}
}

func (f *fakeLocal) Get(_ context.Context, s Session) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.recs[s]
	if !ok {
		return nil, nil
	}
	rec.Messages = slices.Clone(rec.Messages)
	return &rec, nil
}

func (f *fakeLocal) Put(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, rec)
	if f.putErr != nil {
		return f.putErr
	}
	f.recs[rec.Session] = rec
	return nil
}

func (f *fakeLocal) Delete(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, s)
	if f.delErr != nil {
		return f.delErr
	}
	now := f.now()
	f.recs[s] = Record{Session: s, SavedAt: now, ClearedAt: &now}
	return nil
}

func (f *fakeLocal) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

type fakeRemote struct {
	mu       sync.Mutex
	rec      *Record
	id       string
	idErr    error
	loadErr  error
	saveErr  error
	clearErr error
	payloads [][]byte
	loads    int
	clears   int
}

func (f *fakeRemote) SessionID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.idErr
}

func (f *fakeRemote) Load(context.Context) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.rec == nil {
		return nil, nil
	}
	rec := *f.rec
	rec.Messages = slices.Clone(rec.Messages)
	return &rec, nil
}

// Save records the exact request body a real client would send.
func (f *fakeRemote) Save(_ context.Context, msgs []Message) error {
	body, err := json.Marshal(map[string]any{"messages": msgs})
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.rec = &Record{Messages: slices.Clone(msgs), SavedAt: time.Now()}
	return nil
}

func (f *fakeRemote) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.rec = nil
	return nil
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type memRecorder struct {
	mu     sync.Mutex
	events []SyncEvent
}

func (m *memRecorder) RecordSync(_ context.Context, ev SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) all() []SyncEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}
