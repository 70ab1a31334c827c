// Package sqlite is the durable local tier: one conversation record per
// session in a schema-versioned SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meikuraledutech/ctxsync"
)

// Store implements ctxsync.LocalStore and ctxsync.SyncRecorder on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ctxsync.ErrStorageUnavailable, err)
	}
	return s, nil
}

// OpenDB opens the SQLite file at path without touching its schema.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %w", ctxsync.ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ctxsync.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ctxsync.ErrStorageUnavailable, err)
	}
	return db, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record stored for session, or nil when there is none.
// A tombstone comes back as a record with no messages and ClearedAt set.
func (s *Store) Get(ctx context.Context, session ctxsync.Session) (*ctxsync.Record, error) {
	var (
		raw       string
		savedAt   int64
		clearedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT messages, saved_at, cleared_at FROM conversations WHERE session_id = ?`,
		string(session),
	).Scan(&raw, &savedAt, &clearedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %w", ctxsync.ErrStorageUnavailable, err)
	}

	msgs, err := ctxsync.DecodeMessages([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt conversation %s: %w", ctxsync.ErrStorageUnavailable, session, err)
	}

	rec := &ctxsync.Record{
		Session:  session,
		Messages: msgs,
		SavedAt:  fromNanos(savedAt),
	}
	if clearedAt.Valid {
		t := fromNanos(clearedAt.Int64)
		rec.ClearedAt = &t
	}
	return rec, nil
}

// Put replaces the whole record for rec.Session.
func (s *Store) Put(ctx context.Context, rec ctxsync.Record) error {
	raw, err := ctxsync.EncodeMessages(rec.Messages)
	if err != nil {
		return fmt.Errorf("%w: %w", ctxsync.ErrStorageUnavailable, err)
	}

	savedAt := rec.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	var clearedAt sql.NullInt64
	if rec.ClearedAt != nil {
		clearedAt = sql.NullInt64{Int64: rec.ClearedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, messages, saved_at, cleared_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			messages = excluded.messages,
			saved_at = excluded.saved_at,
			cleared_at = excluded.cleared_at`,
		string(rec.Session), string(raw), savedAt.UnixNano(), clearedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: put conversation: %w", ctxsync.ErrStorageUnavailable, err)
	}
	return nil
}

// Delete drops the conversation for session and leaves a tombstone so a
// stale remote copy can be recognised on the next load.
func (s *Store) Delete(ctx context.Context, session ctxsync.Session) error {
	now := s.now()
	return s.Put(ctx, ctxsync.Record{
		Session:   session,
		SavedAt:   now,
		ClearedAt: &now,
	})
}

// Evict removes records last saved before the given time and returns how
// many were removed.
func (s *Store) Evict(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE saved_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: evict conversations: %w", ctxsync.ErrStorageUnavailable, err)
	}
	return res.RowsAffected()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Ensure Store implements the ctxsync interfaces at compile time.
var (
	_ ctxsync.LocalStore   = (*Store)(nil)
	_ ctxsync.SyncRecorder = (*Store)(nil)
)
