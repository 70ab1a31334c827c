package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/server"
)

// SaveContext replaces the stored conversation for session.
func (s *PGStore) SaveContext(ctx context.Context, session ctxsync.Session, msgs []ctxsync.Message) (*ctxsync.Record, error) {
	raw, err := ctxsync.EncodeMessages(msgs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ctxsync: begin save context: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := touchSession(ctx, tx, session); err != nil {
		return nil, err
	}

	rec := &ctxsync.Record{Session: session, Messages: msgs}
	err = tx.QueryRow(ctx,
		`INSERT INTO ctx_contexts (session_id, context_data, message_count, saved_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (session_id) DO UPDATE SET
			context_data = EXCLUDED.context_data,
			message_count = EXCLUDED.message_count,
			saved_at = EXCLUDED.saved_at
		 RETURNING saved_at`,
		string(session), json.RawMessage(raw), len(msgs),
	).Scan(&rec.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("ctxsync: save context: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ctxsync: commit save context: %w", err)
	}
	return rec, nil
}

// LoadContext returns the stored conversation, or nil when there is none.
func (s *PGStore) LoadContext(ctx context.Context, session ctxsync.Session) (*ctxsync.Record, error) {
	rec := &ctxsync.Record{Session: session}
	var raw []byte

	err := s.db.QueryRow(ctx,
		`SELECT context_data, saved_at FROM ctx_contexts WHERE session_id = $1`,
		string(session),
	).Scan(&raw, &rec.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ctxsync: load context: %w", err)
	}

	if rec.Messages, err = ctxsync.DecodeMessages(raw); err != nil {
		return nil, err
	}
	return rec, nil
}

// ClearContext deletes the stored conversation. The session row stays.
func (s *PGStore) ClearContext(ctx context.Context, session ctxsync.Session) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM ctx_contexts WHERE session_id = $1`, string(session)); err != nil {
		return fmt.Errorf("ctxsync: clear context: %w", err)
	}
	return nil
}

// Expire deletes contexts last saved before the cutoff. Session rows stay.
func (s *PGStore) Expire(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM ctx_contexts WHERE saved_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ctxsync: expire contexts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure PGStore implements server.Store at compile time.
var _ server.Store = (*PGStore)(nil)
