// Package postgres is a server.Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/ctxsync"
)

// PGStore keeps one context row per session.
type PGStore struct {
	db *pgxpool.Pool
}

// New wraps a pgx pool. Call CreateSchema before use.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// SessionInfo describes a session known to the server.
type SessionInfo struct {
	ID         ctxsync.Session
	CreatedAt  time.Time
	LastActive time.Time
}

// touchSession registers the session or bumps its last activity.
func touchSession(ctx context.Context, tx pgx.Tx, session ctxsync.Session) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ctx_sessions (id) VALUES ($1)
		 ON CONFLICT (id) DO UPDATE SET last_active = NOW()`,
		string(session),
	)
	if err != nil {
		return fmt.Errorf("ctxsync: touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PGStore) GetSession(ctx context.Context, session ctxsync.Session) (*SessionInfo, error) {
	info := &SessionInfo{ID: session}

	err := s.db.QueryRow(ctx,
		`SELECT created_at, last_active FROM ctx_sessions WHERE id = $1`,
		string(session),
	).Scan(&info.CreatedAt, &info.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ctxsync: get session: %w", err)
	}

	return info, nil
}

// ErrSessionNotFound is returned by GetSession for unknown ids.
var ErrSessionNotFound = errors.New("ctxsync: session not found")
