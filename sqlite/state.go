package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StateSessionCookie holds the server session cookie between runs.
const StateSessionCookie = "session_cookie"

// GetState returns the value stored under key, or "" when unset.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get state %s: %w", key, err)
	}
	return v, nil
}

// SetState stores value under key. An empty value removes the key.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, s.now().UnixNano())
	}
	if err != nil {
		return fmt.Errorf("sqlite: set state %s: %w", key, err)
	}
	return nil
}
