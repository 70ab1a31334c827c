package sqlite

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/ctxsync"
)

// RecordSync appends one tier outcome to the sync log.
func (s *Store) RecordSync(ctx context.Context, ev ctxsync.SyncEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (
			session_id, tier, op, status, fail_reason,
			error_message, message_count, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Session), string(ev.Tier), ev.Op, ev.Status, ev.FailReason,
		ev.ErrorMessage, ev.MessageCount, createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record sync: %w", err)
	}
	return nil
}

// ListSyncEvents returns the newest events first. An empty session lists
// every session; limit <= 0 means no limit.
func (s *Store) ListSyncEvents(ctx context.Context, session ctxsync.Session, limit int) ([]ctxsync.SyncEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tier, op, status, fail_reason, error_message, message_count, created_at
		FROM sync_log
		WHERE ? = '' OR session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		string(session), string(session), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sync events: %w", err)
	}
	defer rows.Close()

	var events []ctxsync.SyncEvent
	for rows.Next() {
		var ev ctxsync.SyncEvent
		var sid, tier string
		var at int64
		if err := rows.Scan(&ev.ID, &sid, &tier, &ev.Op, &ev.Status, &ev.FailReason,
			&ev.ErrorMessage, &ev.MessageCount, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan sync event: %w", err)
		}
		ev.Session = ctxsync.Session(sid)
		ev.Tier = ctxsync.Tier(tier)
		ev.CreatedAt = fromNanos(at)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list sync events: %w", err)
	}
	return events, nil
}
