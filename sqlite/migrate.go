package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/internal/migrations"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations in order, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := migrations.Up(ctx, s.driver(), files); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// Rollback reverts the last applied migration.
func (s *Store) Rollback(ctx context.Context) error {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := migrations.Down(ctx, s.driver(), files); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// MigrationStatus returns all known migrations with their applied status.
func (s *Store) MigrationStatus(ctx context.Context) ([]ctxsync.MigrationRecord, error) {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	records, err := migrations.Status(ctx, s.driver(), files)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return records, nil
}

func (s *Store) driver() migrations.Driver {
	return &driver{db: s.db, now: s.now}
}

// driver keeps the tracking table with applied_at in unix nanos, like every
// other timestamp in the file.
type driver struct {
	db  *sql.DB
	now func() time.Time
}

func (d *driver) EnsureTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ctx_migrations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			applied_at INTEGER NOT NULL,
			checksum   TEXT NOT NULL
		)`)
	return err
}

func (d *driver) Applied(ctx context.Context) ([]migrations.Applied, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name, applied_at, checksum FROM ctx_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []migrations.Applied
	for rows.Next() {
		var a migrations.Applied
		var at int64
		if err := rows.Scan(&a.Name, &at, &a.Checksum); err != nil {
			return nil, err
		}
		a.AppliedAt = fromNanos(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *driver) Apply(ctx context.Context, f migrations.File) error {
	return d.inTx(ctx, f.Up,
		`INSERT INTO ctx_migrations (name, applied_at, checksum) VALUES (?, ?, ?)`,
		f.Name, d.now().UnixNano(), f.Checksum)
}

func (d *driver) Revert(ctx context.Context, f migrations.File) error {
	return d.inTx(ctx, f.Down, `DELETE FROM ctx_migrations WHERE name = ?`, f.Name)
}

// inTx runs script then the bookkeeping statement, committing both or neither.
func (d *driver) inTx(ctx context.Context, script, stmt string, args ...any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return err
	}
	return tx.Commit()
}
