package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/internal/migrations"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations in order, within transactions.
func (s *PGStore) Migrate(ctx context.Context) error {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ctxsync: %w", err)
	}
	if err := migrations.Up(ctx, driver{s.db}, files); err != nil {
		return fmt.Errorf("ctxsync: %w", err)
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (s *PGStore) Rollback(ctx context.Context) error {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ctxsync: %w", err)
	}
	if err := migrations.Down(ctx, driver{s.db}, files); err != nil {
		return fmt.Errorf("ctxsync: %w", err)
	}
	return nil
}

// MigrationStatus returns all migrations with their applied status.
func (s *PGStore) MigrationStatus(ctx context.Context) ([]ctxsync.MigrationRecord, error) {
	files, err := migrations.Load(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("ctxsync: %w", err)
	}
	records, err := migrations.Status(ctx, driver{s.db}, files)
	if err != nil {
		return nil, fmt.Errorf("ctxsync: %w", err)
	}
	return records, nil
}

type driver struct {
	db *pgxpool.Pool
}

func (d driver) EnsureTable(ctx context.Context) error {
	_, err := d.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ctx_migrations (
			id         SERIAL PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checksum   TEXT NOT NULL
		)`)
	return err
}

func (d driver) Applied(ctx context.Context) ([]migrations.Applied, error) {
	rows, err := d.db.Query(ctx, `SELECT name, applied_at, checksum FROM ctx_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (migrations.Applied, error) {
		var a migrations.Applied
		err := row.Scan(&a.Name, &a.AppliedAt, &a.Checksum)
		return a, err
	})
}

func (d driver) Apply(ctx context.Context, f migrations.File) error {
	return pgx.BeginFunc(ctx, d.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, f.Up); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO ctx_migrations (name, checksum) VALUES ($1, $2)`, f.Name, f.Checksum)
		return err
	})
}

func (d driver) Revert(ctx context.Context, f migrations.File) error {
	return pgx.BeginFunc(ctx, d.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, f.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM ctx_migrations WHERE name = $1`, f.Name)
		return err
	})
}
