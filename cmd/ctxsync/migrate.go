package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/postgres"
	"github.com/meikuraledutech/ctxsync/sqlite"
)

// migrator is implemented by both sqlite.Store and postgres.PGStore.
type migrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) error
	MigrationStatus(ctx context.Context) ([]ctxsync.MigrationRecord, error)
}

func newMigrateCmd(a *app) *cobra.Command {
	var usePostgres bool

	cmd := &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Apply, revert or list schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var m migrator
			if usePostgres {
				if a.cfg.DatabaseURL == "" {
					return errors.New("DATABASE_URL is not set")
				}
				db, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("connect database: %w", err)
				}
				defer db.Close()
				m = postgres.New(db)
			} else {
				db, err := sqlite.OpenDB(ctx, a.cfg.LocalPath)
				if err != nil {
					return err
				}
				defer db.Close()
				m = sqlite.New(db)
			}

			switch args[0] {
			case "up":
				if err := m.Migrate(ctx); err != nil {
					return err
				}
			case "down":
				if err := m.Rollback(ctx); err != nil {
					return err
				}
			}

			records, err := m.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			return printMigrations(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolVar(&usePostgres, "postgres", false, "migrate the server database at DATABASE_URL")
	return cmd
}

func printMigrations(out io.Writer, records []ctxsync.MigrationRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAPPLIED\tAT")
	for _, r := range records {
		at := "-"
		if r.AppliedAt != nil {
			at = formatTime(*r.AppliedAt)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", r.Name, r.Applied, at)
	}
	return tw.Flush()
}
