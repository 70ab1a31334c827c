package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync/postgres"
	"github.com/meikuraledutech/ctxsync/sqlite"
)

func newPruneCmd(a *app) *cobra.Command {
	var (
		olderThan time.Duration
		onServer  bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict conversations not saved recently",
		Long: "Evict conversations not saved recently. By default the local database is pruned;\n" +
			"--server prunes the server's postgres store named by DATABASE_URL instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cutoff := time.Now().Add(-olderThan)

			if onServer {
				if a.cfg.DatabaseURL == "" {
					return fmt.Errorf("--server needs DATABASE_URL")
				}
				db, err := pgxpool.New(cmd.Context(), a.cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("connect database: %w", err)
				}
				defer db.Close()

				n, err := postgres.New(db).Expire(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				a.logger.Info("pruned server contexts", "count", n, "before", cutoff)
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d server contexts\n", n)
				return nil
			}

			local, err := sqlite.Open(cmd.Context(), a.cfg.LocalPath)
			if err != nil {
				return err
			}
			defer local.Close()

			n, err := local.Evict(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d conversations\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "evict records last saved before now minus this")
	cmd.Flags().BoolVar(&onServer, "server", false, "prune the server database instead of the local one")
	return cmd
}
