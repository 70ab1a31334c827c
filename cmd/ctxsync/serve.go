package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync/postgres"
	"github.com/meikuraledutech/ctxsync/server"
)

func newServeCmd(a *app) *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoritative context API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var store server.Store
			if a.cfg.DatabaseURL != "" && !memory {
				db, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("connect database: %w", err)
				}
				defer db.Close()

				pg := postgres.New(db)
				if err := pg.CreateSchema(ctx); err != nil {
					return err
				}
				store = pg
				a.logger.Info("using postgres store")
			} else {
				store = server.NewMemoryStore()
				a.logger.Info("using in-memory store")
			}

			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler: server.NewHandler(store, a.logger.WithPrefix("server"),
					server.WithContextWindow(a.cfg.ContextWindow),
					server.WithRetention(a.cfg.RetentionLimit),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			a.logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&a.cfg.ListenAddr, "addr", a.cfg.ListenAddr, "listen address")
	cmd.Flags().BoolVar(&memory, "memory", false, "keep contexts in memory even when DATABASE_URL is set")
	cmd.Flags().DurationVar(&a.cfg.ContextWindow, "context-window", a.cfg.ContextWindow, "drop contexts not saved within this long (0 keeps them)")
	return cmd
}
