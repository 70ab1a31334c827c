package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/internal/logger"
)

// app carries what every subcommand needs.
type app struct {
	cfg      ctxsync.Config
	logger   *log.Logger
	closer   io.Closer
	logLevel string
	logFile  string
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: ctxsync.LoadConfig()}

	root := &cobra.Command{
		Use:           "ctxsync",
		Short:         "Conversation context kept in sync across memory, a local file and a server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logLevel == "" {
				a.logLevel = a.cfg.LogLevel
			}
			l, closer, err := logger.New(a.logLevel, a.logFile)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			a.logger, a.closer = l, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "append logs to this file instead of stderr")
	root.PersistentFlags().StringVar(&a.cfg.LocalPath, "db", a.cfg.LocalPath, "local SQLite database path")

	root.AddCommand(
		newChatCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
		newPruneCmd(a),
		newSyncLogCmd(a),
	)
	return root
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
