package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/sqlite"
)

func newSyncLogCmd(a *app) *cobra.Command {
	var (
		session string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "synclog",
		Short: "Show recorded tier operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := sqlite.Open(cmd.Context(), a.cfg.LocalPath)
			if err != nil {
				return err
			}
			defer local.Close()

			events, err := local.ListSyncEvents(cmd.Context(), ctxsync.Session(session), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tSESSION\tTIER\tOP\tSTATUS\tCOUNT\tREASON")
			for _, ev := range events {
				reason := ev.FailReason
				if reason == "" {
					reason = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					formatTime(ev.CreatedAt), ev.Session, ev.Tier, ev.Op, ev.Status, ev.MessageCount, reason)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only this session")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events (0 for all)")
	return cmd
}
