package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/remote"
	"github.com/meikuraledutech/ctxsync/sqlite"
)

func newChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-oriented chat whose history survives restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&a.cfg.ServerURL, "server", a.cfg.ServerURL, "context API base URL")
	cmd.Flags().IntVar(&a.cfg.RetentionLimit, "retention", a.cfg.RetentionLimit, "messages kept in memory")
	cmd.Flags().DurationVar(&a.cfg.AutosaveInterval, "autosave", a.cfg.AutosaveInterval, "autosave period (0 disables)")
	return cmd
}

func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	local, err := sqlite.Open(ctx, cfg.LocalPath)
	store := ctxsync.LocalOrUnavailable(local, err)
	opts := []ctxsync.Option{
		ctxsync.WithConfig(cfg),
		ctxsync.WithLogger(a.logger.WithPrefix("engine")),
		ctxsync.WithRestore(func(msgs []ctxsync.Message) {
			for _, m := range msgs {
				fmt.Fprintf(out, "%s> %s\n", m.Sender, m.Text)
			}
		}),
		ctxsync.WithNotify(func(text string) {
			fmt.Fprintf(out, "* %s\n", text)
		}),
	}
	if err != nil {
		a.logger.Warn("local store unavailable, continuing without it", "path", cfg.LocalPath, "error", err)
	} else {
		defer local.Close()
		opts = append(opts, ctxsync.WithSyncRecorder(local))
	}

	client := remote.New(cfg.ServerURL).
		WithTimeout(cfg.TierTimeout).
		WithLogger(a.logger.WithPrefix("remote"))
	opts = append(opts, ctxsync.WithIdentity(client))

	if local != nil {
		if cookie, err := local.GetState(ctx, sqlite.StateSessionCookie); err != nil {
			a.logger.Warn("could not read saved session", "error", err)
		} else {
			client.SetSessionCookie(cookie)
		}
	}

	engine := ctxsync.New(store, client, opts...)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close(context.WithoutCancel(ctx))

	if cookie := client.SessionCookie(); local != nil && cookie != "" {
		if err := local.SetState(ctx, sqlite.StateSessionCookie, cookie); err != nil {
			a.logger.Warn("could not save session", "error", err)
		}
	}

	fmt.Fprintf(out, "session %s, %d messages. /help for commands.\n", engine.Session(), engine.MessageCount())

	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, engine, client, line, out); quit {
				return nil
			}
		}
	}
}

// readLines feeds lines from in until EOF or until ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// handleLine runs one REPL line and reports whether the session should end.
func handleLine(ctx context.Context, engine *ctxsync.Engine, client *remote.Client, line string, out io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		engine.AddMessage(ctxsync.RoleUser, line)
		reply := fmt.Sprintf("Noted. %d messages in context.", min(engine.MessageCount()+1, engine.Retention()))
		engine.AddMessage(ctxsync.RoleAssistant, reply)
		fmt.Fprintf(out, "assistant> %s\n", reply)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, "/count  /recent [n]  /summary  /keywords [n]  /export [json|txt]  /save  /clear  /quit")
	case "/count":
		fmt.Fprintf(out, "%d messages, state %s\n", engine.MessageCount(), engine.State())
	case "/recent":
		n := 10
		if len(fields) > 1 {
			fmt.Sscanf(fields[1], "%d", &n)
		}
		for _, m := range engine.RecentMessages(n) {
			fmt.Fprintf(out, "%s %s> %s\n", formatTime(m.Timestamp), m.Sender, m.Text)
		}
	case "/summary":
		s, err := client.Summary(ctx)
		if err != nil {
			fmt.Fprintf(out, "summary unavailable: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "server: %d messages (%d user, %d assistant), last active %s\n",
			s.MessageCount, s.UserMessages, s.AssistantMessages, formatTime(s.LastActive))
	case "/keywords":
		n := 10
		if len(fields) > 1 {
			fmt.Sscanf(fields[1], "%d", &n)
		}
		words, err := client.Keywords(ctx, n)
		if err != nil {
			words = ctxsync.ExtractKeywords(engine.RecentMessages(engine.Retention()), n)
			fmt.Fprintf(out, "keywords (local): %s\n", strings.Join(words, ", "))
			return false
		}
		fmt.Fprintf(out, "keywords: %s\n", strings.Join(words, ", "))
	case "/export":
		x := engine.Export()
		if len(fields) > 1 && fields[1] == "txt" {
			_ = x.WriteText(out)
			return false
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(x)
	case "/save":
		engine.Flush(ctx)
		fmt.Fprintln(out, "saved")
	case "/clear":
		engine.ClearContext(ctx)
		fmt.Fprintln(out, "context cleared")
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}
