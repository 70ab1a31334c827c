// Package logger builds the charmbracelet loggers used by the ctxsync CLI.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to stderr, or appending to file when set.
// Level precedence: level argument, then CTXSYNC_LOG_LEVEL, then info.
func New(level, file string) (*log.Logger, io.Closer, error) {
	if level == "" {
		level = os.Getenv("CTXSYNC_LOG_LEVEL")
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	}

	l := log.NewWithOptions(out, log.Options{Prefix: "ctxsync"})
	l.SetTimeFormat("")
	l.SetLevel(ParseLevel(level))
	return l, closer, nil
}

// ParseLevel maps a level name to a log.Level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that writes nothing, for tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
