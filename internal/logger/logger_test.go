package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		" warn ":  log.WarnLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"fatal":   log.FatalLevel,
		"":        log.InfoLevel,
		"bogus":   log.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_EnvLevel(t *testing.T) {
	t.Setenv("CTXSYNC_LOG_LEVEL", "debug")

	l, closer, err := New("", "")
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, log.DebugLevel, l.GetLevel())

	l, closer2, err := New("error", "")
	require.NoError(t, err)
	defer closer2.Close()
	assert.Equal(t, log.ErrorLevel, l.GetLevel(), "argument wins over environment")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxsync.log")

	l, closer, err := New("info", path)
	require.NoError(t, err)
	l.Info("hello", "tier", "local")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "tier=local")
}
