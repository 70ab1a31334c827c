package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCmd(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ctx.db")

	out, err := execute(t, "migrate", "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "001_conversations")
	assert.Contains(t, out, "false")

	out, err = execute(t, "migrate", "up", "--db", db)
	require.NoError(t, err)
	assert.NotContains(t, out, "false")

	out, err = execute(t, "migrate", "down", "--db", db)
	require.NoError(t, err)
	assert.Regexp(t, `003_client_state\s+false`, out)

	_, err = execute(t, "migrate", "sideways", "--db", db)
	assert.Error(t, err)
}

func TestPruneAndSyncLogCmds(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "ctx.db")

	local, err := sqlite.Open(ctx, db)
	require.NoError(t, err)
	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, local.Put(ctx, ctxsync.Record{Session: "old", SavedAt: old}))
	require.NoError(t, local.Put(ctx, ctxsync.Record{Session: "new", SavedAt: time.Now()}))
	require.NoError(t, local.RecordSync(ctx, ctxsync.SyncEvent{
		Session: "new", Tier: ctxsync.TierRemote, Op: ctxsync.OpSave,
		Status: ctxsync.StatusFailed, FailReason: ctxsync.FailReasonTimeout, MessageCount: 3,
	}))
	require.NoError(t, local.Close())

	out, err := execute(t, "prune", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "evicted 1 conversations\n", out)

	_, err = execute(t, "prune", "--db", db, "--older-than", "0s")
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "")
	_, err = execute(t, "prune", "--server", "--older-than", "168h")
	assert.ErrorContains(t, err, "DATABASE_URL")

	out, err = execute(t, "synclog", "--db", db, "--session", "new")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "remote")
}
