package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/ctxsync"
	"github.com/meikuraledutech/ctxsync/server"
)

func newTestClient(url string) *Client {
	return New(url).WithLogger(log.New(io.Discard)).WithTimeout(2 * time.Second)
}

func TestClient_AgainstServer(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(server.NewHandler(server.NewMemoryStore(), log.New(io.Discard)))
	defer srv.Close()

	c := newTestClient(srv.URL + "/")

	id, err := c.SessionID(ctx)
	require.NoError(t, err)
	again, err := c.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again, "cookie jar keeps the session")

	rec, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ctxsync.Message{
		{Sender: ctxsync.RoleUser, Text: "hi", Timestamp: ts},
		{Sender: ctxsync.RoleAssistant, Text: "hello", Timestamp: ts.Add(time.Second)},
	}
	require.NoError(t, c.Save(ctx, msgs))

	rec, err = c.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ctxsync.Session(id), rec.Session)
	assert.Equal(t, msgs, rec.Messages)
	assert.False(t, rec.SavedAt.IsZero())

	sum, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Exists)
	assert.Equal(t, 2, sum.MessageCount)

	require.NoError(t, c.Clear(ctx))
	rec, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	other := newTestClient(srv.URL)
	otherID, err := other.SessionID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, otherID)
}

func TestClient_SaveNilSendsEmptyArray(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		io.WriteString(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).Save(context.Background(), nil))
	assert.JSONEq(t, `{"messages":[]}`, got)
}

func TestClient_LoadLegacySender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"status": "success",
			"has_context": true,
			"data": {
				"session_id": "abc",
				"context_data": [{"sender":"bot","text":"old reply","timestamp":"2025-12-01T10:00:00Z"}],
				"message_count": 1,
				"last_active": "2025-12-01T10:00:05Z"
			}
		}`)
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, ctxsync.RoleAssistant, rec.Messages[0].Sender)
	assert.Equal(t, time.Date(2025, 12, 1, 10, 0, 5, 0, time.UTC), rec.SavedAt.UTC())
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		errText string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `{"status":"error","message":"Error loading context"}`)
			},
			errText: "Error loading context",
		},
		{
			name: "error envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"status":"error","message":"nope"}`)
			},
			errText: "nope",
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `<html>proxy</html>`)
			},
			errText: "invalid JSON",
		},
		{
			name: "corrupt context",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"status":"success","has_context":true,"data":{"context_data":[{"sender":"robot"}]}}`)
			},
			errText: "invalid role",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ctxsync.ErrRemoteUnavailable)
			assert.ErrorContains(t, err, tt.errText)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := newTestClient(srv.URL).WithTimeout(20*time.Millisecond).Clear(context.Background())
	require.ErrorIs(t, err, ctxsync.ErrRemoteUnavailable)
	assert.Equal(t, ctxsync.FailReasonTimeout, ctxsync.ClassifyError(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).SessionID(context.Background())
	require.ErrorIs(t, err, ctxsync.ErrRemoteUnavailable)
	assert.Equal(t, ctxsync.FailReasonNetworkError, ctxsync.ClassifyError(err))
}

func TestClient_EmptySessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","session_id":""}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SessionID(context.Background())
	assert.ErrorIs(t, err, ctxsync.ErrRemoteUnavailable)
}

func TestClient_SessionCookieSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(server.NewHandler(server.NewMemoryStore(), log.New(io.Discard)))
	defer srv.Close()
	require.Equal(t, server.CookieName, CookieName)

	first := newTestClient(srv.URL)
	assert.Empty(t, first.SessionCookie())
	id, err := first.SessionID(ctx)
	require.NoError(t, err)
	cookie := first.SessionCookie()
	require.Equal(t, id, cookie)

	second := newTestClient(srv.URL)
	second.SetSessionCookie(cookie)
	again, err := second.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	second.SetSessionCookie("")
	assert.Equal(t, cookie, second.SessionCookie())
}

func TestClient_WithHTTPClient(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(server.NewHandler(server.NewMemoryStore(), log.New(io.Discard)))
	defer srv.Close()

	c := newTestClient(srv.URL).WithHTTPClient(nil)
	id, err := c.SessionID(ctx)
	require.NoError(t, err)

	c.WithHTTPClient(&http.Client{Timeout: time.Second})
	again, err := c.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again, "a client without a jar keeps the current one")
}

func TestClient_AppendRecentKeywords(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(server.NewHandler(server.NewMemoryStore(), log.New(io.Discard)))
	defer srv.Close()
	c := newTestClient(srv.URL)

	words, err := c.Keywords(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, words)

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, c.Append(ctx, ctxsync.Message{Sender: ctxsync.RoleUser, Text: "library hours", Timestamp: ts}))
	require.NoError(t, c.Append(ctx, ctxsync.Message{Sender: ctxsync.RoleAssistant, Text: "The library opens at nine"}))
	require.NoError(t, c.Append(ctx, ctxsync.Message{Sender: ctxsync.RoleUser, Text: "thanks"}))

	recent, err := c.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "The library opens at nine", recent[0].Text)
	assert.False(t, recent[1].Timestamp.IsZero(), "server stamps missing timestamps")

	all, err := c.Recent(ctx, 50)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.Equal(ts))

	words, err = c.Keywords(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "hours"}, words)

	err = c.Append(ctx, ctxsync.Message{Sender: ctxsync.RoleUser})
	require.ErrorIs(t, err, ctxsync.ErrRemoteUnavailable)
	assert.ErrorContains(t, err, "Missing sender or text")
}
