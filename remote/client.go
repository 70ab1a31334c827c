// Package remote talks to the authoritative context API over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/meikuraledutech/ctxsync"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// CookieName is the cookie the server keys sessions on.
const CookieName = "ctxsync_session"

// Endpoint paths, relative to the base URL.
const (
	PathSessionID = "/api/context/session-id"
	PathLoad      = "/api/context/load"
	PathSave      = "/api/context/save"
	PathClear     = "/api/context/clear"
	PathSummary   = "/api/context/summary"
	PathRecent    = "/api/context/recent"
	PathAppend    = "/api/context/append"
	PathKeywords  = "/api/context/keywords"
)

// Client implements ctxsync.RemoteStore and ctxsync.IdentitySource. The
// server keys everything on a session cookie, which the client keeps in
// its cookie jar.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string) *Client {
	// cookiejar.New only fails on a bad PublicSuffixList, and we pass none.
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar},
		timeout: defaultTimeout,
		logger:  log.Default().WithPrefix("remote"),
	}
}

// WithHTTPClient replaces the underlying HTTP client. A client without a
// cookie jar gets the current one. A nil client is ignored.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc == nil {
		return c
	}
	cp := *hc
	if cp.Jar == nil {
		cp.Jar = c.client.Jar
	}
	c.client = &cp
	return c
}

// WithTimeout bounds every call. Zero leaves calls bounded only by their context.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// WithLogger sets the client logger.
func (c *Client) WithLogger(logger *log.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// SetSessionCookie seeds the jar with a session cookie kept from an
// earlier run. An empty value is ignored.
func (c *Client) SetSessionCookie(value string) {
	u, err := url.Parse(c.baseURL + "/")
	if value == "" || err != nil || c.client.Jar == nil {
		return
	}
	c.client.Jar.SetCookies(u, []*http.Cookie{{Name: CookieName, Value: value, Path: "/"}})
}

// SessionCookie returns the session cookie the server issued, or "".
func (c *Client) SessionCookie() string {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil || c.client.Jar == nil {
		return ""
	}
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == CookieName {
			return ck.Value
		}
	}
	return ""
}

// SessionID asks the server for the session bound to our cookie.
func (c *Client) SessionID(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, PathSessionID, nil)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "session_id").String()
	if id == "" {
		return "", fmt.Errorf("%w: empty session id", ctxsync.ErrRemoteUnavailable)
	}
	return id, nil
}

// Load fetches the stored conversation. It returns nil, nil when the server
// has none.
func (c *Client) Load(ctx context.Context) (*ctxsync.Record, error) {
	body, err := c.do(ctx, http.MethodGet, PathLoad, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(body, "has_context").Bool() {
		return nil, nil
	}

	data := gjson.GetBytes(body, "data")
	msgs, err := ctxsync.DecodeMessages([]byte(data.Get("context_data").Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxsync.ErrRemoteUnavailable, err)
	}

	rec := &ctxsync.Record{
		Session:  ctxsync.Session(data.Get("session_id").String()),
		Messages: msgs,
	}
	if at := data.Get("last_active"); at.Exists() {
		rec.SavedAt = at.Time()
	}
	return rec, nil
}

// Save replaces the server's conversation with msgs.
func (c *Client) Save(ctx context.Context, msgs []ctxsync.Message) error {
	if msgs == nil {
		msgs = []ctxsync.Message{}
	}
	_, err := c.do(ctx, http.MethodPost, PathSave, map[string]any{"messages": msgs})
	return err
}

// Clear deletes the server's conversation.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathClear, nil)
	return err
}

// Summary returns per-role counts for the server's conversation.
func (c *Client) Summary(ctx context.Context) (*ctxsync.Summary, error) {
	body, err := c.do(ctx, http.MethodGet, PathSummary, nil)
	if err != nil {
		return nil, err
	}
	var s ctxsync.Summary
	if err := json.Unmarshal([]byte(gjson.GetBytes(body, "summary").Raw), &s); err != nil {
		return nil, fmt.Errorf("%w: parse summary: %w", ctxsync.ErrRemoteUnavailable, err)
	}
	return &s, nil
}

// Recent returns up to limit of the server's newest messages, oldest first.
// The server clamps limit to 1..50.
func (c *Client) Recent(ctx context.Context, limit int) ([]ctxsync.Message, error) {
	body, err := c.do(ctx, http.MethodGet, PathRecent+"?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}
	msgs, err := ctxsync.DecodeMessages([]byte(gjson.GetBytes(body, "messages").Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxsync.ErrRemoteUnavailable, err)
	}
	return msgs, nil
}

// Append adds one message to the server's conversation without resending
// the rest. A zero timestamp is filled in by the server.
func (c *Client) Append(ctx context.Context, msg ctxsync.Message) error {
	payload := map[string]any{"sender": msg.Sender, "text": msg.Text}
	if !msg.Timestamp.IsZero() {
		payload["timestamp"] = msg.Timestamp
	}
	_, err := c.do(ctx, http.MethodPost, PathAppend, payload)
	return err
}

// Keywords returns the server's most frequent words for this session.
func (c *Client) Keywords(ctx context.Context, topN int) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, PathKeywords+"?top_n="+strconv.Itoa(topN), nil)
	if err != nil {
		return nil, err
	}
	var words []string
	for _, w := range gjson.GetBytes(body, "keywords").Array() {
		words = append(words, w.String())
	}
	return words, nil
}

// do performs one request and returns the body of a successful envelope.
// Every failure wraps ctxsync.ErrRemoteUnavailable.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %w", ctxsync.ErrRemoteUnavailable, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ctxsync.ErrRemoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ctxsync.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ctxsync.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d: %s",
			ctxsync.ErrRemoteUnavailable, method, path, resp.StatusCode, errorMessage(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s %s: invalid JSON response", ctxsync.ErrRemoteUnavailable, method, path)
	}
	if status := gjson.GetBytes(body, "status").String(); status != "success" {
		return nil, fmt.Errorf("%w: %s %s: status %q: %s",
			ctxsync.ErrRemoteUnavailable, method, path, status, errorMessage(body))
	}

	c.logger.Debug("remote call done", "method", method, "path", path, "bytes", len(body))
	return body, nil
}

func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		return msg.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// Ensure Client implements the ctxsync interfaces at compile time.
var (
	_ ctxsync.RemoteStore    = (*Client)(nil)
	_ ctxsync.IdentitySource = (*Client)(nil)
)
