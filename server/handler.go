package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/meikuraledutech/ctxsync"
)

// CookieName is the cookie that carries the server-issued session id.
const CookieName = "ctxsync_session"

const maxRequestBytes = 4 << 20

// DefaultContextWindow is how long a context stays live after its last save.
const DefaultContextWindow = 24 * time.Hour

// Handler serves the context API under /api/context.
type Handler struct {
	store     Store
	logger    *log.Logger
	mux       *http.ServeMux
	window    time.Duration
	retention int
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithContextWindow sets how long a context survives without a save.
// Zero disables expiry.
func WithContextWindow(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.window = d
		}
	}
}

// WithRetention caps how many messages the server keeps per session.
// Zero keeps everything the client sends.
func WithRetention(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.retention = n
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler routes the context API to store.
func NewHandler(store Store, logger *log.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = log.Default().WithPrefix("server")
	}
	h := &Handler{
		store:  store,
		logger: logger,
		mux:    http.NewServeMux(),
		window: DefaultContextWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /api/context/session-id", h.sessionID)
	h.mux.HandleFunc("GET /api/context/load", h.load)
	h.mux.HandleFunc("POST /api/context/save", h.save)
	h.mux.HandleFunc("POST /api/context/clear", h.clear)
	h.mux.HandleFunc("GET /api/context/summary", h.summary)
	h.mux.HandleFunc("GET /api/context/recent", h.recent)
	h.mux.HandleFunc("POST /api/context/append", h.appendMessage)
	h.mux.HandleFunc("GET /api/context/keywords", h.keywords)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// session returns the caller's session, issuing a new cookie when the
// request carries none or a malformed one.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) ctxsync.Session {
	if c, err := r.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return ctxsync.Session(c.Value)
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Debug("issued session", "session", id)
	return ctxsync.Session(id)
}

// live loads the session's context, deleting it when it has outlived the
// context window.
func (h *Handler) live(ctx context.Context, session ctxsync.Session) (*ctxsync.Record, error) {
	rec, err := h.store.LoadContext(ctx, session)
	if err != nil || rec == nil {
		return rec, err
	}
	if h.window > 0 && !rec.SavedAt.IsZero() && rec.SavedAt.Before(h.now().Add(-h.window)) {
		if err := h.store.ClearContext(ctx, session); err != nil {
			return nil, err
		}
		h.logger.Debug("context expired", "session", session, "saved_at", rec.SavedAt)
		return nil, nil
	}
	return rec, nil
}

func (h *Handler) trim(msgs []ctxsync.Message) []ctxsync.Message {
	if h.retention > 0 && len(msgs) > h.retention {
		return msgs[len(msgs)-h.retention:]
	}
	return msgs
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": session,
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	rec, err := h.live(r.Context(), session)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error loading context", session, err)
		return
	}

	if rec.Empty() {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "success",
			"data":        nil,
			"has_context": false,
			"message":     "No context found for this session",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"has_context": true,
		"data": map[string]any{
			"session_id":    session,
			"context_data":  rec.Messages,
			"message_count": len(rec.Messages),
			"last_active":   rec.SavedAt,
		},
	})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	var body struct {
		Messages *[]ctxsync.Message `json:"messages"`
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body", session, err)
		return
	}
	if body.Messages == nil {
		h.fail(w, http.StatusBadRequest, "Missing messages in request body", session, errors.New("missing messages"))
		return
	}

	rec, err := h.store.SaveContext(r.Context(), session, h.trim(*body.Messages))
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to save context", session, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       "Context saved successfully",
		"session_id":    session,
		"message_count": len(rec.Messages),
	})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	if err := h.store.ClearContext(r.Context(), session); err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to clear context", session, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Context cleared successfully",
		"session_id": session,
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	rec, err := h.live(r.Context(), session)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error getting summary", session, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"summary":    ctxsync.Summarize(rec),
		"session_id": session,
	})
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	limit := queryInt(r, "limit", 10, 1, 50)

	rec, err := h.live(r.Context(), session)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error getting recent messages", session, err)
		return
	}

	msgs := []ctxsync.Message{}
	if !rec.Empty() {
		msgs = rec.Messages[max(len(rec.Messages)-limit, 0):]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"messages":   msgs,
		"count":      len(msgs),
		"session_id": session,
	})
}

func (h *Handler) appendMessage(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	var msg ctxsync.Message
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&msg); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body", session, err)
		return
	}
	if msg.Sender == "" || msg.Text == "" {
		h.fail(w, http.StatusBadRequest, "Missing sender or text in request body", session, errors.New("missing sender or text"))
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now().UTC()
	}

	rec, err := h.live(r.Context(), session)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to append message", session, err)
		return
	}
	var msgs []ctxsync.Message
	if rec != nil {
		msgs = rec.Messages
	}
	msgs = append(msgs, msg)

	if _, err := h.store.SaveContext(r.Context(), session, h.trim(msgs)); err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to append message", session, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Message appended to context",
		"session_id": session,
	})
}

func (h *Handler) keywords(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	topN := queryInt(r, "top_n", 10, 1, 50)

	rec, err := h.live(r.Context(), session)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Error extracting keywords", session, err)
		return
	}

	keywords := []string{}
	if rec != nil {
		keywords = append(keywords, ctxsync.ExtractKeywords(rec.Messages, topN)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"keywords":   keywords,
		"count":      len(keywords),
		"session_id": session,
	})
}

// queryInt reads an integer query parameter clamped to [lo, hi]. Missing or
// malformed values fall back to def.
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return min(max(n, lo), hi)
}

func (h *Handler) fail(w http.ResponseWriter, code int, msg string, session ctxsync.Session, err error) {
	h.logger.Error(msg, "session", session, "error", err)
	writeJSON(w, code, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
