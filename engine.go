package ctxsync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// RestoreFunc receives the conversation adopted at startup.
type RestoreFunc func(msgs []Message)

// NotifyFunc shows a short message to the user.
type NotifyFunc func(text string)

// Engine keeps the in-memory working set of one conversation in step with
// a local and a remote durable tier.
//
// Tier failures never leave the engine: they are logged, recorded through
// the optional SyncRecorder, and the algorithm continues with whatever
// tiers answered.
type Engine struct {
	local    LocalStore
	remote   RemoteStore
	identity IdentitySource
	restore  RestoreFunc
	notify   NotifyFunc
	recorder SyncRecorder
	logger   *log.Logger
	now      func() time.Time

	limit           int
	interval        time.Duration
	tierTimeout     time.Duration
	teardownTimeout time.Duration

	mu         sync.Mutex
	state      State
	session    Session
	messages   []Message
	modifiedAt time.Time
	rev        uint64
	restored   bool

	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig applies the engine-related fields of cfg.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.RetentionLimit > 0 {
			e.limit = cfg.RetentionLimit
		}
		e.interval = cfg.AutosaveInterval
		if cfg.TierTimeout > 0 {
			e.tierTimeout = cfg.TierTimeout
		}
		if cfg.TeardownTimeout > 0 {
			e.teardownTimeout = cfg.TeardownTimeout
		}
	}
}

// WithRetention sets the maximum number of messages kept in memory.
func WithRetention(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithAutosaveInterval sets the autosave period. Zero disables autosave.
func WithAutosaveInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithTierTimeout bounds every single tier operation.
func WithTierTimeout(d time.Duration) Option {
	return func(e *Engine) { e.tierTimeout = d }
}

// WithIdentity sets the source of server-issued session ids.
func WithIdentity(src IdentitySource) Option {
	return func(e *Engine) { e.identity = src }
}

// WithRestore sets the callback that renders a restored conversation.
func WithRestore(fn RestoreFunc) Option {
	return func(e *Engine) { e.restore = fn }
}

// WithNotify sets the user notification callback.
func WithNotify(fn NotifyFunc) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithSyncRecorder records the outcome of every tier operation.
func WithSyncRecorder(rec SyncRecorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine over the given tiers. A nil local store behaves as
// an unavailable one; a nil remote store is never contacted.
func New(local LocalStore, remote RemoteStore, opts ...Option) *Engine {
	def := DefaultConfig()
	e := &Engine{
		local:           local,
		remote:          remote,
		logger:          log.Default().WithPrefix("ctxsync"),
		now:             time.Now,
		limit:           def.RetentionLimit,
		interval:        def.AutosaveInterval,
		tierTimeout:     def.TierTimeout,
		teardownTimeout: def.TeardownTimeout,
	}
	if e.local == nil {
		e.local = UnavailableStore{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start resolves the session, loads the conversation and starts autosave.
// Only ErrAlreadyStarted is ever returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateUninitialized {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateIdentifying
	e.mu.Unlock()

	session := ResolveSession(ctx, e.identity, e.logger)

	e.mu.Lock()
	e.session = session
	e.state = StateLoading
	e.mu.Unlock()

	e.load(ctx)

	e.mu.Lock()
	e.state = StateReady
	if e.interval > 0 {
		actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.stop = cancel
		e.done = make(chan struct{})
		go e.autosave(actx, e.interval, e.done)
	}
	e.state = StateIdle
	e.mu.Unlock()

	e.logger.Info("context engine ready", "session", session, "count", e.MessageCount())
	return nil
}

func (e *Engine) load(ctx context.Context) {
	remoteRec, _ := e.loadRemote(ctx)
	localRec, _ := e.loadLocal(ctx)

	if !remoteRec.Empty() {
		if localRec.Tombstone() && !remoteRec.SavedAt.IsZero() && !remoteRec.SavedAt.After(*localRec.ClearedAt) {
			e.logger.Warn("remote history predates local clear, discarding",
				"session", e.session, "saved_at", remoteRec.SavedAt, "cleared_at", *localRec.ClearedAt)
			e.clearRemote(ctx)
			return
		}
		e.adopt(remoteRec, TierRemote)
		return
	}

	if !localRec.Empty() {
		msgs := e.adopt(localRec, TierLocal)
		e.saveRemote(ctx, msgs, len(msgs))
		return
	}

	e.logger.Debug("no existing context found", "session", e.session)
}

// adopt replaces the working set with rec and hands it to the restore callback.
func (e *Engine) adopt(rec *Record, from Tier) []Message {
	msgs := rec.Messages
	if len(msgs) > e.limit {
		msgs = msgs[len(msgs)-e.limit:]
	}
	msgs = slices.Clone(msgs)

	e.mu.Lock()
	e.messages = msgs
	e.modifiedAt = rec.SavedAt
	if e.modifiedAt.IsZero() {
		e.modifiedAt = e.now()
	}
	e.rev++
	first := !e.restored
	e.restored = true
	e.mu.Unlock()

	e.logger.Info("context loaded", "tier", from, "count", len(msgs))

	if first {
		if e.restore != nil {
			e.restore(slices.Clone(msgs))
		}
		if e.notify != nil {
			e.notify(fmt.Sprintf("Restored %d messages from previous session", len(msgs)))
		}
	}
	return msgs
}

// AddMessage appends a turn stamped with the current time.
func (e *Engine) AddMessage(sender Role, text string) {
	e.Append(Message{Sender: sender, Text: text})
}

// Append adds msg to the working set, evicting the oldest messages beyond
// the retention limit. A zero timestamp is replaced with the current time.
// It never touches a durable tier.
func (e *Engine) Append(msg Message) {
	if !msg.Sender.Valid() {
		e.logger.Warn("dropping message with unknown sender", "sender", msg.Sender)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	e.messages = append(e.messages, msg)
	if n := len(e.messages); n > e.limit {
		// Copy so the evicted prefix does not pin the old backing array.
		e.messages = slices.Clone(e.messages[n-e.limit:])
	}
	e.modifiedAt = now
	e.rev++
	if e.state.active() {
		e.state = StateDirty
	}
}

// RecentMessages returns a copy of the last limit messages, oldest first.
func (e *Engine) RecentMessages(limit int) []Message {
	if limit <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := max(len(e.messages)-limit, 0)
	return slices.Clone(e.messages[start:])
}

// MessageCount returns the size of the working set.
func (e *Engine) MessageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// Retention returns the maximum number of messages kept in memory.
func (e *Engine) Retention() int {
	return e.limit
}

// HasContext reports whether the working set holds any message.
func (e *Engine) HasContext() bool {
	return e.MessageCount() > 0
}

// Session returns the resolved session, empty before Start.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Flush writes the working set to both tiers when it is non-empty. The
// writes run concurrently and neither waits on the other's outcome.
func (e *Engine) Flush(ctx context.Context) {
	e.mu.Lock()
	if len(e.messages) == 0 || e.session == "" {
		e.mu.Unlock()
		return
	}
	rec := Record{
		Session:  e.session,
		Messages: slices.Clone(e.messages),
		SavedAt:  e.modifiedAt,
	}
	rev := e.rev
	e.mu.Unlock()

	var localOK, remoteOK bool
	var g errgroup.Group
	g.Go(func() error {
		localOK = e.saveLocal(ctx, rec)
		return nil
	})
	g.Go(func() error {
		remoteOK = e.saveRemote(ctx, rec.Messages, len(rec.Messages))
		return nil
	})
	_ = g.Wait()

	e.mu.Lock()
	if localOK && remoteOK && e.state == StateDirty && e.rev == rev {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

// ClearContext empties the working set, then deletes the conversation from
// both tiers. Tier failures are logged only; the in-memory result holds
// regardless.
func (e *Engine) ClearContext(ctx context.Context) {
	e.mu.Lock()
	e.messages = nil
	e.modifiedAt = e.now()
	e.rev++
	session := e.session
	if e.state.active() {
		e.state = StateClearing
	}
	e.mu.Unlock()

	if session != "" {
		var g errgroup.Group
		g.Go(func() error {
			e.deleteLocal(ctx, session)
			return nil
		})
		g.Go(func() error {
			e.clearRemote(ctx)
			return nil
		})
		_ = g.Wait()
	}

	e.mu.Lock()
	if e.state == StateClearing {
		e.state = StateIdle
		if len(e.messages) > 0 {
			e.state = StateDirty
		}
	}
	e.mu.Unlock()

	e.logger.Info("context cleared", "session", session)
}

// Close stops autosave and makes a final flush bounded by the teardown
// timeout. It is safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		started := e.state != StateUninitialized
		stop, done := e.stop, e.done
		e.state = StateFlushing
		e.mu.Unlock()

		if stop != nil {
			stop()
			<-done
		}

		if started {
			fctx, cancel := context.WithTimeout(ctx, e.teardownTimeout)
			e.Flush(fctx)
			cancel()
		}

		e.mu.Lock()
		e.state = StateTerminated
		e.mu.Unlock()
		e.logger.Debug("context engine terminated", "session", e.Session())
	})
	return nil
}

func (e *Engine) autosave(ctx context.Context, every time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	e.logger.Debug("autosave enabled", "interval", every)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Flush(ctx)
		}
	}
}

func (e *Engine) tierContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.tierTimeout > 0 {
		return context.WithTimeout(ctx, e.tierTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) loadRemote(ctx context.Context) (*Record, bool) {
	if e.remote == nil {
		return nil, false
	}
	tctx, cancel := e.tierContext(ctx)
	defer cancel()

	rec, err := e.remote.Load(tctx)
	n := 0
	if rec != nil {
		n = len(rec.Messages)
	}
	if !e.observe(ctx, TierRemote, OpLoad, n, err) {
		return nil, false
	}
	return rec, true
}

func (e *Engine) loadLocal(ctx context.Context) (*Record, bool) {
	tctx, cancel := e.tierContext(ctx)
	defer cancel()

	rec, err := e.local.Get(tctx, e.Session())
	n := 0
	if rec != nil {
		n = len(rec.Messages)
	}
	if !e.observe(ctx, TierLocal, OpLoad, n, err) {
		return nil, false
	}
	return rec, true
}

func (e *Engine) saveLocal(ctx context.Context, rec Record) bool {
	tctx, cancel := e.tierContext(ctx)
	defer cancel()
	return e.observe(ctx, TierLocal, OpSave, len(rec.Messages), e.local.Put(tctx, rec))
}

// saveRemote reports true when there is no remote tier to write.
func (e *Engine) saveRemote(ctx context.Context, msgs []Message, n int) bool {
	if e.remote == nil {
		return true
	}
	tctx, cancel := e.tierContext(ctx)
	defer cancel()
	return e.observe(ctx, TierRemote, OpSave, n, e.remote.Save(tctx, msgs))
}

func (e *Engine) deleteLocal(ctx context.Context, session Session) bool {
	tctx, cancel := e.tierContext(ctx)
	defer cancel()
	return e.observe(ctx, TierLocal, OpClear, 0, e.local.Delete(tctx, session))
}

func (e *Engine) clearRemote(ctx context.Context) bool {
	if e.remote == nil {
		return false
	}
	tctx, cancel := e.tierContext(ctx)
	defer cancel()
	return e.observe(ctx, TierRemote, OpClear, 0, e.remote.Clear(tctx))
}

// observe logs and records one tier outcome and reports whether it succeeded.
func (e *Engine) observe(ctx context.Context, tier Tier, op string, n int, err error) bool {
	session := e.Session()
	ev := SyncEvent{
		Session:      session,
		Tier:         tier,
		Op:           op,
		Status:       StatusSuccess,
		MessageCount: n,
		CreatedAt:    e.now(),
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.FailReason = ClassifyError(err)
		ev.ErrorMessage = err.Error()
		e.logger.Warn("tier operation failed", "session", session, "tier", tier, "op", op, "reason", ev.FailReason, "error", err)
	} else {
		e.logger.Debug("tier operation done", "session", session, "tier", tier, "op", op, "count", n)
	}

	if e.recorder != nil {
		// Record even when ctx is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		_ = e.recorder.RecordSync(rctx, ev)
		cancel()
	}
	return err == nil
}
