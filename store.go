package ctxsync

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrIdentityUnavailable = errors.New("ctxsync: identity unavailable")
	ErrStorageUnavailable  = errors.New("ctxsync: local storage unavailable")
	ErrRemoteUnavailable   = errors.New("ctxsync: remote store unavailable")
	ErrAlreadyStarted      = errors.New("ctxsync: engine already started")
	ErrInvalidRole         = errors.New("ctxsync: invalid role")
)

// LocalStore is the durable per-session store on the client.
// Get returns a nil record and a nil error when nothing is stored.
// Put always replaces the whole record.
type LocalStore interface {
	Get(ctx context.Context, session Session) (*Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, session Session) error
}

// RemoteStore is the authoritative store. The server resolves the session
// itself, so no call carries it.
// Load returns a nil record and a nil error when the server has no context.
type RemoteStore interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, msgs []Message) error
	Clear(ctx context.Context) error
}

// IdentitySource issues session identifiers.
type IdentitySource interface {
	SessionID(ctx context.Context) (string, error)
}

// UnavailableStore is the LocalStore used when no durable store could be
// opened. Every call fails with ErrStorageUnavailable.
type UnavailableStore struct {
	Reason error
}

func (u UnavailableStore) err() error {
	if u.Reason == nil {
		return ErrStorageUnavailable
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, u.Reason)
}

func (u UnavailableStore) Get(context.Context, Session) (*Record, error) { return nil, u.err() }
func (u UnavailableStore) Put(context.Context, Record) error             { return u.err() }
func (u UnavailableStore) Delete(context.Context, Session) error         { return u.err() }

// LocalOrUnavailable picks the local store variant once, at construction.
// It is meant to wrap a constructor call: LocalOrUnavailable(sqlite.Open(...)).
func LocalOrUnavailable[S LocalStore](store S, err error) LocalStore {
	if err != nil {
		return UnavailableStore{Reason: err}
	}
	return store
}

// Ensure UnavailableStore implements LocalStore at compile time.
var _ LocalStore = UnavailableStore{}
