package ctxsync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const sessionPrefix = "session_"

// ResolveSession asks src for a server-issued session id and falls back to a
// locally fabricated one. It never fails.
func ResolveSession(ctx context.Context, src IdentitySource, logger *log.Logger) Session {
	if logger == nil {
		logger = log.Default()
	}
	if src == nil {
		id := FabricateSession(time.Now())
		logger.Debug("no identity source, fabricated session", "session", id)
		return id
	}

	id, err := src.SessionID(ctx)
	if err == nil && strings.TrimSpace(id) == "" {
		err = errors.New("empty session id")
	}
	if err != nil {
		fabricated := FabricateSession(time.Now())
		logger.Warn("session id unavailable, using local id",
			"session", fabricated, "error", errors.Join(ErrIdentityUnavailable, err))
		return fabricated
	}

	logger.Debug("session id resolved", "session", id)
	return Session(id)
}

// FabricateSession builds "session_<unix nanos>_<8 hex>". The suffix comes
// from a random UUID so ids are unlinkable, though not secret.
func FabricateSession(now time.Time) Session {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return Session(sessionPrefix + strconv.FormatInt(now.UnixNano(), 10) + "_" + suffix)
}

// IsFabricated reports whether s was produced by FabricateSession.
func IsFabricated(s Session) bool {
	return strings.HasPrefix(string(s), sessionPrefix)
}
