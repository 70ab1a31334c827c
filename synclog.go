package ctxsync

import (
	"context"
	"errors"
	"net"
	"time"
)

// Tier names a storage tier in logs and sync events.
type Tier string

const (
	TierLocal  Tier = "local"
	TierRemote Tier = "remote"
)

// Sync operation names.
const (
	OpLoad  = "load"
	OpSave  = "save"
	OpClear = "clear"
)

// Sync event statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Fail reasons.
const (
	FailReasonTimeout            = "timeout"
	FailReasonNetworkError       = "network_error"
	FailReasonStorageUnavailable = "storage_unavailable"
	FailReasonRemoteUnavailable  = "remote_unavailable"
	FailReasonUnknownError       = "unknown_error"
)

// SyncEvent is the outcome of one operation against one tier.
type SyncEvent struct {
	ID           int64     `json:"id"`
	Session      Session   `json:"session_id"`
	Tier         Tier      `json:"tier"`
	Op           string    `json:"op"`
	Status       string    `json:"status"`
	FailReason   string    `json:"fail_reason,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncRecorder persists sync events for later inspection.
type SyncRecorder interface {
	RecordSync(ctx context.Context, ev SyncEvent) error
}

// ClassifyError categorizes a tier error to determine the fail reason.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return FailReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailReasonTimeout
		}
		return FailReasonNetworkError
	}

	switch {
	case errors.Is(err, context.Canceled):
		return FailReasonNetworkError
	case errors.Is(err, ErrStorageUnavailable):
		return FailReasonStorageUnavailable
	case errors.Is(err, ErrRemoteUnavailable):
		return FailReasonRemoteUnavailable
	}
	return FailReasonUnknownError
}
