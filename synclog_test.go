package ctxsync

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), FailReasonTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{timeout: true}}, FailReasonTimeout},
		{"net refused", &net.OpError{Op: "dial", Err: timeoutErr{}}, FailReasonNetworkError},
		{"canceled", context.Canceled, FailReasonNetworkError},
		{"storage", fmt.Errorf("%w: disk full", ErrStorageUnavailable), FailReasonStorageUnavailable},
		{"remote", fmt.Errorf("%w: status 502", ErrRemoteUnavailable), FailReasonRemoteUnavailable},
		{"other", errBoom, FailReasonUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	s := LocalOrUnavailable(newFakeLocal(), errBoom)

	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorContains(t, err, "boom")
	assert.ErrorIs(t, s.Put(ctx, Record{Session: "x"}), ErrStorageUnavailable)
	assert.ErrorIs(t, s.Delete(ctx, "x"), ErrStorageUnavailable)

	local := newFakeLocal()
	assert.Same(t, local, LocalOrUnavailable(local, nil))
}
