package ctxsync

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Export is a point-in-time copy of the conversation for download.
type Export struct {
	Session      Session   `json:"session_id"`
	Messages     []Message `json:"messages"`
	MessageCount int       `json:"message_count"`
	ExportedAt   time.Time `json:"exported_at"`
}

// Export snapshots the working set.
func (e *Engine) Export() Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := make([]Message, len(e.messages))
	copy(msgs, e.messages)
	return Export{
		Session:      e.session,
		Messages:     msgs,
		MessageCount: len(msgs),
		ExportedAt:   e.now(),
	}
}

// WriteText renders x as a plain-text transcript.
func (x Export) WriteText(w io.Writer) error {
	var b strings.Builder
	b.WriteString("=== Context Export ===\n")
	fmt.Fprintf(&b, "Session ID: %s\n", x.Session)
	fmt.Fprintf(&b, "Message Count: %d\n", x.MessageCount)
	fmt.Fprintf(&b, "Exported: %s\n\n", x.ExportedAt.Format(time.RFC1123))

	for i, m := range x.Messages {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, strings.ToUpper(string(m.Sender)), m.Text)
		fmt.Fprintf(&b, "    Time: %s\n\n", m.Timestamp.Format(time.RFC1123))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
