package ctxsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session scopes one conversation in every storage tier.
type Session string

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// UnmarshalText accepts the known roles plus the legacy "bot" spelling.
func (r *Role) UnmarshalText(b []byte) error {
	switch s := Role(b); s {
	case RoleUser, RoleAssistant:
		*r = s
	case "bot":
		*r = RoleAssistant
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, string(b))
	}
	return nil
}

// Message is a single immutable turn in a conversation.
type Message struct {
	Sender    Role      `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the whole conversation as held by one durable tier.
type Record struct {
	Session   Session    `json:"session_id"`
	Messages  []Message  `json:"messages"`
	SavedAt   time.Time  `json:"saved_at"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
}

// Empty reports whether the record carries no messages.
func (r *Record) Empty() bool {
	return r == nil || len(r.Messages) == 0
}

// Tombstone reports whether the record marks an explicit clear.
func (r *Record) Tombstone() bool {
	return r != nil && r.ClearedAt != nil && len(r.Messages) == 0
}

// Summary describes a stored conversation without its content.
type Summary struct {
	Exists            bool      `json:"exists"`
	MessageCount      int       `json:"message_count"`
	UserMessages      int       `json:"user_messages"`
	AssistantMessages int       `json:"assistant_messages"`
	LastActive        time.Time `json:"last_active,omitempty"`
}

// Summarize counts messages per role.
func Summarize(rec *Record) Summary {
	if rec.Empty() {
		return Summary{}
	}
	s := Summary{Exists: true, MessageCount: len(rec.Messages), LastActive: rec.SavedAt}
	for _, m := range rec.Messages {
		switch m.Sender {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
		}
	}
	return s
}

// MigrationRecord tracks a single applied migration.
type MigrationRecord struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Checksum  string
}

// EncodeMessages marshals messages into the JSON array stored by both tiers.
// A nil slice encodes as [] rather than null.
func EncodeMessages(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}

// DecodeMessages is the inverse of EncodeMessages.
func DecodeMessages(b []byte) ([]Message, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("ctxsync: decode messages: %w", err)
	}
	return msgs, nil
}
