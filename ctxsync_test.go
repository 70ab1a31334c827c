package ctxsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_UnmarshalText(t *testing.T) {
	var msgs []Message
	err := json.Unmarshal([]byte(`[
		{"sender":"user","text":"q","timestamp":"2026-03-01T09:00:00Z"},
		{"sender":"bot","text":"a","timestamp":"2026-03-01T09:00:01Z"},
		{"sender":"assistant","text":"b","timestamp":"2026-03-01T09:00:02Z"}
	]`), &msgs)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[0].Sender)
	assert.Equal(t, RoleAssistant, msgs[1].Sender)
	assert.Equal(t, RoleAssistant, msgs[2].Sender)

	err = json.Unmarshal([]byte(`[{"sender":"system","text":"x"}]`), &msgs)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRecord_EmptyAndTombstone(t *testing.T) {
	var nilRec *Record
	assert.True(t, nilRec.Empty())
	assert.False(t, nilRec.Tombstone())

	now := t0
	assert.True(t, (&Record{}).Empty())
	assert.False(t, (&Record{}).Tombstone())
	assert.True(t, (&Record{ClearedAt: &now}).Tombstone())
	assert.False(t, (&Record{ClearedAt: &now, Messages: []Message{{Sender: RoleUser}}}).Tombstone())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	rec := &Record{
		SavedAt: t1,
		Messages: []Message{
			{Sender: RoleUser, Text: "a"},
			{Sender: RoleAssistant, Text: "b"},
			{Sender: RoleUser, Text: "c"},
		},
	}
	assert.Equal(t, Summary{
		Exists:            true,
		MessageCount:      3,
		UserMessages:      2,
		AssistantMessages: 1,
		LastActive:        t1,
	}, Summarize(rec))
}

func TestEncodeMessages(t *testing.T) {
	b, err := EncodeMessages(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	msgs := []Message{{Sender: RoleUser, Text: "hi", Timestamp: t0}}
	b, err = EncodeMessages(msgs)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"sender":"user","text":"hi","timestamp":"2026-03-01T09:00:00Z"}]`, string(b))

	got, err := DecodeMessages(b)
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	got, err = DecodeMessages(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = DecodeMessages([]byte("{not json"))
	assert.Error(t, err)
}
