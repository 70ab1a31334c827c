package ctxsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	msgs := []Message{
		{Sender: RoleUser, Text: "When is the library open? The library hours, please."},
		{Sender: RoleAssistant, Text: "The Library opens at 9. Exams start Monday!"},
		{Sender: RoleUser, Text: "exams, exams... and hours?"},
	}

	assert.Equal(t, []string{"library", "exams", "hours"}, ExtractKeywords(msgs, 3))
	assert.Equal(t,
		[]string{"library", "exams", "hours", "open", "please", "opens", "start", "monday"},
		ExtractKeywords(msgs, 50))
}

func TestExtractKeywords_Empty(t *testing.T) {
	assert.Empty(t, ExtractKeywords(nil, 10))
	assert.Empty(t, ExtractKeywords([]Message{{Sender: RoleUser, Text: "a an to of is"}}, 10))
	assert.Nil(t, ExtractKeywords([]Message{{Sender: RoleUser, Text: "library"}}, 0))
}
