package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPair(t *testing.T) {
	lo, hi := CanonicalPair("bob", "alice")
	assert.Equal(t, "alice", lo)
	assert.Equal(t, "bob", hi)

	lo, hi = CanonicalPair("alice", "bob")
	assert.Equal(t, "alice", lo)
	assert.Equal(t, "bob", hi)
}

func TestChat_ParticipantsAndState(t *testing.T) {
	c := &Chat{UserLow: "a", UserHigh: "b", Locked: true}

	assert.True(t, c.IsParticipant("a"))
	assert.True(t, c.IsParticipant("b"))
	assert.False(t, c.IsParticipant("c"))
	assert.False(t, c.IsParticipant(""))
	assert.Equal(t, "b", c.Counterpart("a"))
	assert.Equal(t, "a", c.Counterpart("b"))
	assert.Equal(t, "", c.Counterpart("c"))
	assert.Equal(t, LockStateLocked, c.State())

	c.Locked = false
	assert.Equal(t, LockStateUnlocked, c.State())
}

func TestParseMessageType(t *testing.T) {
	mt, ok := ParseMessageType("")
	assert.True(t, ok)
	assert.Equal(t, MessageTypeText, mt)

	mt, ok = ParseMessageType("CONTACT_REQUEST")
	assert.True(t, ok)
	assert.Equal(t, MessageTypeContactRequest, mt)

	_, ok = ParseMessageType("IMAGE")
	assert.False(t, ok)
}

func TestMessage_EnvelopeFor(t *testing.T) {
	filtered := "meet me at [ADDRESS]"
	ts := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	m := &Message{
		ID: "m1", ChatID: "c1", SenderID: "a",
		Content:         "meet me at 123 Orchard Road",
		FilteredContent: &filtered, IsFlagged: true,
		Type: MessageTypeText, CreatedAt: ts, UpdatedAt: ts,
	}

	own := m.EnvelopeFor("a")
	assert.Equal(t, "meet me at 123 Orchard Road", own.Content)
	assert.True(t, own.SentByUser)

	other := m.EnvelopeFor("b")
	assert.Equal(t, filtered, other.Content)
	assert.False(t, other.SentByUser)
	assert.True(t, other.IsFlagged)

	b, err := json.Marshal(other)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))
	for _, key := range []string{"id", "chat_id", "sender", "content", "message_type", "created_at", "updated_at", "sent_by_user", "is_flagged"} {
		assert.Contains(t, wire, key)
	}
	assert.Len(t, wire, 9)
}
