package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/errors"
)

func newTestMessage(serialMs int64, versionMs int64) *Message {
	serial := NewSerial(serialMs, 0, "origin")
	return &Message{
		Serial:    serial,
		Action:    ActionCreated,
		ClientID:  "alice",
		Text:      "hello",
		Version:   Version{Serial: NewSerial(versionMs, 0, "origin"), ClientID: "alice"},
		Timestamp: serialMs,
	}
}

func updateEvent(m *Message, versionMs int64, text string) *Event {
	next := *m
	next.Action = ActionUpdated
	next.Text = text
	next.Version = Version{Serial: NewSerial(versionMs, 0, "origin"), ClientID: "bob"}
	return &Event{Type: EventUpdated, Message: &next}
}

func TestMessage_VersionComparisons(t *testing.T) {
	older := newTestMessage(100, 100)
	newer := newTestMessage(100, 200)
	otherIdentity := newTestMessage(999, 300)

	assert.True(t, older.IsOlderVersionOf(newer))
	assert.True(t, newer.IsNewerVersionOf(older))
	assert.True(t, older.IsSameVersionAs(older))
	assert.False(t, older.IsSameVersionAs(newer))

	// Version relationships across identities are defined false.
	assert.False(t, older.IsOlderVersionOf(otherIdentity))
	assert.False(t, otherIdentity.IsNewerVersionOf(older))
	assert.False(t, older.IsSameVersionAs(otherIdentity))
}

func TestMessage_ApplyNewerVersionProducesNewInstance(t *testing.T) {
	m := newTestMessage(100, 100)
	event := updateEvent(m, 200, "edited")

	next, err := m.Apply(event)
	require.NoError(t, err)

	assert.NotSame(t, m, next)
	assert.Equal(t, "edited", next.Text)
	assert.Equal(t, ActionUpdated, next.Action)
	assert.Equal(t, m.Serial, next.Serial)

	// The original is untouched.
	assert.Equal(t, "hello", m.Text)
	assert.Equal(t, ActionCreated, m.Action)
}

func TestMessage_ApplyStaleVersionReturnsIdenticalPointer(t *testing.T) {
	m := newTestMessage(100, 200)

	stale, err := m.Apply(updateEvent(m, 150, "old edit"))
	require.NoError(t, err)
	assert.Same(t, m, stale)

	equal, err := m.Apply(updateEvent(m, 200, "same version"))
	require.NoError(t, err)
	assert.Same(t, m, equal)
}

func TestMessage_ApplyIsIdempotentUnderRedelivery(t *testing.T) {
	m := newTestMessage(100, 100)
	event := updateEvent(m, 200, "edited")

	first, err := m.Apply(event)
	require.NoError(t, err)
	require.NotSame(t, m, first)

	// Redelivering the same event is a no-op by pointer identity.
	second, err := first.Apply(event)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMessage_ApplyConvergesOutOfOrder(t *testing.T) {
	m := newTestMessage(100, 100)
	edit1 := updateEvent(m, 200, "first edit")
	edit2 := updateEvent(m, 300, "second edit")

	// Forward order.
	a, err := m.Apply(edit1)
	require.NoError(t, err)
	a, err = a.Apply(edit2)
	require.NoError(t, err)

	// Reverse order.
	b, err := m.Apply(edit2)
	require.NoError(t, err)
	b, err = b.Apply(edit1)
	require.NoError(t, err)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Version.Serial, b.Version.Serial)
	assert.Equal(t, "second edit", b.Text)
}

func TestMessage_ApplyRejectsMisuse(t *testing.T) {
	m := newTestMessage(100, 100)

	_, err := m.Apply(nil)
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))

	_, err = m.Apply(&Event{Type: EventCreated, Message: newTestMessage(100, 100)})
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))

	other := updateEvent(newTestMessage(999, 100), 200, "x")
	_, err = m.Apply(other)
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
}

func TestMessage_ApplyDeleteClearsContentKeepsIdentity(t *testing.T) {
	m := newTestMessage(100, 100)

	tomb := *m
	tomb.Action = ActionDeleted
	tomb.Text = ""
	tomb.Version = Version{Serial: NewSerial(200, 0, "origin"), ClientID: "mod"}

	next, err := m.Apply(&Event{Type: EventDeleted, Message: &tomb})
	require.NoError(t, err)
	assert.Equal(t, ActionDeleted, next.Action)
	assert.Empty(t, next.Text)
	assert.Equal(t, m.Serial, next.Serial)
}

func TestMessage_ApplyCarriesReactionsForward(t *testing.T) {
	m := newTestMessage(100, 100)
	m.Reactions = map[string]ReactionSummary{
		"👍": {Total: 2, ClientIDs: []string{"alice", "bob"}},
	}

	next, err := m.Apply(updateEvent(m, 200, "edited"))
	require.NoError(t, err)
	assert.Equal(t, m.Reactions, next.Reactions)
}

func TestAction_JSONRoundTrip(t *testing.T) {
	data, err := ActionDeleted.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"deleted"`, string(data))

	var a Action
	require.NoError(t, a.UnmarshalJSON([]byte(`"updated"`)))
	assert.Equal(t, ActionUpdated, a)

	err = a.UnmarshalJSON([]byte(`"exploded"`))
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
}
