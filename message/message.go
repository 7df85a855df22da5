package message

import (
	"encoding/json"

	"github.com/c360/chatkit/errors"
)

// Action tags the mutation state of a message.
type Action int

// Possible message actions.
const (
	ActionCreated Action = iota
	ActionUpdated
	ActionDeleted
)

// String returns a string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	case ActionDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the action as its string form.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the action from its string form.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "created":
		*a = ActionCreated
	case "updated":
		*a = ActionUpdated
	case "deleted":
		*a = ActionDeleted
	default:
		return errors.BadRequestf("unknown message action %q", s)
	}
	return nil
}

// Version identifies one mutation of a message: a fresh serial ordered
// against every other mutation of the same message, plus metadata
// about the actor that performed it.
type Version struct {
	Serial      Serial            `json:"serial"`
	ClientID    string            `json:"clientId,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReactionSummary aggregates one reaction name on a message.
type ReactionSummary struct {
	Total     int      `json:"total"`
	ClientIDs []string `json:"clientIds,omitempty"`
}

// Message is an immutable chat message. Identity is the Serial
// assigned at creation and never changes; every mutation produces a
// new instance carrying a higher Version. Callers must not modify a
// Message after publishing or ingesting it.
type Message struct {
	Serial    Serial                     `json:"serial"`
	Action    Action                     `json:"action"`
	ClientID  string                     `json:"clientId"`
	Text      string                     `json:"text"`
	Metadata  map[string]any             `json:"metadata,omitempty"`
	Headers   map[string]string          `json:"headers,omitempty"`
	Version   Version                    `json:"version"`
	Timestamp int64                      `json:"timestamp"`
	Reactions map[string]ReactionSummary `json:"reactions,omitempty"`
}

// SameAs reports whether o is the same logical message, regardless of
// version.
func (m *Message) SameAs(o *Message) bool {
	return o != nil && m.Serial == o.Serial
}

// Before reports whether m was created strictly before o. Ordering is
// defined for any two messages, same identity or not.
func (m *Message) Before(o *Message) (bool, error) {
	return m.Serial.Before(o.Serial)
}

// After reports whether m was created strictly after o.
func (m *Message) After(o *Message) (bool, error) {
	return m.Serial.After(o.Serial)
}

// IsOlderVersionOf reports whether m is a superseded version of the
// same message as o. Different identities are a defined-false
// relationship, not an error.
func (m *Message) IsOlderVersionOf(o *Message) bool {
	if !m.SameAs(o) {
		return false
	}
	older, err := m.Version.Serial.Before(o.Version.Serial)
	return err == nil && older
}

// IsNewerVersionOf reports whether m supersedes o for the same
// message.
func (m *Message) IsNewerVersionOf(o *Message) bool {
	if !m.SameAs(o) {
		return false
	}
	newer, err := m.Version.Serial.After(o.Version.Serial)
	return err == nil && newer
}

// IsSameVersionAs reports whether m and o are the same version of the
// same message.
func (m *Message) IsSameVersionAs(o *Message) bool {
	if !m.SameAs(o) {
		return false
	}
	cmp, err := m.Version.Serial.Compare(o.Version.Serial)
	return err == nil && cmp == 0
}

// Apply merges an update or delete event into m. A creation event
// cannot be applied to an existing message, and the event must carry
// m's identity; both are BadRequest. An event whose version does not
// supersede m's returns m itself, unchanged, so callers can detect an
// effective change by pointer comparison. A superseding event yields a
// new message built from the event's full content, action and version.
func (m *Message) Apply(event *Event) (*Message, error) {
	if event == nil || event.Message == nil {
		return nil, errors.BadRequest("cannot apply empty event")
	}
	if event.Type == EventCreated {
		return nil, errors.BadRequest("cannot apply a creation event to an existing message")
	}
	if !m.SameAs(event.Message) {
		return nil, errors.BadRequestf(
			"cannot apply event for message %s to message %s", event.Message.Serial, m.Serial)
	}

	cmp, err := event.Message.Version.Serial.Compare(m.Version.Serial)
	if err != nil {
		return nil, err
	}
	if cmp <= 0 {
		return m, nil
	}

	next := *event.Message
	next.Serial = m.Serial
	if next.Reactions == nil {
		// Reaction summaries flow independently of edits; carry the
		// held aggregate forward.
		next.Reactions = m.Reactions
	}
	return &next, nil
}

// WithReactions returns a copy of m carrying the given reaction
// aggregates. The version is unchanged: summaries do not supersede
// content mutations.
func (m *Message) WithReactions(reactions map[string]ReactionSummary) *Message {
	next := *m
	next.Reactions = reactions
	return &next
}
