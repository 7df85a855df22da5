package message

import (
	"encoding/json"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
)

// EventType discriminates inbound message events.
type EventType int

// Possible event types.
const (
	EventCreated EventType = iota
	EventUpdated
	EventDeleted
	EventReactionSummary
)

// Channel event type names, used as the routing suffix on the wire.
const (
	wireCreated         = "message-created"
	wireUpdated         = "message-updated"
	wireDeleted         = "message-deleted"
	wireReactionSummary = "message-reaction-summary"
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return wireCreated
	case EventUpdated:
		return wireUpdated
	case EventDeleted:
		return wireDeleted
	case EventReactionSummary:
		return wireReactionSummary
	default:
		return "unknown"
	}
}

// Event is one message mutation received from or published to the
// channel. For reaction summaries the Message carries only identity
// and the new aggregates.
type Event struct {
	Type    EventType
	Message *Message
}

// Encode serializes the event's message for publishing under the
// event's wire type.
func (e *Event) Encode() (eventType string, data []byte, err error) {
	data, err = json.Marshal(e.Message)
	if err != nil {
		return "", nil, errors.Wrap(err, "Event", "Encode", "marshal message")
	}
	return e.Type.String(), data, nil
}

// ParseEvent decodes an inbound channel message into an Event. Channel
// messages of unrelated types yield a nil event and no error, so
// callers can share a channel with other features.
func ParseEvent(msg channel.Message) (*Event, error) {
	var eventType EventType
	switch msg.Type {
	case wireCreated:
		eventType = EventCreated
	case wireUpdated:
		eventType = EventUpdated
	case wireDeleted:
		eventType = EventDeleted
	case wireReactionSummary:
		eventType = EventReactionSummary
	default:
		return nil, nil
	}

	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return nil, errors.BadRequestf("malformed %s payload: %v", msg.Type, err)
	}
	if err := m.Serial.Validate(); err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Message: &m}, nil
}
