package channel

import (
	"context"

	"github.com/c360/chatkit/errors"
)

// State represents the current state of a channel.
type State int

// Possible channel states.
const (
	StateInitialized State = iota
	StateAttaching
	StateAttached
	StateDetaching
	StateDetached
	StateSuspended
	StateFailed
)

// String returns a string representation of the channel state.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	case StateSuspended:
		return "suspended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent is a channel state-change notification.
//
// IsUpdate distinguishes an in-place update (state unchanged, but
// message continuity may be broken) from a base state transition.
// Resumed=false on an attached transition or update signals a possible
// gap in message continuity.
type StateEvent struct {
	Previous State
	Current  State
	Resumed  bool
	Reason   *errors.ErrorInfo
	IsUpdate bool
}

// Message is an inbound channel message delivered to subscribers.
type Message struct {
	Type string
	Data []byte
}

// Subscription represents a registered listener. Off removes the
// listener; it is idempotent and safe to call multiple times.
type Subscription interface {
	Off()
}

// Channel is a named, stateful pub/sub endpoint. One Channel is
// exclusively owned by one room lifecycle manager.
type Channel interface {
	// Name returns the channel name.
	Name() string

	// State returns the current channel state.
	State() State

	// ErrorReason returns the error that caused the current state, or
	// nil when the state is healthy.
	ErrorReason() *errors.ErrorInfo

	// Attach attaches the channel, starting message delivery.
	Attach(ctx context.Context) error

	// Detach detaches the channel, stopping message delivery.
	Detach(ctx context.Context) error

	// Publish publishes a message of the given event type.
	Publish(ctx context.Context, eventType string, data []byte) error

	// Subscribe registers a handler for inbound messages.
	Subscribe(handler func(Message)) Subscription

	// On registers a listener for all state-change notifications.
	On(listener func(StateEvent)) Subscription

	// OffAll removes every registered state and message listener.
	OffAll()
}

// Replayer is implemented by channels that can replay previously
// published messages, oldest first. The message window uses it to
// re-fetch history after a discontinuity.
type Replayer interface {
	Replay(ctx context.Context, limit int, handler func(Message)) error
}

// Provider owns the transport connection and vends channels by name.
// Channels obtained from a provider must be handed back with Release
// when the owning room is released.
type Provider interface {
	Get(name string) (Channel, error)
	Release(ctx context.Context, name string) error
}
