package room

import (
	"sync"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
)

// StatusCode represents the current lifecycle phase of a room.
type StatusCode int

// Possible room statuses.
const (
	StatusInitialized StatusCode = iota
	StatusAttaching
	StatusAttached
	StatusDetaching
	StatusDetached
	StatusSuspended
	StatusFailed
	StatusReleasing
	StatusReleased
)

// String returns a string representation of the room status.
func (s StatusCode) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusAttaching:
		return "attaching"
	case StatusAttached:
		return "attached"
	case StatusDetaching:
		return "detaching"
	case StatusDetached:
		return "detached"
	case StatusSuspended:
		return "suspended"
	case StatusFailed:
		return "failed"
	case StatusReleasing:
		return "releasing"
	case StatusReleased:
		return "released"
	default:
		return "unknown"
	}
}

// StatusChange notifies observers of a room status transition.
type StatusChange struct {
	Previous StatusCode
	Current  StatusCode
	Error    *errors.ErrorInfo
}

// Status is the room's lifecycle state container. It holds the current
// status and last error, and notifies registered observers on change.
// It carries no business logic: the lifecycle manager is its only
// writer, while features and UI code read it independently of the
// manager's internals.
//
// The stored error is non-nil if and only if the status is suspended
// or failed.
type Status struct {
	mu        sync.Mutex
	current   StatusCode
	err       *errors.ErrorInfo
	listeners map[int]func(StatusChange)
	nextID    int
}

// NewStatus creates a status container in the initialized state.
func NewStatus() *Status {
	return &Status{
		current:   StatusInitialized,
		listeners: make(map[int]func(StatusChange)),
	}
}

// Current returns the current room status.
func (s *Status) Current() StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Error returns the error associated with the current status, or nil.
func (s *Status) Error() *errors.ErrorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Set updates the status and notifies observers. The error is retained
// only for the suspended and failed states; any other transition
// clears it.
func (s *Status) Set(next StatusCode, err *errors.ErrorInfo) {
	if next != StatusSuspended && next != StatusFailed {
		err = nil
	}

	s.mu.Lock()
	previous := s.current
	s.current = next
	s.err = err
	listeners := make([]func(StatusChange), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	change := StatusChange{Previous: previous, Current: next, Error: err}
	for _, l := range listeners {
		l(change)
	}
}

// OnChange registers an observer for status transitions.
func (s *Status) OnChange(listener func(StatusChange)) channel.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return &statusSub{off: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}}
}

// OffAll removes every registered observer.
func (s *Status) OffAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[int]func(StatusChange))
}

type statusSub struct {
	once sync.Once
	off  func()
}

func (s *statusSub) Off() {
	s.once.Do(s.off)
}

// statusFromChannelState maps a channel state onto the corresponding
// room status. Channel states are a strict subset of room statuses;
// releasing and released exist only at the room level.
func statusFromChannelState(s channel.State) StatusCode {
	switch s {
	case channel.StateInitialized:
		return StatusInitialized
	case channel.StateAttaching:
		return StatusAttaching
	case channel.StateAttached:
		return StatusAttached
	case channel.StateDetaching:
		return StatusDetaching
	case channel.StateDetached:
		return StatusDetached
	case channel.StateSuspended:
		return StatusSuspended
	default:
		return StatusFailed
	}
}
