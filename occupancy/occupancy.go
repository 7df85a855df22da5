// Package occupancy implements the occupancy façade of a room: a view
// over the periodic occupancy metrics the transport publishes as meta
// events. The held value is whatever arrived last; a discontinuity
// does not clear it, since the next periodic update supersedes it
// regardless.
package occupancy

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/room"
)

const wireUpdate = "occupancy-update"

// Occupancy is one occupancy reading for a room.
type Occupancy struct {
	Connections     int `json:"connections"`
	PresenceMembers int `json:"presenceMembers"`
}

// Feature is the occupancy façade of a room.
type Feature struct {
	ch     channel.Channel
	logger *slog.Logger

	mu        sync.Mutex
	latest    Occupancy
	seen      bool
	listeners map[int]func(Occupancy)
	nextID    int
	sub       channel.Subscription
	disposed  bool
}

// FeatureOption configures the occupancy façade.
type FeatureOption func(*Feature)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FeatureOption {
	return func(f *Feature) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFeature creates the occupancy façade for a room and subscribes it
// to the room's channel.
func NewFeature(r *room.Room, opts ...FeatureOption) *Feature {
	f := &Feature{
		ch:        r.Channel(),
		logger:    slog.Default(),
		listeners: make(map[int]func(Occupancy)),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.sub = f.ch.Subscribe(f.handleChannelMessage)
	r.RegisterFeature(f)
	return f
}

// Name implements room.Feature.
func (f *Feature) Name() string { return "occupancy" }

// AttachmentErrorCode implements room.Feature.
func (f *Feature) AttachmentErrorCode() errors.Code { return errors.CodeOccupancyAttachmentFailed }

// DetachmentErrorCode implements room.Feature.
func (f *Feature) DetachmentErrorCode() errors.Code { return errors.CodeOccupancyDetachmentFailed }

// Latest returns the most recent occupancy reading. ok is false until
// the first update arrives.
func (f *Feature) Latest() (occupancy Occupancy, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.seen
}

// OnChange registers a listener invoked with every occupancy update.
// The returned function removes the listener.
func (f *Feature) OnChange(listener func(Occupancy)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// HandleDiscontinuity implements room.Feature.
func (f *Feature) HandleDiscontinuity(reason *errors.ErrorInfo) {
	// The held reading may be stale, but the transport republishes
	// occupancy periodically; the next update corrects it.
	f.logger.Debug("occupancy awaiting next update after discontinuity",
		"channel", f.ch.Name(), "reason", reason)
}

// Dispose implements room.Feature.
func (f *Feature) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	sub := f.sub
	f.sub = nil
	f.listeners = make(map[int]func(Occupancy))
	f.mu.Unlock()

	if sub != nil {
		sub.Off()
	}
}

func (f *Feature) handleChannelMessage(msg channel.Message) {
	if msg.Type != wireUpdate {
		return
	}
	var reading Occupancy
	if err := json.Unmarshal(msg.Data, &reading); err != nil {
		f.logger.Warn("dropping malformed occupancy event",
			"channel", f.ch.Name(), "error", err)
		return
	}

	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.latest = reading
	f.seen = true
	listeners := make([]func(Occupancy), 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(reading)
	}
}
