package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/pkg/timestamp"
	"github.com/c360/chatkit/room"
)

// Wire event types for presence.
const (
	wireEnter  = "presence-enter"
	wireUpdate = "presence-update"
	wireLeave  = "presence-leave"
)

// Member is one present client and the data it last announced.
type Member struct {
	ClientID  string         `json:"clientId"`
	Data      map[string]any `json:"data,omitempty"`
	UpdatedAt int64          `json:"updatedAt"`
}

type wireEvent struct {
	ClientID  string         `json:"clientId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// roster is the event-derived member map. Per-client timestamps
// resolve out-of-order arrival, and departure timestamps are kept so a
// late enter cannot resurrect a member that already left.
type roster struct {
	members  map[string]*Member
	departed map[string]int64
}

func newRoster() roster {
	return roster{
		members:  make(map[string]*Member),
		departed: make(map[string]int64),
	}
}

// apply merges one presence event, reporting whether membership or
// member data changed. An event older than what the roster already
// reflects for that client is dropped.
func (r *roster) apply(eventType string, event wireEvent) bool {
	if left, ok := r.departed[event.ClientID]; ok && event.Timestamp < left {
		return false
	}

	switch eventType {
	case wireEnter, wireUpdate:
		if held, ok := r.members[event.ClientID]; ok {
			if event.Timestamp < held.UpdatedAt {
				return false
			}
			held.Data = event.Data
			held.UpdatedAt = event.Timestamp
			return true
		}
		delete(r.departed, event.ClientID)
		r.members[event.ClientID] = &Member{
			ClientID:  event.ClientID,
			Data:      event.Data,
			UpdatedAt: event.Timestamp,
		}
		return true

	case wireLeave:
		held, ok := r.members[event.ClientID]
		if !ok {
			// Remember the departure anyway, so an enter that arrives
			// late cannot resurrect a client that already left.
			if left, seen := r.departed[event.ClientID]; !seen || event.Timestamp > left {
				r.departed[event.ClientID] = event.Timestamp
			}
			return false
		}
		if event.Timestamp < held.UpdatedAt {
			return false
		}
		delete(r.members, event.ClientID)
		r.departed[event.ClientID] = event.Timestamp
		return true
	}
	return false
}

// Feature is the presence façade of a room.
type Feature struct {
	ch       channel.Channel
	clientID string
	logger   *slog.Logger

	mu        sync.Mutex
	roster    roster
	self      bool
	selfData  map[string]any
	listeners map[int]func([]Member)
	nextID    int
	sub       channel.Subscription
	disposed  bool
}

// FeatureOption configures the presence façade.
type FeatureOption func(*Feature)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FeatureOption {
	return func(f *Feature) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFeature creates the presence façade for a room and subscribes it
// to the room's channel.
func NewFeature(r *room.Room, clientID string, opts ...FeatureOption) *Feature {
	f := &Feature{
		ch:        r.Channel(),
		clientID:  clientID,
		logger:    slog.Default(),
		roster:    newRoster(),
		listeners: make(map[int]func([]Member)),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.sub = f.ch.Subscribe(f.handleChannelMessage)
	r.RegisterFeature(f)
	return f
}

// Name implements room.Feature.
func (f *Feature) Name() string { return "presence" }

// AttachmentErrorCode implements room.Feature.
func (f *Feature) AttachmentErrorCode() errors.Code { return errors.CodePresenceAttachmentFailed }

// DetachmentErrorCode implements room.Feature.
func (f *Feature) DetachmentErrorCode() errors.Code { return errors.CodePresenceDetachmentFailed }

// Enter announces the local client as present with the given data.
func (f *Feature) Enter(ctx context.Context, data map[string]any) error {
	if err := f.publish(ctx, wireEnter, data); err != nil {
		return errors.Wrap(err, "Feature", "Enter", "publish enter")
	}
	f.mu.Lock()
	f.self = true
	f.selfData = data
	f.mu.Unlock()
	return nil
}

// Update republishes the local client's presence data. Entering first
// is required.
func (f *Feature) Update(ctx context.Context, data map[string]any) error {
	f.mu.Lock()
	present := f.self
	f.mu.Unlock()
	if !present {
		return errors.BadRequest("cannot update presence before entering")
	}

	if err := f.publish(ctx, wireUpdate, data); err != nil {
		return errors.Wrap(err, "Feature", "Update", "publish update")
	}
	f.mu.Lock()
	f.selfData = data
	f.mu.Unlock()
	return nil
}

// Leave announces the local client's departure. A no-op when not
// present.
func (f *Feature) Leave(ctx context.Context) error {
	f.mu.Lock()
	present := f.self
	f.mu.Unlock()
	if !present {
		return nil
	}

	if err := f.publish(ctx, wireLeave, nil); err != nil {
		return errors.Wrap(err, "Feature", "Leave", "publish leave")
	}
	f.mu.Lock()
	f.self = false
	f.selfData = nil
	f.mu.Unlock()
	return nil
}

// Get returns the member for clientID, or false when absent.
func (f *Feature) Get(clientID string) (Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.roster.members[clientID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Members returns the present members sorted by client ID.
func (f *Feature) Members() []Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.membersLocked()
}

// OnChange registers a listener invoked with the sorted member set
// after every change. The returned function removes the listener.
func (f *Feature) OnChange(listener func([]Member)) func() {
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

// HandleDiscontinuity implements room.Feature. The member map may have
// missed arrivals and departures, so it is rebuilt from stream history;
// if the local client was present its enter may predate the replayed
// window, so it re-enters.
func (f *Feature) HandleDiscontinuity(reason *errors.ErrorInfo) {
	replayer, ok := f.ch.(channel.Replayer)
	if !ok {
		f.logger.Warn("cannot resync presence, channel does not support replay",
			"channel", f.ch.Name(), "reason", reason)
		return
	}

	f.logger.Info("resyncing presence after discontinuity",
		"channel", f.ch.Name(), "reason", reason)

	rebuilt := newRoster()
	err := replayer.Replay(context.Background(), 0, func(msg channel.Message) {
		if event, eventType, ok := parseEvent(msg); ok {
			rebuilt.apply(eventType, event)
		}
	})
	if err != nil {
		f.logger.Error("presence resync failed", "channel", f.ch.Name(), "error", err)
		return
	}

	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.roster = rebuilt
	reenter := f.self
	data := f.selfData
	listeners := f.listenersLocked()
	snapshot := f.membersLocked()
	f.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}

	if reenter {
		if err := f.publish(context.Background(), wireEnter, data); err != nil {
			f.logger.Error("presence re-enter failed", "channel", f.ch.Name(), "error", err)
		}
	}
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
	f.listeners = make(map[int]func([]Member))
	f.mu.Unlock()

	if sub != nil {
		sub.Off()
	}
}

func parseEvent(msg channel.Message) (wireEvent, string, bool) {
	switch msg.Type {
	case wireEnter, wireUpdate, wireLeave:
	default:
		return wireEvent{}, "", false
	}
	var event wireEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.ClientID == "" {
		return wireEvent{}, "", false
	}
	return event, msg.Type, true
}

func (f *Feature) handleChannelMessage(msg channel.Message) {
	event, eventType, ok := parseEvent(msg)
	if !ok {
		return
	}

	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	changed := f.roster.apply(eventType, event)
	var listeners []func([]Member)
	var snapshot []Member
	if changed {
		listeners = f.listenersLocked()
		snapshot = f.membersLocked()
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (f *Feature) publish(ctx context.Context, eventType string, data map[string]any) error {
	payload, err := json.Marshal(wireEvent{
		ClientID:  f.clientID,
		Data:      data,
		Timestamp: timestamp.Now(),
	})
	if err != nil {
		return err
	}
	return f.ch.Publish(ctx, eventType, payload)
}

func (f *Feature) membersLocked() []Member {
	out := make([]Member, 0, len(f.roster.members))
	for _, m := range f.roster.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (f *Feature) listenersLocked() []func([]Member) {
	out := make([]func([]Member), 0, len(f.listeners))
	for _, l := range f.listeners {
		out = append(out, l)
	}
	return out
}
