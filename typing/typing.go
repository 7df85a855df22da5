package typing

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/pkg/gate"
	"github.com/c360/chatkit/room"
)

// Wire event types for typing indicators.
const (
	wireStarted = "typing-started"
	wireStopped = "typing-stopped"
)

// Defaults for the heartbeat protocol. The inactivity grace covers one
// delayed heartbeat before a silent peer is dropped.
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultInactivityGrace   = 2 * time.Second
)

type wireEvent struct {
	ClientID string `json:"clientId"`
}

// typer tracks one peer's inactivity timer. The generation guards
// against a stale expiry firing between a heartbeat's timer reset and
// the expiry goroutine acquiring the lock.
type typer struct {
	timer *time.Timer
	gen   int
}

// Feature is the typing façade of a room.
type Feature struct {
	ch        channel.Channel
	clientID  string
	heartbeat time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	gate gate.Gate

	mu         sync.Mutex
	limiter    *rate.Limiter
	selfTyping bool
	typers     map[string]*typer
	listeners  map[int]func([]string)
	nextID     int
	sub        channel.Subscription
	disposed   bool
}

// FeatureOption configures the typing façade.
type FeatureOption func(*Feature)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FeatureOption {
	return func(f *Feature) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithHeartbeatInterval sets the minimum spacing between published
// typing-started events while keystrokes continue.
func WithHeartbeatInterval(d time.Duration) FeatureOption {
	return func(f *Feature) {
		if d > 0 {
			f.heartbeat = d
		}
	}
}

// WithInactivityTimeout overrides how long a peer stays in the typing
// set without a fresh heartbeat. Must exceed the heartbeat interval or
// healthy peers will flicker.
func WithInactivityTimeout(d time.Duration) FeatureOption {
	return func(f *Feature) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFeature creates the typing façade for a room and subscribes it to
// the room's channel.
func NewFeature(r *room.Room, clientID string, opts ...FeatureOption) *Feature {
	f := &Feature{
		ch:        r.Channel(),
		clientID:  clientID,
		heartbeat: DefaultHeartbeatInterval,
		logger:    slog.Default(),
		typers:    make(map[string]*typer),
		listeners: make(map[int]func([]string)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.timeout == 0 {
		f.timeout = f.heartbeat + DefaultInactivityGrace
	}
	f.limiter = rate.NewLimiter(rate.Every(f.heartbeat), 1)

	f.sub = f.ch.Subscribe(f.handleChannelMessage)
	r.RegisterFeature(f)
	return f
}

// Name implements room.Feature.
func (f *Feature) Name() string { return "typing" }

// AttachmentErrorCode implements room.Feature.
func (f *Feature) AttachmentErrorCode() errors.Code { return errors.CodeTypingAttachmentFailed }

// DetachmentErrorCode implements room.Feature.
func (f *Feature) DetachmentErrorCode() errors.Code { return errors.CodeTypingDetachmentFailed }

// Keystroke signals that the local client is typing. Calls within the
// heartbeat interval of the last published event are absorbed, and a
// call superseded by a newer Keystroke or Stop is a silent no-op, so
// this is safe to invoke on every keypress.
func (f *Feature) Keystroke(ctx context.Context) error {
	err := f.gate.Run(ctx, func() error {
		f.mu.Lock()
		allowed := f.limiter.Allow()
		if allowed {
			f.selfTyping = true
		}
		f.mu.Unlock()
		if !allowed {
			return nil
		}

		if err := f.publish(ctx, wireStarted); err != nil {
			// The heartbeat never went out; let the next keystroke
			// retry immediately.
			f.mu.Lock()
			f.selfTyping = false
			f.limiter = rate.NewLimiter(rate.Every(f.heartbeat), 1)
			f.mu.Unlock()
			return errors.Wrap(err, "Feature", "Keystroke", "publish heartbeat")
		}
		return nil
	})
	if err == gate.ErrSuperseded {
		return nil
	}
	return err
}

// Stop signals that the local client stopped typing. A no-op when no
// typing-started heartbeat is outstanding.
func (f *Feature) Stop(ctx context.Context) error {
	err := f.gate.Run(ctx, func() error {
		f.mu.Lock()
		wasTyping := f.selfTyping
		f.selfTyping = false
		// Rearm the throttle so the next keystroke publishes at once.
		f.limiter = rate.NewLimiter(rate.Every(f.heartbeat), 1)
		f.mu.Unlock()
		if !wasTyping {
			return nil
		}

		if err := f.publish(ctx, wireStopped); err != nil {
			return errors.Wrap(err, "Feature", "Stop", "publish stop")
		}
		return nil
	})
	if err == gate.ErrSuperseded {
		return nil
	}
	return err
}

// Current returns the clients currently typing, sorted.
func (f *Feature) Current() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.typers))
	for clientID := range f.typers {
		out = append(out, clientID)
	}
	sort.Strings(out)
	return out
}

// OnChange registers a listener invoked with the sorted typing set
// after every change. The returned function removes the listener.
func (f *Feature) OnChange(listener func([]string)) func() {
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

// HandleDiscontinuity implements room.Feature. Typing state self-heals
// through heartbeats, so the set is simply cleared.
func (f *Feature) HandleDiscontinuity(reason *errors.ErrorInfo) {
	f.mu.Lock()
	if len(f.typers) == 0 {
		f.mu.Unlock()
		return
	}
	for clientID, t := range f.typers {
		t.timer.Stop()
		delete(f.typers, clientID)
	}
	listeners := f.listenersLocked()
	f.mu.Unlock()

	f.logger.Debug("cleared typing set after discontinuity",
		"channel", f.ch.Name(), "reason", reason)
	for _, l := range listeners {
		l(nil)
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
	for clientID, t := range f.typers {
		t.timer.Stop()
		delete(f.typers, clientID)
	}
	f.listeners = make(map[int]func([]string))
	f.mu.Unlock()

	if sub != nil {
		sub.Off()
	}
}

func (f *Feature) handleChannelMessage(msg channel.Message) {
	if msg.Type != wireStarted && msg.Type != wireStopped {
		return
	}
	var event wireEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.ClientID == "" {
		f.logger.Warn("dropping malformed typing event",
			"channel", f.ch.Name(), "type", msg.Type, "error", err)
		return
	}

	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	var changed bool
	switch msg.Type {
	case wireStarted:
		changed = f.markTypingLocked(event.ClientID)
	case wireStopped:
		changed = f.clearTypingLocked(event.ClientID)
	}
	var listeners []func([]string)
	var snapshot []string
	if changed {
		listeners = f.listenersLocked()
		snapshot = f.currentLocked()
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// markTypingLocked adds clientID to the set, or rearms its inactivity
// timer on a repeat heartbeat. Reports whether membership changed.
func (f *Feature) markTypingLocked(clientID string) bool {
	if t, ok := f.typers[clientID]; ok {
		t.gen++
		gen := t.gen
		t.timer.Stop()
		t.timer = time.AfterFunc(f.timeout, func() {
			f.expire(clientID, gen)
		})
		return false
	}
	t := &typer{}
	t.timer = time.AfterFunc(f.timeout, func() {
		f.expire(clientID, 0)
	})
	f.typers[clientID] = t
	return true
}

func (f *Feature) clearTypingLocked(clientID string) bool {
	t, ok := f.typers[clientID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(f.typers, clientID)
	return true
}

// expire removes a peer whose heartbeats went silent.
func (f *Feature) expire(clientID string, gen int) {
	f.mu.Lock()
	t, ok := f.typers[clientID]
	if !ok || t.gen != gen || f.disposed {
		f.mu.Unlock()
		return
	}
	delete(f.typers, clientID)
	listeners := f.listenersLocked()
	snapshot := f.currentLocked()
	f.mu.Unlock()

	f.logger.Debug("typing peer expired", "channel", f.ch.Name(), "clientId", clientID)
	for _, l := range listeners {
		l(snapshot)
	}
}

func (f *Feature) publish(ctx context.Context, eventType string) error {
	data, err := json.Marshal(wireEvent{ClientID: f.clientID})
	if err != nil {
		return err
	}
	return f.ch.Publish(ctx, eventType, data)
}

func (f *Feature) currentLocked() []string {
	out := make([]string, 0, len(f.typers))
	for clientID := range f.typers {
		out = append(out, clientID)
	}
	sort.Strings(out)
	return out
}

func (f *Feature) listenersLocked() []func([]string) {
	out := make([]func([]string), 0, len(f.listeners))
	for _, l := range f.listeners {
		out = append(out, l)
	}
	return out
}
