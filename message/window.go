package message

import (
	"log/slog"
	"sort"
	"sync"
)

// DefaultWindowLimit is the number of messages a window retains when no
// limit is configured.
const DefaultWindowLimit = 200

// Window maintains a bounded, sorted, de-duplicated view of the most
// recent messages on a channel. Events may arrive out of order and more
// than once; Ingest converges on the same final snapshot regardless of
// arrival order, and only an effective change produces a new snapshot.
//
// Snapshots are immutable: the slice handed to listeners is never
// mutated afterwards, and the *Message values in it must be treated as
// read-only.
type Window struct {
	mu        sync.Mutex
	limit     int
	messages  []*Message // ascending by serial
	listeners map[int]func([]*Message)
	nextID    int
	logger    *slog.Logger
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithWindowLimit caps the number of retained messages. Values below
// one fall back to DefaultWindowLimit.
func WithWindowLimit(limit int) WindowOption {
	return func(w *Window) {
		if limit > 0 {
			w.limit = limit
		}
	}
}

// WithWindowLogger sets the logger used for dropped-event diagnostics.
func WithWindowLogger(logger *slog.Logger) WindowOption {
	return func(w *Window) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWindow creates an empty window.
func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		limit:     DefaultWindowLimit,
		listeners: make(map[int]func([]*Message)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ingest merges one event into the window and reports whether the
// snapshot changed. Malformed events are logged and dropped rather than
// surfaced: a live subscription has no caller to hand the error to.
func (w *Window) Ingest(event *Event) bool {
	if event == nil || event.Message == nil {
		return false
	}

	w.mu.Lock()
	changed := w.apply(event)
	var snapshot []*Message
	var listeners []func([]*Message)
	if changed {
		snapshot = w.snapshotLocked()
		listeners = w.listenersLocked()
	}
	w.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return changed
}

func (w *Window) apply(event *Event) bool {
	idx, ok := w.find(event.Message.Serial)

	switch event.Type {
	case EventCreated:
		if ok {
			// Redelivery of a creation we already hold.
			return false
		}
		w.insert(idx, event.Message)
		w.evict()
		return true

	case EventUpdated, EventDeleted:
		if !ok {
			// Mutation of a message outside the window; the event
			// carries the full latest state, so adopt it.
			w.insert(idx, event.Message)
			w.evict()
			return true
		}
		held := w.messages[idx]
		next, err := held.Apply(event)
		if err != nil {
			w.logger.Warn("dropping inapplicable message event",
				"serial", event.Message.Serial, "type", event.Type.String(), "error", err)
			return false
		}
		if next == held {
			return false
		}
		w.messages[idx] = next
		return true

	case EventReactionSummary:
		if !ok {
			return false
		}
		w.messages[idx] = w.messages[idx].WithReactions(event.Message.Reactions)
		return true

	default:
		return false
	}
}

// find locates serial in the sorted slice, returning the index it holds
// or the index it would be inserted at.
func (w *Window) find(serial Serial) (int, bool) {
	idx := sort.Search(len(w.messages), func(i int) bool {
		return w.messages[i].Serial >= serial
	})
	return idx, idx < len(w.messages) && w.messages[idx].Serial == serial
}

func (w *Window) insert(idx int, m *Message) {
	w.messages = append(w.messages, nil)
	copy(w.messages[idx+1:], w.messages[idx:])
	w.messages[idx] = m
}

func (w *Window) evict() {
	if len(w.messages) <= w.limit {
		return
	}
	drop := len(w.messages) - w.limit
	w.messages = append([]*Message(nil), w.messages[drop:]...)
}

// ReplaceAll discards the held messages and rebuilds the window from
// the given set, used when resynchronizing after a discontinuity. The
// input need not be sorted or de-duplicated; for duplicate identities
// the highest version wins.
func (w *Window) ReplaceAll(messages []*Message) {
	byserial := make(map[Serial]*Message, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		held, ok := byserial[m.Serial]
		if !ok || m.IsNewerVersionOf(held) {
			byserial[m.Serial] = m
		}
	}

	rebuilt := make([]*Message, 0, len(byserial))
	for _, m := range byserial {
		rebuilt = append(rebuilt, m)
	}
	sort.Slice(rebuilt, func(i, j int) bool {
		return rebuilt[i].Serial < rebuilt[j].Serial
	})

	w.mu.Lock()
	w.messages = rebuilt
	w.evict()
	snapshot := w.snapshotLocked()
	listeners := w.listenersLocked()
	w.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// Snapshot returns the current window contents, oldest first.
func (w *Window) Snapshot() []*Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Len returns the number of messages currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// OnSnapshot registers a listener invoked with a fresh snapshot after
// every effective change. The returned function removes the listener.
func (w *Window) OnSnapshot(listener func([]*Message)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = listener
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// OffAll removes every snapshot listener.
func (w *Window) OffAll() {
	w.mu.Lock()
	w.listeners = make(map[int]func([]*Message))
	w.mu.Unlock()
}

func (w *Window) snapshotLocked() []*Message {
	return append([]*Message(nil), w.messages...)
}

func (w *Window) listenersLocked() []func([]*Message) {
	out := make([]func([]*Message), 0, len(w.listeners))
	for _, l := range w.listeners {
		out = append(out, l)
	}
	return out
}
