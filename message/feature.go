package message

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/pkg/timestamp"
	"github.com/c360/chatkit/room"
)

// SendOptions carries the optional fields of a new message.
type SendOptions struct {
	Metadata map[string]any
	Headers  map[string]string
}

// EditOptions carries the optional fields of an update or delete.
type EditOptions struct {
	Description string
	Metadata    map[string]string
}

// Feature is the messages façade of a room. It publishes message
// mutations over the room's channel, maintains the live window from
// inbound events, and resynchronizes the window from stream history
// after a discontinuity.
type Feature struct {
	ch       channel.Channel
	clientID string
	origin   string
	window   *Window
	logger   *slog.Logger

	mu     sync.Mutex
	lastMs int64
	seq    int
	sub    channel.Subscription
}

// FeatureOption configures the messages façade.
type FeatureOption func(*Feature)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FeatureOption {
	return func(f *Feature) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithWindow supplies a pre-configured window, for callers that want a
// non-default limit.
func WithWindow(window *Window) FeatureOption {
	return func(f *Feature) {
		if window != nil {
			f.window = window
		}
	}
}

// NewFeature creates the messages façade for a room and subscribes it
// to the room's channel. Register it on the room to receive
// discontinuity events.
func NewFeature(r *room.Room, clientID string, opts ...FeatureOption) *Feature {
	f := &Feature{
		ch:       r.Channel(),
		clientID: clientID,
		origin:   strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.window == nil {
		f.window = NewWindow(WithWindowLogger(f.logger))
	}

	f.sub = f.ch.Subscribe(f.handleChannelMessage)
	r.RegisterFeature(f)
	return f
}

// Name implements room.Feature.
func (f *Feature) Name() string { return "messages" }

// AttachmentErrorCode implements room.Feature.
func (f *Feature) AttachmentErrorCode() errors.Code { return errors.CodeMessagesAttachmentFailed }

// DetachmentErrorCode implements room.Feature.
func (f *Feature) DetachmentErrorCode() errors.Code { return errors.CodeMessagesDetachmentFailed }

// Send publishes a new message and returns it as it will appear to
// subscribers. The returned message reflects the send, not the echo:
// the window picks it up when the channel delivers it back.
func (f *Feature) Send(ctx context.Context, text string, opts *SendOptions) (*Message, error) {
	if text == "" {
		return nil, errors.BadRequest("cannot send an empty message")
	}

	serial := f.nextSerial()
	m := &Message{
		Serial:    serial,
		Action:    ActionCreated,
		ClientID:  f.clientID,
		Text:      text,
		Version:   Version{Serial: serial, ClientID: f.clientID},
		Timestamp: timestamp.Now(),
	}
	if opts != nil {
		m.Metadata = opts.Metadata
		m.Headers = opts.Headers
	}

	if err := f.publish(ctx, &Event{Type: EventCreated, Message: m}); err != nil {
		return nil, errors.Wrap(err, "Feature", "Send", "publish message")
	}
	return m, nil
}

// Update publishes a new version of an existing message with the given
// text and returns the superseding message.
func (f *Feature) Update(ctx context.Context, m *Message, text string, opts *EditOptions) (*Message, error) {
	if m == nil {
		return nil, errors.BadRequest("cannot update a nil message")
	}
	if err := m.Serial.Validate(); err != nil {
		return nil, err
	}

	next := *m
	next.Action = ActionUpdated
	next.Text = text
	next.Version = f.nextVersion(opts)
	next.Timestamp = timestamp.Now()

	if err := f.publish(ctx, &Event{Type: EventUpdated, Message: &next}); err != nil {
		return nil, errors.Wrap(err, "Feature", "Update", "publish update")
	}
	return &next, nil
}

// Delete publishes a deletion of an existing message. The message
// remains in the window with ActionDeleted and empty content.
func (f *Feature) Delete(ctx context.Context, m *Message, opts *EditOptions) (*Message, error) {
	if m == nil {
		return nil, errors.BadRequest("cannot delete a nil message")
	}
	if err := m.Serial.Validate(); err != nil {
		return nil, err
	}

	next := *m
	next.Action = ActionDeleted
	next.Text = ""
	next.Metadata = nil
	next.Headers = nil
	next.Version = f.nextVersion(opts)
	next.Timestamp = timestamp.Now()

	if err := f.publish(ctx, &Event{Type: EventDeleted, Message: &next}); err != nil {
		return nil, errors.Wrap(err, "Feature", "Delete", "publish deletion")
	}
	return &next, nil
}

// Window returns the live message window.
func (f *Feature) Window() *Window {
	return f.window
}

// OnSnapshot registers a listener for window snapshots.
func (f *Feature) OnSnapshot(listener func([]*Message)) func() {
	return f.window.OnSnapshot(listener)
}

// HandleDiscontinuity implements room.Feature. The window may have
// missed an unknown number of events, so it is rebuilt from stream
// history rather than patched.
func (f *Feature) HandleDiscontinuity(reason *errors.ErrorInfo) {
	replayer, ok := f.ch.(channel.Replayer)
	if !ok {
		f.logger.Warn("cannot resync messages, channel does not support replay",
			"channel", f.ch.Name(), "reason", reason)
		return
	}

	f.logger.Info("resyncing message window after discontinuity",
		"channel", f.ch.Name(), "reason", reason)

	rebuilt := NewWindow(WithWindowLogger(f.logger), WithWindowLimit(f.window.limit))
	err := replayer.Replay(context.Background(), f.window.limit, func(msg channel.Message) {
		event, perr := ParseEvent(msg)
		if perr != nil || event == nil {
			return
		}
		rebuilt.Ingest(event)
	})
	if err != nil {
		f.logger.Error("message window resync failed",
			"channel", f.ch.Name(), "error", err)
		return
	}

	f.window.ReplaceAll(rebuilt.Snapshot())
}

// Dispose implements room.Feature.
func (f *Feature) Dispose() {
	f.mu.Lock()
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()

	if sub != nil {
		sub.Off()
	}
	f.window.OffAll()
}

func (f *Feature) handleChannelMessage(msg channel.Message) {
	event, err := ParseEvent(msg)
	if err != nil {
		f.logger.Warn("dropping malformed message event",
			"channel", f.ch.Name(), "type", msg.Type, "error", err)
		return
	}
	if event == nil {
		return
	}
	f.window.Ingest(event)
}

func (f *Feature) publish(ctx context.Context, event *Event) error {
	eventType, data, err := event.Encode()
	if err != nil {
		return err
	}
	return f.ch.Publish(ctx, eventType, data)
}

// nextSerial mints a serial unique to this origin. The sequence resets
// every millisecond and disambiguates same-millisecond mints.
func (f *Feature) nextSerial() Serial {
	f.mu.Lock()
	defer f.mu.Unlock()

	ms := timestamp.Now()
	if ms == f.lastMs {
		f.seq++
	} else {
		f.lastMs = ms
		f.seq = 0
	}
	return NewSerial(ms, f.seq, f.origin)
}

func (f *Feature) nextVersion(opts *EditOptions) Version {
	v := Version{Serial: f.nextSerial(), ClientID: f.clientID}
	if opts != nil {
		v.Description = opts.Description
		v.Metadata = opts.Metadata
	}
	return v
}
