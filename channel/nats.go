package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/chatkit/errors"
)

// NATSProvider vends channels backed by NATS JetStream. Each channel
// maps to a filtered durable consumer on a shared stream, so message
// delivery survives detach/attach cycles and the provider can tell
// whether a reattach resumed cleanly or skipped messages.
type NATSProvider struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger

	stream        string
	subjectPrefix string
	connectWait   time.Duration

	mu       sync.Mutex
	channels map[string]*natsChannel
	closed   bool
}

// NATSProviderOption configures a NATSProvider.
type NATSProviderOption func(*NATSProvider)

// WithLogger sets the structured logger used by the provider and its
// channels.
func WithLogger(logger *slog.Logger) NATSProviderOption {
	return func(p *NATSProvider) {
		p.logger = logger
	}
}

// WithStream sets the JetStream stream name backing all channels.
func WithStream(name string) NATSProviderOption {
	return func(p *NATSProvider) {
		p.stream = name
	}
}

// WithSubjectPrefix sets the subject prefix for channel subjects.
func WithSubjectPrefix(prefix string) NATSProviderOption {
	return func(p *NATSProvider) {
		p.subjectPrefix = prefix
	}
}

// WithConnectWait sets the NATS connection timeout.
func WithConnectWait(d time.Duration) NATSProviderOption {
	return func(p *NATSProvider) {
		p.connectWait = d
	}
}

// NewNATSProvider connects to NATS at url and prepares the backing
// stream. The stream is created if it does not exist.
func NewNATSProvider(ctx context.Context, url string, opts ...NATSProviderOption) (*NATSProvider, error) {
	p := &NATSProvider{
		logger:        slog.Default(),
		stream:        "CHATKIT",
		subjectPrefix: "chatkit",
		connectWait:   5 * time.Second,
		channels:      make(map[string]*natsChannel),
	}
	for _, opt := range opts {
		opt(p)
	}

	conn, err := nats.Connect(url,
		nats.Timeout(p.connectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.handleDisconnect(err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.handleReconnect()
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "NATSProvider", "NewNATSProvider", "connect")
	}
	p.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "NATSProvider", "NewNATSProvider", "init jetstream")
	}
	p.js = js

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     p.stream,
		Subjects: []string{p.subjectPrefix + ".>"},
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "NATSProvider", "NewNATSProvider", "create stream")
	}

	p.logger.Debug("created NATS channel provider", "url", url, "stream", p.stream)
	return p, nil
}

// Get returns the channel with the given name, creating it on first
// use. The same instance is returned for repeated calls until the
// channel is released.
func (p *NATSProvider) Get(name string) (Channel, error) {
	if name == "" || strings.ContainsAny(name, ".*> ") {
		return nil, errors.BadRequestf("invalid channel name %q", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.BadRequest("channel provider is closed")
	}
	if ch, ok := p.channels[name]; ok {
		return ch, nil
	}
	ch := &natsChannel{
		provider:       p,
		name:           name,
		subject:        p.subjectPrefix + "." + name,
		state:          StateInitialized,
		stateListeners: make(map[int]func(StateEvent)),
		msgListeners:   make(map[int]func(Message)),
	}
	p.channels[name] = ch
	return ch, nil
}

// Release detaches and discards the named channel, deleting its
// durable consumer so the transport-side resources are reclaimed.
func (p *NATSProvider) Release(ctx context.Context, name string) error {
	p.mu.Lock()
	ch, ok := p.channels[name]
	delete(p.channels, name)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	ch.stopConsuming()
	ch.OffAll()

	if err := p.js.DeleteConsumer(ctx, p.stream, ch.consumerName()); err != nil {
		// A consumer that was never created or already deleted is not a
		// release failure.
		if !strings.Contains(err.Error(), "consumer not found") {
			return errors.Wrap(err, "NATSProvider", "Release", "delete consumer")
		}
	}
	p.logger.Debug("released channel", "channel", name)
	return nil
}

// Close releases every channel and closes the NATS connection.
func (p *NATSProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	names := make([]string, 0, len(p.channels))
	for name := range p.channels {
		names = append(names, name)
	}
	p.mu.Unlock()

	for _, name := range names {
		if err := p.Release(ctx, name); err != nil {
			p.logger.Error("failed to release channel during close", "channel", name, "error", err)
		}
	}
	p.conn.Close()
	return nil
}

func (p *NATSProvider) snapshotChannels() []*natsChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*natsChannel, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch)
	}
	return out
}

// handleDisconnect moves every attached channel to suspended. The NATS
// client reconnects on its own; handleReconnect restores them.
func (p *NATSProvider) handleDisconnect(err error) {
	reason := errors.Internal("transport connection lost", err)
	for _, ch := range p.snapshotChannels() {
		ch.suspend(reason)
	}
}

// handleReconnect reattaches every suspended channel. JetStream durable
// consumers pick up where they left off unless the stream has dropped
// messages past the consumer's position, which each channel checks to
// decide the Resumed flag.
func (p *NATSProvider) handleReconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectWait)
	defer cancel()
	for _, ch := range p.snapshotChannels() {
		ch.resumeAfterReconnect(ctx)
	}
}

// natsChannel implements Channel over a filtered durable JetStream
// consumer.
type natsChannel struct {
	provider *NATSProvider
	name     string
	subject  string

	mu             sync.Mutex
	state          State
	errorReason    *errors.ErrorInfo
	stateListeners map[int]func(StateEvent)
	msgListeners   map[int]func(Message)
	nextListenerID int

	consume       jetstream.ConsumeContext
	lastStreamSeq uint64
	hasConsumed   bool
}

func (c *natsChannel) Name() string { return c.name }

func (c *natsChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *natsChannel) ErrorReason() *errors.ErrorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorReason
}

func (c *natsChannel) consumerName() string {
	return "chatkit-" + c.name
}

// Attach binds the channel's durable consumer and starts delivery.
func (c *natsChannel) Attach(ctx context.Context) error {
	c.setState(StateAttaching, nil, false, false)

	cons, err := c.provider.js.CreateOrUpdateConsumer(ctx, c.provider.stream, jetstream.ConsumerConfig{
		Durable:       c.consumerName(),
		FilterSubject: c.subject + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		reason := errors.Internal("failed to create consumer", err)
		c.setState(StateFailed, reason, false, false)
		return errors.Wrap(reason, "Channel", "Attach", "create consumer")
	}

	resumed := c.resumedAfterGapCheck(ctx)

	consume, err := cons.Consume(func(msg jetstream.Msg) {
		c.deliver(msg)
	})
	if err != nil {
		reason := errors.Internal("failed to start consuming", err)
		c.setState(StateFailed, reason, false, false)
		return errors.Wrap(reason, "Channel", "Attach", "start consumer")
	}

	c.mu.Lock()
	c.consume = consume
	c.mu.Unlock()

	c.setState(StateAttached, nil, resumed, false)
	return nil
}

// Detach stops delivery but keeps the durable consumer, so a later
// Attach resumes from the consumer's saved position.
func (c *natsChannel) Detach(_ context.Context) error {
	c.setState(StateDetaching, nil, false, false)
	c.stopConsuming()
	c.setState(StateDetached, nil, false, false)
	return nil
}

func (c *natsChannel) Publish(ctx context.Context, eventType string, data []byte) error {
	if eventType == "" || strings.ContainsAny(eventType, ".*> ") {
		return errors.BadRequestf("invalid event type %q", eventType)
	}
	_, err := c.provider.js.Publish(ctx, c.subject+"."+eventType, data)
	if err != nil {
		return errors.Wrap(err, "Channel", "Publish", "publish message")
	}
	return nil
}

func (c *natsChannel) Subscribe(handler func(Message)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.msgListeners[id] = handler
	return &listenerSub{off: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.msgListeners, id)
	}}
}

func (c *natsChannel) On(listener func(StateEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.stateListeners[id] = listener
	return &listenerSub{off: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateListeners, id)
	}}
}

func (c *natsChannel) OffAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = make(map[int]func(StateEvent))
	c.msgListeners = make(map[int]func(Message))
}

// Replay fetches up to limit historical messages from the stream,
// oldest first, using a transient ordered consumer.
func (c *natsChannel) Replay(ctx context.Context, limit int, handler func(Message)) error {
	cons, err := c.provider.js.OrderedConsumer(ctx, c.provider.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{c.subject + ".>"},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return errors.Wrap(err, "Channel", "Replay", "create ordered consumer")
	}

	batch, err := cons.FetchNoWait(limit)
	if err != nil {
		return errors.Wrap(err, "Channel", "Replay", "fetch history")
	}
	for msg := range batch.Messages() {
		handler(Message{Type: c.eventTypeOf(msg.Subject()), Data: msg.Data()})
	}
	if err := batch.Error(); err != nil {
		return errors.Wrap(err, "Channel", "Replay", "drain history batch")
	}
	return nil
}

func (c *natsChannel) eventTypeOf(subject string) string {
	if idx := strings.LastIndex(subject, "."); idx >= 0 {
		return subject[idx+1:]
	}
	return subject
}

func (c *natsChannel) deliver(msg jetstream.Msg) {
	if meta, err := msg.Metadata(); err == nil {
		c.mu.Lock()
		c.lastStreamSeq = meta.Sequence.Stream
		c.hasConsumed = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	handlers := make([]func(Message), 0, len(c.msgListeners))
	for _, h := range c.msgListeners {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	m := Message{Type: c.eventTypeOf(msg.Subject()), Data: msg.Data()}
	for _, h := range handlers {
		h(m)
	}
	if err := msg.Ack(); err != nil {
		c.provider.logger.Debug("failed to ack message", "channel", c.name, "error", err)
	}
}

// resumedAfterGapCheck reports whether message continuity held across
// the gap since the channel last consumed. Delivery is continuous
// unless the stream has already discarded messages past the channel's
// last seen sequence.
func (c *natsChannel) resumedAfterGapCheck(ctx context.Context) bool {
	c.mu.Lock()
	hasConsumed := c.hasConsumed
	lastSeq := c.lastStreamSeq
	c.mu.Unlock()

	if !hasConsumed {
		return false
	}
	stream, err := c.provider.js.Stream(ctx, c.provider.stream)
	if err != nil {
		return false
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return false
	}
	return info.State.FirstSeq <= lastSeq+1
}

func (c *natsChannel) stopConsuming() {
	c.mu.Lock()
	consume := c.consume
	c.consume = nil
	c.mu.Unlock()
	if consume != nil {
		consume.Stop()
	}
}

func (c *natsChannel) suspend(reason *errors.ErrorInfo) {
	c.mu.Lock()
	attached := c.state == StateAttached
	c.mu.Unlock()
	if attached {
		c.setState(StateSuspended, reason, false, false)
	}
}

func (c *natsChannel) resumeAfterReconnect(ctx context.Context) {
	c.mu.Lock()
	suspended := c.state == StateSuspended
	c.mu.Unlock()
	if !suspended {
		return
	}
	resumed := c.resumedAfterGapCheck(ctx)
	c.setState(StateAttached, nil, resumed, false)
}

// setState updates the channel state and notifies state listeners.
func (c *natsChannel) setState(next State, reason *errors.ErrorInfo, resumed, isUpdate bool) {
	c.mu.Lock()
	previous := c.state
	c.state = next
	c.errorReason = reason
	listeners := make([]func(StateEvent), 0, len(c.stateListeners))
	for _, l := range c.stateListeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	event := StateEvent{
		Previous: previous,
		Current:  next,
		Resumed:  resumed,
		Reason:   reason,
		IsUpdate: isUpdate,
	}
	for _, l := range listeners {
		l(event)
	}
}

type listenerSub struct {
	once sync.Once
	off  func()
}

func (s *listenerSub) Off() {
	s.once.Do(s.off)
}

var _ Channel = (*natsChannel)(nil)
var _ Replayer = (*natsChannel)(nil)
var _ Provider = (*NATSProvider)(nil)

// String formatting helper for log output.
func (c *natsChannel) String() string {
	return fmt.Sprintf("channel(%s, %s)", c.name, c.State())
}
