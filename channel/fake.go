package channel

import (
	"context"
	"sync"

	"github.com/c360/chatkit/errors"
)

// Fake is a scriptable in-memory Channel implementation for tests.
// Attach and Detach consume scripted error queues (empty queue means
// success), every call is counted, and tests can inject state events
// and inbound messages directly.
type Fake struct {
	name string

	mu             sync.Mutex
	state          State
	errorReason    *errors.ErrorInfo
	stateListeners map[int]func(StateEvent)
	msgListeners   map[int]func(Message)
	nextListenerID int

	attachErrs []error
	detachErrs []error

	attachCalls int
	detachCalls int

	published  []FakePublished
	publishErr error
	replay     []Message
	replayErr  error

	// AttachFunc and DetachFunc, when set, replace the default
	// scripted behavior entirely. Calls are still counted.
	AttachFunc func(ctx context.Context) error
	DetachFunc func(ctx context.Context) error
}

// FakePublished records one Publish call on a Fake.
type FakePublished struct {
	Type string
	Data []byte
}

// NewFake creates a fake channel in the initialized state.
func NewFake(name string) *Fake {
	return &Fake{
		name:           name,
		state:          StateInitialized,
		stateListeners: make(map[int]func(StateEvent)),
		msgListeners:   make(map[int]func(Message)),
	}
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetState forces the channel state without emitting an event.
func (f *Fake) SetState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *Fake) ErrorReason() *errors.ErrorInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorReason
}

// FailAttachWith queues errors returned by successive Attach calls.
func (f *Fake) FailAttachWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachErrs = append(f.attachErrs, errs...)
}

// FailDetachWith queues errors returned by successive Detach calls.
func (f *Fake) FailDetachWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachErrs = append(f.detachErrs, errs...)
}

// AttachCalls returns the number of Attach invocations.
func (f *Fake) AttachCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachCalls
}

// DetachCalls returns the number of Detach invocations.
func (f *Fake) DetachCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detachCalls
}

func (f *Fake) Attach(ctx context.Context) error {
	f.mu.Lock()
	f.attachCalls++
	override := f.AttachFunc
	f.mu.Unlock()

	if override != nil {
		return override(ctx)
	}

	f.mu.Lock()
	var err error
	if len(f.attachErrs) > 0 {
		err = f.attachErrs[0]
		f.attachErrs = f.attachErrs[1:]
	}
	if err != nil {
		f.state = StateFailed
		f.errorReason = errors.Internal("attach failed", err)
		f.mu.Unlock()
		return err
	}
	f.state = StateAttached
	f.errorReason = nil
	f.mu.Unlock()
	return nil
}

func (f *Fake) Detach(ctx context.Context) error {
	f.mu.Lock()
	f.detachCalls++
	override := f.DetachFunc
	f.mu.Unlock()

	if override != nil {
		return override(ctx)
	}

	f.mu.Lock()
	var err error
	if len(f.detachErrs) > 0 {
		err = f.detachErrs[0]
		f.detachErrs = f.detachErrs[1:]
	}
	if err != nil {
		f.state = StateFailed
		f.errorReason = errors.Internal("detach failed", err)
		f.mu.Unlock()
		return err
	}
	f.state = StateDetached
	f.errorReason = nil
	f.mu.Unlock()
	return nil
}

func (f *Fake) Publish(_ context.Context, eventType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, FakePublished{Type: eventType, Data: data})
	return nil
}

// FailPublishWith makes subsequent Publish calls return err until
// cleared with a nil err.
func (f *Fake) FailPublishWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

// Published returns a copy of every recorded Publish call.
func (f *Fake) Published() []FakePublished {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakePublished, len(f.published))
	copy(out, f.published)
	return out
}

func (f *Fake) Subscribe(handler func(Message)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextListenerID
	f.nextListenerID++
	f.msgListeners[id] = handler
	return &listenerSub{off: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.msgListeners, id)
	}}
}

func (f *Fake) On(listener func(StateEvent)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextListenerID
	f.nextListenerID++
	f.stateListeners[id] = listener
	return &listenerSub{off: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.stateListeners, id)
	}}
}

func (f *Fake) OffAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateListeners = make(map[int]func(StateEvent))
	f.msgListeners = make(map[int]func(Message))
}

// ListenerCount returns the number of registered state and message
// listeners, for leak assertions.
func (f *Fake) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stateListeners) + len(f.msgListeners)
}

// EmitStateEvent synchronously delivers a state event to listeners and
// records the new state, as an unsolicited transport notification
// would.
func (f *Fake) EmitStateEvent(event StateEvent) {
	f.mu.Lock()
	f.state = event.Current
	f.errorReason = event.Reason
	listeners := make([]func(StateEvent), 0, len(f.stateListeners))
	for _, l := range f.stateListeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}

// EmitMessage synchronously delivers an inbound message to subscribers.
func (f *Fake) EmitMessage(m Message) {
	f.mu.Lock()
	handlers := make([]func(Message), 0, len(f.msgListeners))
	for _, h := range f.msgListeners {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(m)
	}
}

// SetReplay scripts the history returned by Replay.
func (f *Fake) SetReplay(msgs []Message, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replay = msgs
	f.replayErr = err
}

func (f *Fake) Replay(_ context.Context, limit int, handler func(Message)) error {
	f.mu.Lock()
	msgs := make([]Message, len(f.replay))
	copy(msgs, f.replay)
	err := f.replayErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	for _, m := range msgs {
		handler(m)
	}
	return nil
}

var _ Channel = (*Fake)(nil)
var _ Replayer = (*Fake)(nil)

// FakeProvider is an in-memory Provider whose Release calls are
// counted, for release-convergence assertions.
type FakeProvider struct {
	mu           sync.Mutex
	channels     map[string]*Fake
	releaseCalls map[string]int
	releaseErr   error
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		channels:     make(map[string]*Fake),
		releaseCalls: make(map[string]int),
	}
}

func (p *FakeProvider) Get(name string) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.channels[name]; ok {
		return ch, nil
	}
	ch := NewFake(name)
	p.channels[name] = ch
	return ch, nil
}

// Channel returns the fake backing name, creating it if necessary.
func (p *FakeProvider) Channel(name string) *Fake {
	ch, _ := p.Get(name)
	return ch.(*Fake)
}

func (p *FakeProvider) Release(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseCalls[name]++
	if p.releaseErr != nil {
		return p.releaseErr
	}
	delete(p.channels, name)
	return nil
}

// ReleaseCalls returns how many times Release was invoked for name.
func (p *FakeProvider) ReleaseCalls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseCalls[name]
}

// FailReleaseWith makes subsequent Release calls return err.
func (p *FakeProvider) FailReleaseWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseErr = err
}

var _ Provider = (*FakeProvider)(nil)
