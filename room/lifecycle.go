package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/metric"
	"github.com/c360/chatkit/pkg/retry"
)

// operation is the manager's in-flight operation variant. Modeling
// this as a tagged value rather than a boolean lets notification
// filtering and the discontinuity guard pattern-match on exactly what
// is in flight.
type operation int

const (
	opNone operation = iota
	opAttaching
	opDetaching
	opReleasing
)

// LifecycleManager orchestrates attach, detach and release against one
// channel, updates the room status, and derives discontinuity events
// from channel state notifications. It is the exclusive owner of its
// channel and the exclusive writer of its status container.
type LifecycleManager struct {
	roomName string
	ch       channel.Channel
	provider channel.Provider
	status   *Status
	logger   *slog.Logger
	metrics  *metric.Metrics
	retryCfg retry.Config

	mu              sync.Mutex
	op              operation
	hasAttachedOnce bool
	explicitDetach  bool
	attachCode      errors.Code
	detachCode      errors.Code
	discontinuity   map[int]func(*errors.ErrorInfo)
	nextSubID       int
	channelSub      channel.Subscription
	disposed        bool
	releasing       chan struct{}
	releaseErr      error
}

// LifecycleOption configures a LifecycleManager.
type LifecycleOption func(*LifecycleManager)

// WithLifecycleLogger sets the manager's structured logger.
func WithLifecycleLogger(logger *slog.Logger) LifecycleOption {
	return func(m *LifecycleManager) {
		m.logger = logger
	}
}

// WithMetrics attaches prometheus instrumentation to the manager.
func WithMetrics(metrics *metric.Metrics) LifecycleOption {
	return func(m *LifecycleManager) {
		m.metrics = metrics
	}
}

// WithReleaseRetry overrides the backoff configuration used by
// Release's detach retry loop. MaxAttempts is forced to unbounded;
// release never gives up.
func WithReleaseRetry(cfg retry.Config) LifecycleOption {
	return func(m *LifecycleManager) {
		cfg.MaxAttempts = 0
		m.retryCfg = cfg
	}
}

// WithErrorCodes sets the attachment and detachment error codes used
// when wrapping transport failures, contributed by the feature that
// owns the channel.
func WithErrorCodes(attach, detach errors.Code) LifecycleOption {
	return func(m *LifecycleManager) {
		m.attachCode = attach
		m.detachCode = detach
	}
}

// NewLifecycleManager creates a manager for the given channel and
// status container and begins listening for channel state
// notifications.
func NewLifecycleManager(
	roomName string,
	ch channel.Channel,
	provider channel.Provider,
	status *Status,
	opts ...LifecycleOption,
) *LifecycleManager {
	m := &LifecycleManager{
		roomName:      roomName,
		ch:            ch,
		provider:      provider,
		status:        status,
		logger:        slog.Default(),
		retryCfg:      retry.Teardown(),
		attachCode:    errors.CodeMessagesAttachmentFailed,
		detachCode:    errors.CodeMessagesDetachmentFailed,
		discontinuity: make(map[int]func(*errors.ErrorInfo)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.channelSub = ch.On(m.handleChannelEvent)
	return m
}

// Attach attaches the room's channel. It is a no-op when the room is
// already attached, and rejects before any channel call when the room
// is released or releasing. On transport failure the room moves to
// failed and the returned error carries the channel's reported failure
// reason as its cause.
func (m *LifecycleManager) Attach(ctx context.Context) error {
	m.mu.Lock()
	switch m.status.Current() {
	case StatusAttached:
		m.mu.Unlock()
		return nil
	case StatusReleased:
		m.mu.Unlock()
		return errors.ErrRoomIsReleased
	case StatusReleasing:
		m.mu.Unlock()
		return errors.ErrRoomIsReleasing
	}
	m.op = opAttaching
	attachCode := m.attachCode
	m.mu.Unlock()

	m.status.Set(StatusAttaching, nil)
	err := m.ch.Attach(ctx)

	m.mu.Lock()
	m.op = opNone
	if err == nil {
		m.hasAttachedOnce = true
		m.explicitDetach = false
	}
	m.mu.Unlock()

	if err != nil {
		cause := err
		if reason := m.ch.ErrorReason(); reason != nil {
			cause = reason
		}
		failure := errors.AttachmentFailed(attachCode, cause)
		m.status.Set(StatusFailed, failure)
		m.metrics.RecordAttach(m.roomName, failure)
		m.logger.Error("room attach failed", "room", m.roomName, "error", failure)
		return failure
	}

	m.status.Set(StatusAttached, nil)
	m.metrics.RecordAttach(m.roomName, nil)
	m.logger.Debug("room attached", "room", m.roomName)
	return nil
}

// Detach detaches the room's channel. It is a no-op when already
// detached, and rejects when the room is failed, released or
// releasing. An explicit detach masks the next reattach from
// discontinuity detection; the mask is dropped again if the detach
// itself fails, so an unrelated later gap is not hidden.
func (m *LifecycleManager) Detach(ctx context.Context) error {
	m.mu.Lock()
	switch m.status.Current() {
	case StatusDetached:
		m.mu.Unlock()
		return nil
	case StatusFailed:
		m.mu.Unlock()
		return errors.ErrRoomInFailedState
	case StatusReleased:
		m.mu.Unlock()
		return errors.ErrRoomIsReleased
	case StatusReleasing:
		m.mu.Unlock()
		return errors.ErrRoomIsReleasing
	}
	m.op = opDetaching
	m.explicitDetach = true
	detachCode := m.detachCode
	m.mu.Unlock()

	succeeded := false
	defer func() {
		if !succeeded {
			m.mu.Lock()
			m.explicitDetach = false
			m.mu.Unlock()
		}
	}()

	m.status.Set(StatusDetaching, nil)
	err := m.ch.Detach(ctx)

	m.mu.Lock()
	m.op = opNone
	m.mu.Unlock()

	if err != nil {
		failure := errors.DetachmentFailed(detachCode, err)
		m.status.Set(StatusFailed, failure)
		m.metrics.RecordDetach(m.roomName, failure)
		m.logger.Error("room detach failed", "room", m.roomName, "error", failure)
		return failure
	}

	succeeded = true
	m.status.Set(StatusDetached, nil)
	m.metrics.RecordDetach(m.roomName, nil)
	m.logger.Debug("room detached", "room", m.roomName)
	return nil
}

// Release tears the room down and returns the channel to its provider.
// It is idempotent: once released it returns immediately, and a
// concurrent call waits for the first to finish rather than releasing
// twice. Detach failures during release are retried with capped
// exponential backoff and never surfaced; only failure of the final
// resource-release step is returned, and a later Release may retry it.
func (m *LifecycleManager) Release(ctx context.Context) error {
	m.mu.Lock()
	if m.status.Current() == StatusReleased {
		m.mu.Unlock()
		return nil
	}
	if m.releasing != nil {
		done := m.releasing
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := m.releaseErr
		m.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	m.releasing = done
	m.op = opReleasing
	m.mu.Unlock()

	err := m.doRelease(ctx)

	m.mu.Lock()
	m.op = opNone
	m.releaseErr = err
	if err != nil {
		// Leave the door open for a later Release to retry the
		// resource-release step.
		m.releasing = nil
	}
	m.mu.Unlock()
	close(done)
	return err
}

func (m *LifecycleManager) doRelease(ctx context.Context) error {
	chState := m.ch.State()
	skipDetach := chState == channel.StateInitialized ||
		chState == channel.StateDetached ||
		chState == channel.StateFailed

	m.status.Set(StatusReleasing, nil)

	if !skipDetach {
		cfg := m.retryCfg
		cfg.MaxAttempts = 0
		cfg.OnRetry = func(attempt int, err error) {
			m.metrics.RecordReleaseRetry(m.roomName)
			m.logger.Warn("detach failed during release, retrying",
				"room", m.roomName, "attempt", attempt, "error", err)
		}
		if err := retry.Do(ctx, cfg, func() error {
			return m.ch.Detach(ctx)
		}); err != nil {
			// Only context cancellation ends an unbounded retry.
			return errors.Internal("release interrupted", err)
		}
	}

	if err := m.provider.Release(ctx, m.ch.Name()); err != nil {
		return errors.Internal("failed to release channel resource", err)
	}

	m.status.Set(StatusReleased, nil)
	m.logger.Debug("room released", "room", m.roomName)
	return nil
}

// OnDiscontinuity registers a listener for discontinuity events. The
// listener receives the reason reported by the channel, which may be
// nil.
func (m *LifecycleManager) OnDiscontinuity(listener func(*errors.ErrorInfo)) channel.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.discontinuity[id] = listener
	return &statusSub{off: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.discontinuity, id)
	}}
}

// Dispose removes the manager's channel listener and every
// discontinuity listener. It is idempotent and safe to call multiple
// times.
func (m *LifecycleManager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	sub := m.channelSub
	m.discontinuity = make(map[int]func(*errors.ErrorInfo))
	m.mu.Unlock()
	if sub != nil {
		sub.Off()
	}
}

// handleChannelEvent processes an unsolicited channel state
// notification. Discontinuity derivation runs on every notification;
// the status mapping applies only when no manager-initiated operation
// is in flight, because the in-flight operation's own outcome is
// authoritative for status.
func (m *LifecycleManager) handleChannelEvent(event channel.StateEvent) {
	var emit bool
	var listeners []func(*errors.ErrorInfo)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	if event.Current == channel.StateAttached {
		if !event.Resumed && m.hasAttachedOnce && !m.explicitDetach {
			emit = true
			listeners = make([]func(*errors.ErrorInfo), 0, len(m.discontinuity))
			for _, l := range m.discontinuity {
				listeners = append(listeners, l)
			}
		}
		m.hasAttachedOnce = true
		// An attached transition consumes the explicit-detach mask: it
		// hides exactly one reattach.
		m.explicitDetach = false
	}
	inFlight := m.op != opNone
	m.mu.Unlock()

	if !inFlight {
		m.status.Set(statusFromChannelState(event.Current), event.Reason)
	}

	if emit {
		m.metrics.RecordDiscontinuity(m.roomName)
		m.logger.Debug("discontinuity detected", "room", m.roomName, "reason", event.Reason)
		for _, l := range listeners {
			l(event.Reason)
		}
	}
}
