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

// Room ties one channel, one status container and one lifecycle
// manager together and composes the registered feature façades on top
// of them. Feature packages build against this type; they never touch
// the lifecycle manager directly.
type Room struct {
	name     string
	logger   *slog.Logger
	metrics  *metric.Metrics
	provider channel.Provider
	ch       channel.Channel
	status   *Status
	manager  *LifecycleManager

	mu          sync.Mutex
	features    []Feature
	featureSubs []channel.Subscription
	disposed    bool
}

// RoomOption configures a Room.
type RoomOption func(*roomConfig)

type roomConfig struct {
	logger       *slog.Logger
	metrics      *metric.Metrics
	releaseRetry *retry.Config
}

// WithRoomLogger sets the structured logger for the room and its
// lifecycle manager.
func WithRoomLogger(logger *slog.Logger) RoomOption {
	return func(c *roomConfig) {
		c.logger = logger
	}
}

// WithRoomMetrics attaches prometheus instrumentation.
func WithRoomMetrics(metrics *metric.Metrics) RoomOption {
	return func(c *roomConfig) {
		c.metrics = metrics
	}
}

// WithRoomReleaseRetry overrides the release retry backoff.
func WithRoomReleaseRetry(cfg retry.Config) RoomOption {
	return func(c *roomConfig) {
		c.releaseRetry = &cfg
	}
}

// NewRoom creates a room backed by the named channel from provider.
func NewRoom(name string, provider channel.Provider, opts ...RoomOption) (*Room, error) {
	cfg := roomConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ch, err := provider.Get(name)
	if err != nil {
		return nil, errors.Wrap(err, "Room", "NewRoom", "get channel")
	}

	status := NewStatus()
	managerOpts := []LifecycleOption{
		WithLifecycleLogger(cfg.logger),
		WithMetrics(cfg.metrics),
	}
	if cfg.releaseRetry != nil {
		managerOpts = append(managerOpts, WithReleaseRetry(*cfg.releaseRetry))
	}

	r := &Room{
		name:     name,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		provider: provider,
		ch:       ch,
		status:   status,
		manager:  NewLifecycleManager(name, ch, provider, status, managerOpts...),
	}

	if cfg.metrics != nil {
		status.OnChange(func(change StatusChange) {
			cfg.metrics.RecordStatus(name, int(change.Current))
		})
	}

	return r, nil
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Channel returns the channel backing this room. Features publish and
// subscribe through it; lifecycle operations must go through the room.
func (r *Room) Channel() channel.Channel {
	return r.ch
}

// Status returns the current lifecycle status.
func (r *Room) Status() StatusCode {
	return r.status.Current()
}

// ErrorReason returns the error associated with the current status, or
// nil.
func (r *Room) ErrorReason() *errors.ErrorInfo {
	return r.status.Error()
}

// OnStatusChange registers an observer for room status transitions.
func (r *Room) OnStatusChange(listener func(StatusChange)) channel.Subscription {
	return r.status.OnChange(listener)
}

// OnDiscontinuity registers a listener for discontinuity events.
func (r *Room) OnDiscontinuity(listener func(*errors.ErrorInfo)) channel.Subscription {
	return r.manager.OnDiscontinuity(listener)
}

// Attach attaches the room.
func (r *Room) Attach(ctx context.Context) error {
	return r.manager.Attach(ctx)
}

// Detach detaches the room.
func (r *Room) Detach(ctx context.Context) error {
	return r.manager.Detach(ctx)
}

// Release tears the room down, returning its channel to the provider,
// and disposes all features and listeners. Idempotent.
func (r *Room) Release(ctx context.Context) error {
	if err := r.manager.Release(ctx); err != nil {
		return err
	}
	r.Dispose()
	return nil
}

// RegisterFeature composes a feature façade into the room. The first
// registered feature is the room's primary contributor: its
// attachment and detachment error codes are adopted for failures of
// the shared channel. Every feature receives discontinuity events.
func (r *Room) RegisterFeature(f Feature) {
	r.mu.Lock()
	primary := len(r.features) == 0
	r.features = append(r.features, f)
	r.mu.Unlock()

	if primary {
		r.manager.setErrorCodes(f.AttachmentErrorCode(), f.DetachmentErrorCode())
	}

	sub := r.manager.OnDiscontinuity(f.HandleDiscontinuity)
	r.mu.Lock()
	r.featureSubs = append(r.featureSubs, sub)
	r.mu.Unlock()

	r.logger.Debug("registered room feature", "room", r.name, "feature", f.Name())
}

// Dispose deterministically removes all listeners held by the room,
// its lifecycle manager and its features. Idempotent and safe to call
// multiple times.
func (r *Room) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	features := r.features
	subs := r.featureSubs
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Off()
	}
	for _, f := range features {
		f.Dispose()
	}
	r.manager.Dispose()
	r.status.OffAll()
}

// setErrorCodes updates the codes used to wrap transport failures.
func (m *LifecycleManager) setErrorCodes(attach, detach errors.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachCode = attach
	m.detachCode = detach
}
