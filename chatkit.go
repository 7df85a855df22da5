package chatkit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/config"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/message"
	"github.com/c360/chatkit/metric"
	"github.com/c360/chatkit/occupancy"
	"github.com/c360/chatkit/presence"
	"github.com/c360/chatkit/pkg/retry"
	"github.com/c360/chatkit/room"
	"github.com/c360/chatkit/typing"
)

// Client owns the transport connection and the room registry.
type Client struct {
	cfg      *config.Config
	clientID string
	logger   *slog.Logger
	metrics  *metric.Metrics
	provider channel.Provider
	rooms    *room.Rooms

	// closer is set when the client constructed the provider itself and
	// is responsible for shutting it down.
	closer func(context.Context) error

	mu      sync.Mutex
	handles map[string]*ChatRoom
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger used by the client, its rooms
// and their features.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches prometheus instrumentation to every room.
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithProvider injects a channel provider, replacing the NATS provider
// the client would otherwise construct. The caller keeps ownership of
// the provider's lifetime.
func WithProvider(provider channel.Provider) ClientOption {
	return func(c *Client) {
		c.provider = provider
	}
}

// NewClient creates a client from cfg, connecting to the transport
// unless a provider is injected. A nil cfg uses config.Default().
func NewClient(ctx context.Context, cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "validate config")
	}

	c := &Client{
		cfg:      cfg,
		clientID: cfg.ClientID,
		logger:   slog.Default(),
		handles:  make(map[string]*ChatRoom),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clientID == "" {
		c.clientID = uuid.NewString()
	}

	if c.provider == nil {
		provider, err := channel.NewNATSProvider(ctx, cfg.NATS.URL,
			channel.WithLogger(c.logger),
			channel.WithStream(cfg.NATS.Stream),
			channel.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			channel.WithConnectWait(cfg.NATS.ConnectWait),
		)
		if err != nil {
			return nil, errors.Wrap(err, "Client", "NewClient", "connect transport")
		}
		c.provider = provider
		c.closer = provider.Close
	}

	roomOpts := []room.RoomOption{
		room.WithRoomLogger(c.logger),
		room.WithRoomReleaseRetry(retry.Config{
			InitialDelay: cfg.Release.InitialDelay,
			MaxDelay:     cfg.Release.MaxDelay,
			Multiplier:   cfg.Release.Multiplier,
			AddJitter:    true,
		}),
	}
	if c.metrics != nil {
		roomOpts = append(roomOpts, room.WithRoomMetrics(c.metrics))
	}
	c.rooms = room.NewRooms(c.provider, roomOpts...)

	return c, nil
}

// ClientID returns the identity this client publishes under.
func (c *Client) ClientID() string {
	return c.clientID
}

// Room returns the named room, constructing it and its features on
// first use. The same ChatRoom is returned for a name until that room
// is released.
func (c *Client) Room(name string) (*ChatRoom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "Room", "get room")
	}
	if handle, ok := c.handles[name]; ok && handle.room == r {
		return handle, nil
	}

	handle := c.buildRoom(r)
	c.handles[name] = handle
	return handle, nil
}

// Release tears down the named room. Subsequent Room calls for the
// same name return a fresh room.
func (c *Client) Release(ctx context.Context, name string) error {
	if err := c.rooms.Release(ctx, name); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.handles, name)
	c.mu.Unlock()
	return nil
}

// Close releases every room and, when the client owns the transport
// connection, shuts it down.
func (c *Client) Close(ctx context.Context) error {
	err := c.rooms.Close(ctx)

	c.mu.Lock()
	c.handles = make(map[string]*ChatRoom)
	c.mu.Unlock()

	if c.closer != nil {
		if cerr := c.closer(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

func (c *Client) buildRoom(r *room.Room) *ChatRoom {
	// Messages registers first and becomes the primary lifecycle
	// contributor: shared-channel failures carry its error codes.
	msgWindow := message.NewWindow(
		message.WithWindowLimit(c.cfg.Messages.WindowLimit),
		message.WithWindowLogger(c.logger),
	)
	messages := message.NewFeature(r, c.clientID,
		message.WithLogger(c.logger),
		message.WithWindow(msgWindow),
	)

	typingOpts := []typing.FeatureOption{
		typing.WithLogger(c.logger),
		typing.WithHeartbeatInterval(c.cfg.Typing.HeartbeatInterval),
	}
	if c.cfg.Typing.InactivityTimeout > 0 {
		typingOpts = append(typingOpts, typing.WithInactivityTimeout(c.cfg.Typing.InactivityTimeout))
	}

	return &ChatRoom{
		room:      r,
		messages:  messages,
		typing:    typing.NewFeature(r, c.clientID, typingOpts...),
		presence:  presence.NewFeature(r, c.clientID, presence.WithLogger(c.logger)),
		occupancy: occupancy.NewFeature(r, occupancy.WithLogger(c.logger)),
	}
}

// ChatRoom is one room with its feature façades wired up.
type ChatRoom struct {
	room      *room.Room
	messages  *message.Feature
	typing    *typing.Feature
	presence  *presence.Feature
	occupancy *occupancy.Feature
}

// Name returns the room name.
func (cr *ChatRoom) Name() string { return cr.room.Name() }

// Status returns the current lifecycle status.
func (cr *ChatRoom) Status() room.StatusCode { return cr.room.Status() }

// ErrorReason returns the error associated with the current status, or
// nil.
func (cr *ChatRoom) ErrorReason() *errors.ErrorInfo { return cr.room.ErrorReason() }

// Attach attaches the room, starting message delivery to every
// feature.
func (cr *ChatRoom) Attach(ctx context.Context) error { return cr.room.Attach(ctx) }

// Detach detaches the room, stopping message delivery.
func (cr *ChatRoom) Detach(ctx context.Context) error { return cr.room.Detach(ctx) }

// OnStatusChange registers an observer for room status transitions.
func (cr *ChatRoom) OnStatusChange(listener func(room.StatusChange)) channel.Subscription {
	return cr.room.OnStatusChange(listener)
}

// OnDiscontinuity registers a listener for discontinuity events.
func (cr *ChatRoom) OnDiscontinuity(listener func(*errors.ErrorInfo)) channel.Subscription {
	return cr.room.OnDiscontinuity(listener)
}

// Messages returns the messages façade.
func (cr *ChatRoom) Messages() *message.Feature { return cr.messages }

// Typing returns the typing indicator façade.
func (cr *ChatRoom) Typing() *typing.Feature { return cr.typing }

// Presence returns the presence façade.
func (cr *ChatRoom) Presence() *presence.Feature { return cr.presence }

// Occupancy returns the occupancy façade.
func (cr *ChatRoom) Occupancy() *occupancy.Feature { return cr.occupancy }
