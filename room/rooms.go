package room

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/chatkit/channel"
)

// Rooms is the registry owning room construction and release. Get
// returns the same room instance for a name until that room is
// released; a released name gets a fresh room on the next Get.
type Rooms struct {
	provider channel.Provider
	opts     []RoomOption

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRooms creates an empty registry. The given options are applied to
// every room the registry constructs.
func NewRooms(provider channel.Provider, opts ...RoomOption) *Rooms {
	return &Rooms{
		provider: provider,
		opts:     opts,
		rooms:    make(map[string]*Room),
	}
}

// Get returns the room with the given name, constructing it on first
// use.
func (rs *Rooms) Get(name string) (*Room, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r, ok := rs.rooms[name]; ok {
		return r, nil
	}
	r, err := NewRoom(name, rs.provider, rs.opts...)
	if err != nil {
		return nil, err
	}
	rs.rooms[name] = r
	return r, nil
}

// Release releases the named room and removes it from the registry.
// Releasing an unknown name is a no-op.
func (rs *Rooms) Release(ctx context.Context, name string) error {
	rs.mu.Lock()
	r, ok := rs.rooms[name]
	rs.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.Release(ctx); err != nil {
		return err
	}
	rs.mu.Lock()
	// Only drop the entry if it still refers to the room we released.
	if cur, ok := rs.rooms[name]; ok && cur == r {
		delete(rs.rooms, name)
	}
	rs.mu.Unlock()
	return nil
}

// Close releases every room concurrently and empties the registry.
func (rs *Rooms) Close(ctx context.Context) error {
	rs.mu.Lock()
	names := make([]string, 0, len(rs.rooms))
	for name := range rs.rooms {
		names = append(names, name)
	}
	rs.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			return rs.Release(ctx, name)
		})
	}
	return g.Wait()
}
