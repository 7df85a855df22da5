package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/channel"
)

func TestRooms_GetReturnsSameInstance(t *testing.T) {
	rs := NewRooms(channel.NewFakeProvider())

	a, err := rs.Get("general")
	require.NoError(t, err)
	b, err := rs.Get("general")
	require.NoError(t, err)

	assert.Same(t, a, b)
}

func TestRooms_ReleaseRemovesRoom(t *testing.T) {
	provider := channel.NewFakeProvider()
	rs := NewRooms(provider, WithRoomReleaseRetry(fastReleaseRetry()))

	a, err := rs.Get("general")
	require.NoError(t, err)
	require.NoError(t, a.Attach(context.Background()))

	require.NoError(t, rs.Release(context.Background(), "general"))
	assert.Equal(t, StatusReleased, a.Status())
	assert.Equal(t, 1, provider.ReleaseCalls("general"))

	// A released name yields a fresh room.
	b, err := rs.Get("general")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, StatusInitialized, b.Status())
}

func TestRooms_ReleaseUnknownNameIsNoOp(t *testing.T) {
	rs := NewRooms(channel.NewFakeProvider())
	assert.NoError(t, rs.Release(context.Background(), "missing"))
}

func TestRooms_CloseReleasesAllRooms(t *testing.T) {
	provider := channel.NewFakeProvider()
	rs := NewRooms(provider, WithRoomReleaseRetry(fastReleaseRetry()))

	names := []string{"general", "random", "support"}
	rooms := make([]*Room, 0, len(names))
	for _, name := range names {
		r, err := rs.Get(name)
		require.NoError(t, err)
		require.NoError(t, r.Attach(context.Background()))
		rooms = append(rooms, r)
	}

	require.NoError(t, rs.Close(context.Background()))

	for i, r := range rooms {
		assert.Equal(t, StatusReleased, r.Status())
		assert.Equal(t, 1, provider.ReleaseCalls(names[i]))
	}
}
