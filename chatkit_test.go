package chatkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/config"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/room"
)

func newTestClient(t *testing.T) (*Client, *channel.FakeProvider) {
	t.Helper()
	provider := channel.NewFakeProvider()
	client, err := NewClient(context.Background(), nil, WithProvider(provider))
	require.NoError(t, err)
	return client, provider
}

func TestNewClient_GeneratesClientID(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NotEmpty(t, client.ClientID())

	cfg := config.Default()
	cfg.ClientID = "alice"
	named, err := NewClient(context.Background(), cfg, WithProvider(channel.NewFakeProvider()))
	require.NoError(t, err)
	assert.Equal(t, "alice", named.ClientID())
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NATS.URL = ""
	_, err := NewClient(context.Background(), cfg, WithProvider(channel.NewFakeProvider()))
	assert.Error(t, err)
}

func TestRoom_ReturnsSameHandleUntilReleased(t *testing.T) {
	client, _ := newTestClient(t)

	a, err := client.Room("general")
	require.NoError(t, err)
	b, err := client.Room("general")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, client.Release(context.Background(), "general"))
	assert.Equal(t, room.StatusReleased, a.Status())

	c, err := client.Room("general")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, room.StatusInitialized, c.Status())
}

func TestRoom_EndToEndMessageFlow(t *testing.T) {
	client, provider := newTestClient(t)

	r, err := client.Room("general")
	require.NoError(t, err)
	require.NoError(t, r.Attach(context.Background()))
	assert.Equal(t, room.StatusAttached, r.Status())

	sent, err := r.Messages().Send(context.Background(), "hello", nil)
	require.NoError(t, err)

	// Redeliver the publish as the transport would.
	fake := provider.Channel("general")
	for _, p := range fake.Published() {
		fake.EmitMessage(channel.Message{Type: p.Type, Data: p.Data})
	}

	snapshot := r.Messages().Window().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, sent.Serial, snapshot[0].Serial)
	assert.Equal(t, client.ClientID(), snapshot[0].ClientID)
}

func TestRoom_SharedChannelFailuresCarryMessagesCodes(t *testing.T) {
	client, provider := newTestClient(t)

	r, err := client.Room("general")
	require.NoError(t, err)

	provider.Channel("general").FailAttachWith(assert.AnError)
	err = r.Attach(context.Background())
	assert.Equal(t, errors.CodeMessagesAttachmentFailed, errors.CodeOf(err))
}

func TestRoom_FeaturesShareOneChannel(t *testing.T) {
	client, provider := newTestClient(t)

	r, err := client.Room("general")
	require.NoError(t, err)
	require.NoError(t, r.Attach(context.Background()))

	fake := provider.Channel("general")
	fake.EmitMessage(channel.Message{Type: "typing-started", Data: []byte(`{"clientId":"bob"}`)})
	fake.EmitMessage(channel.Message{Type: "presence-enter", Data: []byte(`{"clientId":"bob","timestamp":100}`)})
	fake.EmitMessage(channel.Message{Type: "occupancy-update", Data: []byte(`{"connections":2,"presenceMembers":1}`)})

	assert.Equal(t, []string{"bob"}, r.Typing().Current())
	members := r.Presence().Members()
	require.Len(t, members, 1)
	assert.Equal(t, "bob", members[0].ClientID)
	reading, ok := r.Occupancy().Latest()
	require.True(t, ok)
	assert.Equal(t, 2, reading.Connections)
}

func TestRelease_DisposesFeatures(t *testing.T) {
	client, provider := newTestClient(t)

	r, err := client.Room("general")
	require.NoError(t, err)
	require.NoError(t, r.Attach(context.Background()))
	// Capture the fake before release drops it from the provider.
	fake := provider.Channel("general")
	require.NoError(t, client.Release(context.Background(), "general"))

	fake.EmitMessage(channel.Message{Type: "typing-started", Data: []byte(`{"clientId":"bob"}`)})
	assert.Empty(t, r.Typing().Current())
	assert.Equal(t, 0, fake.ListenerCount())
}

func TestClose_ReleasesAllRooms(t *testing.T) {
	client, provider := newTestClient(t)

	a, err := client.Room("general")
	require.NoError(t, err)
	b, err := client.Room("random")
	require.NoError(t, err)
	require.NoError(t, a.Attach(context.Background()))
	require.NoError(t, b.Attach(context.Background()))

	require.NoError(t, client.Close(context.Background()))

	assert.Equal(t, room.StatusReleased, a.Status())
	assert.Equal(t, room.StatusReleased, b.Status())
	assert.Equal(t, 1, provider.ReleaseCalls("general"))
	assert.Equal(t, 1, provider.ReleaseCalls("random"))
}
