package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/room"
)

func newTestFeature(t *testing.T) (*Feature, *channel.Fake) {
	t.Helper()
	provider := channel.NewFakeProvider()
	r, err := room.NewRoom("general", provider)
	require.NoError(t, err)
	f := NewFeature(r, "alice")
	return f, provider.Channel("general")
}

func event(eventType, clientID string, ts int64, data map[string]any) channel.Message {
	payload, _ := json.Marshal(wireEvent{ClientID: clientID, Data: data, Timestamp: ts})
	return channel.Message{Type: eventType, Data: payload}
}

func TestEnterUpdateLeave_Publish(t *testing.T) {
	f, ch := newTestFeature(t)

	require.NoError(t, f.Enter(context.Background(), map[string]any{"status": "online"}))
	require.NoError(t, f.Update(context.Background(), map[string]any{"status": "busy"}))
	require.NoError(t, f.Leave(context.Background()))

	published := ch.Published()
	require.Len(t, published, 3)
	assert.Equal(t, "presence-enter", published[0].Type)
	assert.Equal(t, "presence-update", published[1].Type)
	assert.Equal(t, "presence-leave", published[2].Type)

	var wire wireEvent
	require.NoError(t, json.Unmarshal(published[1].Data, &wire))
	assert.Equal(t, "alice", wire.ClientID)
	assert.Equal(t, "busy", wire.Data["status"])
	assert.NotZero(t, wire.Timestamp)
}

func TestUpdate_BeforeEnterIsMisuse(t *testing.T) {
	f, ch := newTestFeature(t)

	err := f.Update(context.Background(), nil)
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
	assert.Empty(t, ch.Published())
}

func TestLeave_WhenNotPresentIsNoOp(t *testing.T) {
	f, ch := newTestFeature(t)

	require.NoError(t, f.Leave(context.Background()))
	assert.Empty(t, ch.Published())
}

func TestInboundEvents_MaintainMemberMap(t *testing.T) {
	f, ch := newTestFeature(t)

	ch.EmitMessage(event("presence-enter", "bob", 100, map[string]any{"status": "online"}))
	ch.EmitMessage(event("presence-enter", "carol", 110, nil))

	members := f.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[0].ClientID)
	assert.Equal(t, "carol", members[1].ClientID)

	ch.EmitMessage(event("presence-update", "bob", 120, map[string]any{"status": "busy"}))
	bob, ok := f.Get("bob")
	require.True(t, ok)
	assert.Equal(t, "busy", bob.Data["status"])

	ch.EmitMessage(event("presence-leave", "bob", 130, nil))
	_, ok = f.Get("bob")
	assert.False(t, ok)
	assert.Len(t, f.Members(), 1)
}

func TestInboundEvents_ResolveOutOfOrderArrival(t *testing.T) {
	f, ch := newTestFeature(t)

	// The newer update arrives first; the older one must not regress it.
	ch.EmitMessage(event("presence-enter", "bob", 100, map[string]any{"status": "online"}))
	ch.EmitMessage(event("presence-update", "bob", 300, map[string]any{"status": "away"}))
	ch.EmitMessage(event("presence-update", "bob", 200, map[string]any{"status": "busy"}))

	bob, ok := f.Get("bob")
	require.True(t, ok)
	assert.Equal(t, "away", bob.Data["status"])

	// A leave that predates the held state is dropped.
	ch.EmitMessage(event("presence-leave", "bob", 250, nil))
	_, ok = f.Get("bob")
	assert.True(t, ok)

	// An enter older than an observed leave cannot resurrect a member.
	ch.EmitMessage(event("presence-leave", "bob", 400, nil))
	ch.EmitMessage(event("presence-enter", "bob", 350, nil))
	_, ok = f.Get("bob")
	assert.False(t, ok)
}

func TestOnChange_FiresOnMembershipAndDataChanges(t *testing.T) {
	f, ch := newTestFeature(t)

	var mu sync.Mutex
	var fired int
	var last []Member
	off := f.OnChange(func(members []Member) {
		mu.Lock()
		fired++
		last = members
		mu.Unlock()
	})
	defer off()

	ch.EmitMessage(event("presence-enter", "bob", 100, nil))
	ch.EmitMessage(event("presence-leave", "mallory", 100, nil)) // unknown, no change
	ch.EmitMessage(event("presence-update", "bob", 50, nil))     // stale, no change

	mu.Lock()
	assert.Equal(t, 1, fired)
	require.Len(t, last, 1)
	assert.Equal(t, "bob", last[0].ClientID)
	mu.Unlock()
}

func TestHandleDiscontinuity_RebuildsFromReplayAndReenters(t *testing.T) {
	f, ch := newTestFeature(t)

	require.NoError(t, f.Enter(context.Background(), map[string]any{"status": "online"}))
	ch.EmitMessage(event("presence-enter", "ghost", 100, nil))
	require.Len(t, f.Members(), 1)

	ch.SetReplay([]channel.Message{
		event("presence-enter", "bob", 100, nil),
		event("presence-enter", "carol", 110, nil),
		event("presence-leave", "carol", 120, nil),
		{Type: "message-created", Data: []byte(`{}`)},
	}, nil)
	before := len(ch.Published())

	f.HandleDiscontinuity(nil)

	members := f.Members()
	require.Len(t, members, 1)
	assert.Equal(t, "bob", members[0].ClientID)

	// The local client re-entered because its enter predates the
	// replayed history.
	published := ch.Published()
	require.Len(t, published, before+1)
	assert.Equal(t, "presence-enter", published[before].Type)
}

func TestHandleDiscontinuity_ReplayFailureKeepsMembers(t *testing.T) {
	f, ch := newTestFeature(t)

	ch.EmitMessage(event("presence-enter", "bob", 100, nil))
	ch.SetReplay(nil, assert.AnError)

	f.HandleDiscontinuity(nil)
	assert.Len(t, f.Members(), 1)
}

func TestHandleDiscontinuity_NoReenterWhenNeverEntered(t *testing.T) {
	f, ch := newTestFeature(t)

	f.HandleDiscontinuity(nil)
	assert.Empty(t, ch.Published())
	_ = f
}

func TestDispose_StopsIngestion(t *testing.T) {
	f, ch := newTestFeature(t)

	ch.EmitMessage(event("presence-enter", "bob", 100, nil))
	f.Dispose()
	f.Dispose() // idempotent

	ch.EmitMessage(event("presence-enter", "carol", 110, nil))
	members := f.Members()
	require.Len(t, members, 1)
	assert.Equal(t, "bob", members[0].ClientID)
}

func TestRoster_ConvergesRegardlessOfArrivalOrder(t *testing.T) {
	events := []channel.Message{
		event("presence-enter", "bob", 100, map[string]any{"v": "1"}),
		event("presence-update", "bob", 200, map[string]any{"v": "2"}),
		event("presence-enter", "carol", 150, nil),
		event("presence-leave", "carol", 250, nil),
	}

	permutations := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}

	for i, order := range permutations {
		t.Run(fmt.Sprintf("order-%d", i), func(t *testing.T) {
			f, ch := newTestFeature(t)
			for _, idx := range order {
				ch.EmitMessage(events[idx])
			}

			members := f.Members()
			require.Len(t, members, 1)
			assert.Equal(t, "bob", members[0].ClientID)
			assert.Equal(t, "2", members[0].Data["v"])
		})
	}
}

func TestFeature_RegistersAsPrimaryLifecycleContributor(t *testing.T) {
	provider := channel.NewFakeProvider()
	r, err := room.NewRoom("general", provider)
	require.NoError(t, err)
	NewFeature(r, "alice")

	provider.Channel("general").FailAttachWith(assert.AnError)
	err = r.Attach(context.Background())
	assert.Equal(t, errors.CodePresenceAttachmentFailed, errors.CodeOf(err))
}
