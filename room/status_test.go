package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/channel"
	"github.com/c360/chatkit/errors"
)

func TestStatusCode_String(t *testing.T) {
	tests := []struct {
		code     StatusCode
		expected string
	}{
		{StatusInitialized, "initialized"},
		{StatusAttaching, "attaching"},
		{StatusAttached, "attached"},
		{StatusDetaching, "detaching"},
		{StatusDetached, "detached"},
		{StatusSuspended, "suspended"},
		{StatusFailed, "failed"},
		{StatusReleasing, "releasing"},
		{StatusReleased, "released"},
		{StatusCode(99), "unknown"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.code.String())
		})
	}
}

func TestStatus_StartsInitialized(t *testing.T) {
	s := NewStatus()
	assert.Equal(t, StatusInitialized, s.Current())
	assert.Nil(t, s.Error())
}

func TestStatus_SetNotifiesObservers(t *testing.T) {
	s := NewStatus()
	var changes []StatusChange
	s.OnChange(func(c StatusChange) {
		changes = append(changes, c)
	})

	s.Set(StatusAttaching, nil)
	s.Set(StatusAttached, nil)

	require.Len(t, changes, 2)
	assert.Equal(t, StatusInitialized, changes[0].Previous)
	assert.Equal(t, StatusAttaching, changes[0].Current)
	assert.Equal(t, StatusAttaching, changes[1].Previous)
	assert.Equal(t, StatusAttached, changes[1].Current)
}

func TestStatus_ErrorOnlyForSuspendedAndFailed(t *testing.T) {
	reason := errors.New(errors.CodeRoomLifecycleError, 500, "boom")

	tests := []struct {
		status    StatusCode
		wantError bool
	}{
		{StatusSuspended, true},
		{StatusFailed, true},
		{StatusAttached, false},
		{StatusDetached, false},
		{StatusReleasing, false},
	}

	for _, test := range tests {
		t.Run(test.status.String(), func(t *testing.T) {
			s := NewStatus()
			s.Set(test.status, reason)
			if test.wantError {
				assert.Equal(t, reason, s.Error())
			} else {
				assert.Nil(t, s.Error())
			}
		})
	}
}

func TestStatus_SubscriptionOffIsIdempotent(t *testing.T) {
	s := NewStatus()
	calls := 0
	sub := s.OnChange(func(StatusChange) {
		calls++
	})

	sub.Off()
	sub.Off()
	s.Set(StatusAttached, nil)

	assert.Zero(t, calls)
}

func TestStatusFromChannelState(t *testing.T) {
	tests := []struct {
		state    channel.State
		expected StatusCode
	}{
		{channel.StateInitialized, StatusInitialized},
		{channel.StateAttaching, StatusAttaching},
		{channel.StateAttached, StatusAttached},
		{channel.StateDetaching, StatusDetaching},
		{channel.StateDetached, StatusDetached},
		{channel.StateSuspended, StatusSuspended},
		{channel.StateFailed, StatusFailed},
	}
	for _, test := range tests {
		t.Run(test.expected.String(), func(t *testing.T) {
			assert.Equal(t, test.expected, statusFromChannelState(test.state))
		})
	}
}
