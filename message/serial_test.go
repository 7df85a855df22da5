package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatkit/errors"
)

func TestSerial_Validate(t *testing.T) {
	tests := []struct {
		name    string
		serial  Serial
		wantErr bool
	}{
		{"valid", NewSerial(1726585978590, 1, "abc123"), false},
		{"valid zero sequence", "00000000000001-000@origin", false},
		{"missing origin separator", "00000000000001-000", true},
		{"empty origin", "00000000000001-000@", true},
		{"short timestamp", "0000001-000@origin", true},
		{"short sequence", "00000000000001-00@origin", true},
		{"non-numeric timestamp", "000000000000xx-000@origin", true},
		{"non-numeric sequence", "00000000000001-0x0@origin", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.serial.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSerial_CompareOrdersByTimestampSequenceOrigin(t *testing.T) {
	base := NewSerial(1726585978590, 5, "bbb")

	tests := []struct {
		name  string
		other Serial
		want  int
	}{
		{"equal", NewSerial(1726585978590, 5, "bbb"), 0},
		{"earlier timestamp wins", NewSerial(1726585978589, 9, "zzz"), 1},
		{"later timestamp wins", NewSerial(1726585978591, 0, "aaa"), -1},
		{"sequence breaks timestamp tie", NewSerial(1726585978590, 4, "zzz"), 1},
		{"origin breaks full tie", NewSerial(1726585978590, 5, "aaa"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp, err := base.Compare(tt.other)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmp)
		})
	}
}

func TestSerial_LexicographicOrderMatchesCompare(t *testing.T) {
	// The fixed-width encoding exists so plain string ordering agrees
	// with semantic ordering.
	a := NewSerial(999, 2, "aaa")
	b := NewSerial(1726585978590, 0, "aaa")

	cmp, err := a.Compare(b)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)
	assert.True(t, a < b)
}

func TestSerial_BeforeAfter(t *testing.T) {
	a := NewSerial(100, 0, "x")
	b := NewSerial(100, 1, "x")

	before, err := a.Before(b)
	require.NoError(t, err)
	assert.True(t, before)

	after, err := b.After(a)
	require.NoError(t, err)
	assert.True(t, after)

	_, err = a.Before("garbage")
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
}

func TestSerial_Time(t *testing.T) {
	ms := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC).UnixMilli()
	s := NewSerial(ms, 0, "origin")

	got, err := s.Time()
	require.NoError(t, err)
	assert.Equal(t, ms, got.UnixMilli())
}
