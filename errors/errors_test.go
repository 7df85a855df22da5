package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorInfo_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ErrorInfo
		expected string
	}{
		{
			"without cause",
			New(CodeRoomIsReleased, 400, "cannot perform operation, room is released"),
			"cannot perform operation, room is released (code=102103)",
		},
		{
			"with cause",
			New(CodeRoomLifecycleError, 500, "failed to attach room").WithCause(fmt.Errorf("timeout")),
			"failed to attach room (code=102100): timeout",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestErrorInfo_Is(t *testing.T) {
	err := fmt.Errorf("operation rejected: %w", ErrRoomIsReleasing)
	if !errors.Is(err, ErrRoomIsReleasing) {
		t.Error("expected wrapped sentinel to match with errors.Is")
	}
	if errors.Is(err, ErrRoomIsReleased) {
		t.Error("expected different code not to match")
	}
}

func TestAttachmentFailed(t *testing.T) {
	cause := New(CodeInternalError, 503, "channel suspended")
	err := AttachmentFailed(CodeMessagesAttachmentFailed, cause)

	if err.Code != CodeMessagesAttachmentFailed {
		t.Errorf("expected code %d, got %d", CodeMessagesAttachmentFailed, err.Code)
	}
	if err.StatusCode != 503 {
		t.Errorf("expected status from cause (503), got %d", err.StatusCode)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to survive wrapping")
	}
}

func TestAttachmentFailed_UncodedCause(t *testing.T) {
	err := AttachmentFailed(CodeTypingAttachmentFailed, fmt.Errorf("plain failure"))
	if err.StatusCode != 500 {
		t.Errorf("expected fallback status 500, got %d", err.StatusCode)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"nil", nil, 0},
		{"plain error", fmt.Errorf("boom"), 0},
		{"direct", ErrRoomInFailedState, CodeRoomInFailedState},
		{"wrapped", fmt.Errorf("ctx: %w", ErrRoomIsReleased), CodeRoomIsReleased},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := CodeOf(test.err); got != test.expected {
				t.Errorf("expected %d, got %d", test.expected, got)
			}
		})
	}
}

func TestIsMisuse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"released", ErrRoomIsReleased, true},
		{"releasing", ErrRoomIsReleasing, true},
		{"failed state", ErrRoomInFailedState, true},
		{"bad request", BadRequest("malformed serial"), true},
		{"attachment failure", AttachmentFailed(CodeMessagesAttachmentFailed, fmt.Errorf("x")), false},
		{"plain", fmt.Errorf("boom"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsMisuse(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := Wrap(base, "LifecycleManager", "Attach", "attach channel")
	expected := "LifecycleManager.Attach: attach channel failed: connection refused"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to unwrap to base")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("expected nil passthrough")
	}
}
