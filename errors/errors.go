package errors

import (
	"errors"
	"fmt"
)

// Code identifies a ChatKit error condition. Codes are stable across
// releases and are the values feature code should branch on, rather
// than error message text.
type Code int

// Error codes for room lifecycle and consistency model failures.
const (
	// CodeBadRequest indicates invalid input supplied by the caller,
	// such as a structurally malformed serial.
	CodeBadRequest Code = 40000

	// CodeInternalError indicates an unexpected internal failure.
	CodeInternalError Code = 50000

	// CodeRoomLifecycleError is the generic room lifecycle failure code.
	CodeRoomLifecycleError Code = 102100

	// CodeRoomInFailedState indicates an operation was rejected because
	// the room is in the failed state.
	CodeRoomInFailedState Code = 102101

	// CodeRoomIsReleasing indicates an operation was rejected because a
	// release is in progress.
	CodeRoomIsReleasing Code = 102102

	// CodeRoomIsReleased indicates an operation was rejected because the
	// room has been released and is terminal.
	CodeRoomIsReleased Code = 102103

	// Attachment failure codes, one per feature that contributes to the
	// room lifecycle.
	CodeMessagesAttachmentFailed  Code = 102001
	CodePresenceAttachmentFailed  Code = 102002
	CodeOccupancyAttachmentFailed Code = 102004
	CodeTypingAttachmentFailed    Code = 102005

	// Detachment failure codes, mirroring the attachment set.
	CodeMessagesDetachmentFailed  Code = 102050
	CodePresenceDetachmentFailed  Code = 102051
	CodeOccupancyDetachmentFailed Code = 102053
	CodeTypingDetachmentFailed    Code = 102054
)

// ErrorInfo is the coded error type surfaced across the ChatKit API
// boundary. It carries a stable code, the HTTP-equivalent status code
// reported by the transport, and an optional underlying cause.
type ErrorInfo struct {
	Code       Code
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (code=%d): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (code=%d)", e.Message, e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *ErrorInfo) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ErrorInfo with the same code. This
// lets callers match with errors.Is against sentinel ErrorInfo values.
func (e *ErrorInfo) Is(target error) bool {
	var other *ErrorInfo
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates an ErrorInfo with the given code and message.
func New(code Code, statusCode int, message string) *ErrorInfo {
	return &ErrorInfo{Code: code, StatusCode: statusCode, Message: message}
}

// Newf creates an ErrorInfo with a formatted message.
func Newf(code Code, statusCode int, format string, args ...any) *ErrorInfo {
	return &ErrorInfo{Code: code, StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// WithCause returns a copy of e carrying cause as the underlying error.
func (e *ErrorInfo) WithCause(cause error) *ErrorInfo {
	out := *e
	out.Cause = cause
	return &out
}

// Sentinel errors for room misuse conditions. These are detected and
// returned before any channel call is attempted; they never mutate the
// room status.
var (
	ErrRoomInFailedState = New(CodeRoomInFailedState, 400, "cannot perform operation, room is in failed state")
	ErrRoomIsReleasing   = New(CodeRoomIsReleasing, 400, "cannot perform operation, room is releasing")
	ErrRoomIsReleased    = New(CodeRoomIsReleased, 400, "cannot perform operation, room is released")
)

// BadRequest creates a caller-misuse error for invalid input.
func BadRequest(message string) *ErrorInfo {
	return New(CodeBadRequest, 400, message)
}

// BadRequestf creates a caller-misuse error with a formatted message.
func BadRequestf(format string, args ...any) *ErrorInfo {
	return Newf(CodeBadRequest, 400, format, args...)
}

// Internal creates an internal error wrapping cause.
func Internal(message string, cause error) *ErrorInfo {
	return &ErrorInfo{Code: CodeInternalError, StatusCode: 500, Message: message, Cause: cause}
}

// AttachmentFailed wraps a transport attach failure with the feature's
// attachment error code. The transport error becomes the cause so the
// channel's reported failure reason survives wrapping.
func AttachmentFailed(code Code, cause error) *ErrorInfo {
	return &ErrorInfo{
		Code:       code,
		StatusCode: statusOf(cause, 500),
		Message:    "failed to attach room",
		Cause:      cause,
	}
}

// DetachmentFailed wraps a transport detach failure with the feature's
// detachment error code.
func DetachmentFailed(code Code, cause error) *ErrorInfo {
	return &ErrorInfo{
		Code:       code,
		StatusCode: statusOf(cause, 500),
		Message:    "failed to detach room",
		Cause:      cause,
	}
}

// CodeOf extracts the ChatKit code from err, or zero when err carries
// no ErrorInfo in its chain.
func CodeOf(err error) Code {
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.Code
	}
	return 0
}

// StatusOf extracts the HTTP-equivalent status code from err, or zero
// when err carries no ErrorInfo in its chain.
func StatusOf(err error) int {
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.StatusCode
	}
	return 0
}

func statusOf(err error, fallback int) int {
	if s := StatusOf(err); s != 0 {
		return s
	}
	return fallback
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// IsMisuse reports whether err is a caller-misuse error: one that was
// rejected before any channel call and is not retryable.
func IsMisuse(err error) bool {
	switch CodeOf(err) {
	case CodeBadRequest, CodeRoomInFailedState, CodeRoomIsReleasing, CodeRoomIsReleased:
		return true
	}
	return false
}
