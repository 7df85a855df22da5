package room

import (
	"github.com/c360/chatkit/errors"
)

// Feature is the contract implemented by façades that contribute to
// the room lifecycle (messages, typing, presence, occupancy). The room
// orchestrator composes features dynamically through this interface
// rather than knowing any concrete façade type.
type Feature interface {
	// Name identifies the feature in logs and error messages.
	Name() string

	// AttachmentErrorCode is the code used when an attach performed on
	// behalf of this feature fails.
	AttachmentErrorCode() errors.Code

	// DetachmentErrorCode is the code used when a detach performed on
	// behalf of this feature fails.
	DetachmentErrorCode() errors.Code

	// HandleDiscontinuity is invoked for every discontinuity the room
	// detects; the feature resynchronizes whatever state it derives
	// from channel messages.
	HandleDiscontinuity(reason *errors.ErrorInfo)

	// Dispose releases the feature's listeners and internal resources.
	// Idempotent.
	Dispose()
}
