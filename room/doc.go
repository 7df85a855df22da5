// Package room implements the room lifecycle core: the status
// container that is the single source of truth for a room's lifecycle
// phase, the lifecycle manager that orchestrates attach/detach/release
// against one channel and derives discontinuity events, the Feature
// contract implemented by the per-feature façades, and the Rooms
// registry that owns room construction and release.
//
// # Lifecycle model
//
// A room moves through the states initialized, attaching, attached,
// detaching, detached, suspended, failed, releasing and released.
// Released is terminal. The lifecycle manager is the only writer of
// room status. While a manager-initiated operation is in flight,
// unsolicited channel notifications are ignored for status purposes;
// the operation's own success or failure path is authoritative. When
// no operation is in flight, channel notifications map one-to-one onto
// room status.
//
// # Discontinuity
//
// A discontinuity is a gap in message continuity caused by an
// unintended disconnect/reattach cycle. The manager emits one
// discontinuity event per qualifying attached notification: the
// channel reports resumed=false, the room has attached at least once
// before, and the gap was not caused by an explicit detach requested
// through the manager. Features subscribe to this signal to decide
// when to resynchronize their state.
package room
