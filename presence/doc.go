// Package presence implements the presence façade of a room.
//
// Members enter, update and leave over the room's channel; the local
// member map is derived from those events, with per-member timestamps
// resolving out-of-order arrival (the latest event for a client wins).
// After a discontinuity the map is rebuilt from stream replay, and the
// local client re-enters if it was present, since its enter event may
// predate the replayed window.
package presence
