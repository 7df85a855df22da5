// Package message implements the chat message consistency model and
// the live message window.
//
// # Consistency model
//
// Every message is identified by the Serial assigned at creation: an
// opaque, fixed-width string encoding timestamp, sequence and origin,
// ordered lexicographically and chronologically at once. Mutations
// (updates and deletes) carry a Version — a fresh serial plus actor
// metadata — and a higher version for the same message always wins.
// Applying a stale or replayed event to a message returns the identical
// pointer, so callers detect effective change by reference comparison.
// This makes application idempotent under at-least-once redelivery and
// convergent under out-of-order arrival.
//
// # Window
//
// Window maintains a sorted, de-duplicated snapshot of the most recent
// messages and republishes a fresh immutable snapshot on every
// effective change. The Feature façade wires the window to a room's
// channel and resynchronizes it from stream history whenever the room
// reports a discontinuity.
package message
