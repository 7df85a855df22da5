// Package gate provides a single-slot serialization cell for operations
// where only the most recently requested intent matters.
//
// A Gate behaves like a mutex with a queue of length one: while an
// operation holds the gate, at most one caller waits. Enqueuing a new
// caller atomically cancels and replaces any caller already waiting,
// which resolves as a no-op for the superseded caller. This gives
// "cancel the previous waiter, let the most recent call win" semantics:
// only the latest requested intent ever runs, and completions are
// observed in call order.
//
// The canonical consumer is the typing indicator, where a rapid
// keystroke/stop sequence must collapse to the final intent rather than
// replaying every intermediate state onto the network.
package gate
