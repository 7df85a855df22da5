// Package typing implements the typing indicator façade of a room.
//
// Typing state is ephemeral and heartbeat-based: while a client keeps
// calling Keystroke, a typing-started event is published at most once
// per heartbeat interval; remote peers consider the client typing until
// either a typing-stopped event arrives or no heartbeat has been seen
// within the inactivity timeout. Rapid Keystroke/Stop calls are
// serialized through a single-slot gate where the newest pending
// operation cancels the older one, so a burst of keystrokes collapses
// to the publishes that still matter.
//
// Because typing state self-heals through heartbeats, a discontinuity
// simply clears the set: anyone still typing reappears within one
// heartbeat.
package typing
