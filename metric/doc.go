// Package metric provides prometheus instrumentation for ChatKit.
//
// All metrics live in the "chatkit" namespace and are labeled by room.
// A nil *Metrics is valid everywhere one is accepted: every recording
// method is a no-op on a nil receiver, so instrumentation is strictly
// opt-in.
package metric
