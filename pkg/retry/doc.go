// Package retry provides exponential backoff retry logic for ChatKit.
//
// Two modes are supported: bounded retry for ordinary transient
// failures, and unbounded retry (MaxAttempts <= 0) for operations that
// must never give up, such as room teardown, where abandoning the
// retry would leak the underlying channel resource. Unbounded retry is
// bounded only by context cancellation; the backoff delay is always
// capped at MaxDelay.
package retry
