// Package errors provides standardized error handling for ChatKit.
// It defines the coded ErrorInfo type surfaced to SDK callers, the
// room-misuse and transport-failure constructors used by the room
// lifecycle, and helper functions for consistent error wrapping and
// classification across the system.
package errors
