// Package channel defines the boundary between ChatKit and the
// underlying realtime pub/sub transport.
//
// A Channel is a named, stateful endpoint with attach/detach
// operations, message publish/subscribe, and a state-change
// notification stream. The room lifecycle manager consumes exactly
// this interface; it never sees the transport behind it.
//
// The package ships one concrete implementation backed by NATS
// JetStream (NATSProvider), where attach maps to binding a durable
// consumer, detach stops consumption, and the Resumed flag on a
// reattach is derived from delivery-sequence continuity. A scriptable
// Fake implementation backs the package tests across the repository.
package channel
