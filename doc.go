// Package chatkit is a client SDK for building chat rooms on top of a
// reconnect-capable pub/sub transport.
//
// A Client owns the transport connection and a registry of rooms. Each
// room is a named channel with a managed lifecycle (attach, detach,
// release) and four feature façades layered on it: messages, typing
// indicators, presence and occupancy. The room lifecycle arbitrates
// between caller-initiated operations and asynchronous transport
// notifications, and derives a single discontinuity signal the features
// use to resynchronize after a gap in message continuity.
//
//	client, err := chatkit.NewClient(ctx, nil)
//	if err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	general, err := client.Room("general")
//	if err != nil {
//		return err
//	}
//	if err := general.Attach(ctx); err != nil {
//		return err
//	}
//	general.Messages().OnSnapshot(func(msgs []*message.Message) {
//		render(msgs)
//	})
//	_, err = general.Messages().Send(ctx, "hello", nil)
package chatkit
