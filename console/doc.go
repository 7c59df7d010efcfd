// Package console embeds a TCP command-and-control console in a host
// process.
//
// A console listens on one port and runs an independent session per
// accepted connection. Every message in either direction is a frame: a
// 4-byte big-endian length followed by that many payload bytes. A frame
// that decodes as a service-tagged envelope is a typed command and goes to
// the subscription bound to that ServiceID. Anything else is a text command
// and is offered to text-capable subscriptions in binding order until one
// accepts it.
//
//	srv, err := console.New(console.Config{
//		Port:         7000,
//		Welcome:      "ready",
//		LoopbackOnly: true,
//		Subscriptions: []console.Binding{
//			console.Bind(1, echo.New()),
//		},
//	})
//	h, err := srv.Spawn(ctx)
//	...
//	h.Stop()
//	err = h.Wait(ctx)
//
// Stop, or cancelling the context given to Spawn, closes the listener only;
// sessions already accepted run until their peers disconnect or Abort is
// called.
package console
