// Package wampc implements a WAMPv2 client - The Web Application Messaging
// Protocol.
//
// A Session joins one realm on a router over a Transport (WebSocket or
// RawSocket, with JSON, MessagePack or CBOR serialization) and then
// publishes, subscribes, calls and registers procedures. Request and reply
// are matched by request id; events are delivered to each subscription's
// handler in order, on a goroutine of its own.
//
//	client := wampc.NewClient("ws://localhost:8080/ws", "realm1")
//	sess, err := client.Connect(ctx)
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
//	_, err = sess.Subscribe(ctx, "com.example.topic", func(ev *wampc.Event) {
//		nums, err := wampc.DecodeArgs[[]int64](ev.Payload())
//		...
//	}, nil)
//
// See the official WAMP documentation at https://wamp-proto.org for more
// details on the protocol.
package wampc
