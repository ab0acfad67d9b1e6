// Package transport runs the UDP receive loop of a stream.
//
// A Client binds a local socket, sends "info" to the sender and waits. The
// first datagram to arrive, whatever its content, is taken as the sender
// being ready: playback is started and "start" is sent back. Every later
// datagram is parsed by the configured packet.Framer and handed to the
// Player.
//
// The loop blocks in an event multiplexer. On Linux this is a level-triggered
// epoll set holding the socket and an eventfd; Stop writes to the eventfd so
// a blocked wait returns at once. Other platforms fall back to read
// deadlines. When the loop exits it sends "stop" once, best effort.
//
//	client, err := transport.NewClient(transport.ClientConfig{
//	    RemoteAddr: "192.168.1.20:25204",
//	}, player)
//	if err != nil {
//	    return err
//	}
//	defer client.Stop()
package transport
