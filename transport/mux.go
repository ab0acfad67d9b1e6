package transport

import (
	"errors"
	"net"
)

// errWouldBlock is returned by recv when the socket has been drained.
var errWouldBlock = errors.New("would block")

// multiplexer waits for either the socket or a wake request.
type multiplexer interface {
	// wait blocks until the socket is readable or wake was called.
	wait() (readable, woken bool, err error)
	// recv reads one datagram, returning errWouldBlock once drained.
	recv(buf []byte) (int, net.Addr, error)
	// wake makes a blocked or future wait return.
	wake() error
	// close is called once, after the loop has exited.
	close() error
}
