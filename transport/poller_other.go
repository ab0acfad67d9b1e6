//go:build !linux

package transport

import (
	"errors"
	"net"
	"os"
	"time"

	"go.uber.org/atomic"
)

// deadlineMux blocks in the socket read itself. wake moves the read deadline
// into the past, which unblocks the pending read.
type deadlineMux struct {
	conn  *net.UDPConn
	woken atomic.Bool
}

func newMultiplexer(conn *net.UDPConn) (multiplexer, error) {
	return &deadlineMux{conn: conn}, nil
}

func (m *deadlineMux) wait() (readable, woken bool, err error) {
	if m.woken.Load() {
		return false, true, nil
	}
	return true, false, nil
}

func (m *deadlineMux) recv(buf []byte) (int, net.Addr, error) {
	if m.woken.Load() {
		return 0, nil, errWouldBlock
	}
	n, from, err := m.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, errWouldBlock
		}
		return 0, nil, err
	}
	return n, from, nil
}

func (m *deadlineMux) wake() error {
	m.woken.Store(true)
	return m.conn.SetReadDeadline(time.Unix(1, 0))
}

func (m *deadlineMux) close() error {
	return nil
}
