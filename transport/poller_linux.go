//go:build linux

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/opd-ai/streamaudio/apperr"
)

// epollMux waits on the UDP socket and an eventfd in one level-triggered
// epoll set. Writing to the eventfd wakes the loop.
type epollMux struct {
	conn   *net.UDPConn
	raw    syscall.RawConn
	epfd   int
	wakeFd int
	sockFd int
	events []unix.EpollEvent
}

func newMultiplexer(conn *net.UDPConn) (multiplexer, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, apperr.NewIOError("syscall conn", conn.LocalAddr().String(), err)
	}

	sockFd := -1
	if err := raw.Control(func(fd uintptr) { sockFd = int(fd) }); err != nil {
		return nil, apperr.NewIOError("socket fd", conn.LocalAddr().String(), err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, apperr.NewIOError("epoll_create1", "", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, apperr.NewIOError("eventfd", "", err)
	}

	m := &epollMux{
		conn:   conn,
		raw:    raw,
		epfd:   epfd,
		wakeFd: wakeFd,
		sockFd: sockFd,
		events: make([]unix.EpollEvent, 2),
	}

	for _, fd := range []int{sockFd, wakeFd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			m.close()
			return nil, apperr.NewIOError("epoll_ctl", fmt.Sprintf("fd %d", fd), err)
		}
	}

	return m, nil
}

func (m *epollMux) wait() (readable, woken bool, err error) {
	n, err := unix.EpollWait(m.epfd, m.events, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, false, nil
		}
		return false, false, apperr.NewIOError("epoll_wait", "", err)
	}

	for i := 0; i < n; i++ {
		switch int(m.events[i].Fd) {
		case m.wakeFd:
			woken = true
		case m.sockFd:
			readable = true
		}
	}
	return readable, woken, nil
}

func (m *epollMux) recv(buf []byte) (int, net.Addr, error) {
	var (
		n    int
		from unix.Sockaddr
		rerr error
	)
	err := m.raw.Read(func(fd uintptr) bool {
		n, from, rerr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	if rerr != nil {
		if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) {
			return 0, nil, errWouldBlock
		}
		return 0, nil, rerr
	}
	return n, sockaddrToUDP(from), nil
}

func (m *epollMux) wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(m.wakeFd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return apperr.NewIOError("eventfd write", "", err)
	}
	return nil
}

func (m *epollMux) close() error {
	errEp := unix.Close(m.epfd)
	errWake := unix.Close(m.wakeFd)
	return errors.Join(errEp, errWake)
}

func sockaddrToUDP(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
