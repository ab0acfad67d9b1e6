package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/limits"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/stats"
)

// DefaultLocalAddr is where the client listens unless told otherwise.
const DefaultLocalAddr = "0.0.0.0:25204"

const wakeRetryInterval = 10 * time.Millisecond

var multiplexerFactory = newMultiplexer

// Control tokens exchanged with the sender.
var (
	TokenInfo  = []byte("info")
	TokenStart = []byte("start")
	TokenStop  = []byte("stop")
)

// State is the handshake state of a Client.
type State int32

const (
	// StateInfoRequested means "info" was sent and the sender has not answered.
	StateInfoRequested State = iota
	// StateStarted means media is flowing into the player.
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateInfoRequested:
		return "info_requested"
	case StateStarted:
		return "started"
	default:
		return "unknown"
	}
}

// Player receives the media stream.
type Player interface {
	StartPlaying() error
	Enqueue(p packet.Packet) error
}

// Observer is told about traffic for metrics. Calls happen on the receive
// goroutine and must not block.
type Observer interface {
	OnDatagram(size int)
	OnParseError()
	OnWireLost(n uint32)
}

type nopObserver struct{}

func (nopObserver) OnDatagram(int)    {}
func (nopObserver) OnParseError()     {}
func (nopObserver) OnWireLost(uint32) {}

// ClientConfig configures a Client.
type ClientConfig struct {
	LocalAddr  string
	RemoteAddr string
	// Framer parses media datagrams. Defaults to packet.CounterFramer.
	Framer   packet.Framer
	Observer Observer
}

// Stats is a snapshot of receive counters.
type Stats struct {
	Datagrams     uint64
	Bytes         uint64
	ParseErrors   uint64
	EnqueueErrors uint64
	RecvErrors    uint64
	WireLost      uint64
	Reordered     uint64
}

// Client runs the receive loop for one stream.
type Client struct {
	conn     *net.UDPConn
	remote   *net.UDPAddr
	mux      multiplexer
	player   Player
	framer   packet.Framer
	observer Observer

	state    atomic.Int32
	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
	done     core.Fuse

	// Owned by the receive goroutine.
	tracker  *packet.Tracker
	interval *stats.IntervalMeasure

	datagrams     atomic.Uint64
	bytes         atomic.Uint64
	parseErrors   atomic.Uint64
	enqueueErrors atomic.Uint64
	recvErrors    atomic.Uint64
	wireLost      atomic.Uint64
	reordered     atomic.Uint64
}

// ResolveAddr parses a host:port UDP address.
func ResolveAddr(addr string) (*net.UDPAddr, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &apperr.AddrError{Addr: addr, Err: err}
	}
	return udpAddr, nil
}

// NewClient binds the local socket, asks the remote for its stream with an
// "info" datagram, and starts the receive loop. Nothing is left open if it
// fails.
func NewClient(cfg ClientConfig, player Player) (*Client, error) {
	if player == nil {
		return nil, apperr.Invalid("player cannot be nil")
	}
	if cfg.LocalAddr == "" {
		cfg.LocalAddr = DefaultLocalAddr
	}
	if cfg.Framer == nil {
		cfg.Framer = packet.CounterFramer{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	remote, err := ResolveAddr(cfg.RemoteAddr)
	if err != nil {
		return nil, err
	}
	local, err := ResolveAddr(cfg.LocalAddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, apperr.NewIOError("bind", cfg.LocalAddr, err)
	}

	mux, err := multiplexerFactory(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:     conn,
		remote:   remote,
		mux:      mux,
		player:   player,
		framer:   cfg.Framer,
		observer: cfg.Observer,
		done:     core.NewFuse(),
		tracker:  packet.NewTracker(),
		interval: stats.NewIntervalMeasure(),
	}

	if err := c.send(TokenInfo); err != nil {
		mux.close()
		conn.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewClient",
		"local_addr":  conn.LocalAddr().String(),
		"remote_addr": remote.String(),
	}).Info("Requested stream info")

	go c.run()
	return c, nil
}

// State returns the handshake state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// LocalAddr returns the bound socket address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the sender's address.
func (c *Client) RemoteAddr() *net.UDPAddr {
	return c.remote
}

// Done is closed once the receive loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done.Watch()
}

// Stats returns the receive counters.
func (c *Client) Stats() Stats {
	return Stats{
		Datagrams:     c.datagrams.Load(),
		Bytes:         c.bytes.Load(),
		ParseErrors:   c.parseErrors.Load(),
		EnqueueErrors: c.enqueueErrors.Load(),
		RecvErrors:    c.recvErrors.Load(),
		WireLost:      c.wireLost.Load(),
		Reordered:     c.reordered.Load(),
	}
}

// Stop wakes the receive loop, waits for it to send "stop" and exit, then
// closes the socket. If the loop already left after a poll failure it is not
// woken again. It is safe to call more than once.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		c.wakeAndJoin()
		c.stopErr = c.release()
	})
	<-c.done.Watch()
	return c.stopErr
}

// wakeAndJoin wakes the loop until it has exited. A loop that already left
// on its own is not woken.
func (c *Client) wakeAndJoin() {
	logged := false
	for !c.done.IsBroken() {
		err := c.mux.wake()
		if err == nil {
			break
		}
		if !logged {
			logged = true
			logrus.WithFields(logrus.Fields{
				"function": "Client.Stop",
				"error":    err.Error(),
			}).Error("Failed to wake receive loop, retrying")
		}
		select {
		case <-c.done.Watch():
		case <-time.After(wakeRetryInterval):
		}
	}
	<-c.done.Watch()
}

// release closes the multiplexer and the socket once the loop can no longer
// use them.
func (c *Client) release() error {
	errMux := c.mux.close()
	if errMux != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.Stop",
			"error":    errMux.Error(),
		}).Warn("Failed to close multiplexer")
	}
	errConn := c.conn.Close()
	if errConn != nil {
		errConn = apperr.NewIOError("close", c.conn.LocalAddr().String(), errConn)
	}
	return errors.Join(errMux, errConn)
}

func (c *Client) send(token []byte) error {
	if _, err := c.conn.WriteToUDP(token, c.remote); err != nil {
		return apperr.NewIOError("send "+string(token), c.remote.String(), err)
	}
	return nil
}

func (c *Client) run() {
	defer c.done.Break()

	buf := make([]byte, limits.MaxDatagram)
	for {
		readable, _, err := c.mux.wait()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.run",
				"error":    err.Error(),
			}).Error("Poll failed, leaving receive loop")
			break
		}
		if c.stopping.Load() {
			break
		}
		if readable {
			c.drain(buf)
		}
	}

	if err := c.send(TokenStop); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.run",
			"error":    err.Error(),
		}).Warn("Failed to send stop")
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Client.run",
		"datagrams": c.datagrams.Load(),
		"wire_lost": c.wireLost.Load(),
	}).Info("Receive loop stopped")
}

// drain reads datagrams until the socket would block.
func (c *Client) drain(buf []byte) {
	for !c.stopping.Load() {
		n, from, err := c.mux.recv(buf)
		if err != nil {
			if errors.Is(err, errWouldBlock) {
				return
			}
			c.recvErrors.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Client.drain",
				"error":    err.Error(),
			}).Warn("Receive failed")
			return
		}
		c.handle(buf[:n], from)
	}
}

func (c *Client) handle(datagram []byte, from net.Addr) {
	c.datagrams.Inc()
	c.bytes.Add(uint64(len(datagram)))
	c.observer.OnDatagram(len(datagram))

	if c.interval.Event(time.Now()) {
		logrus.WithFields(logrus.Fields{
			"function": "Client.handle",
			"interval": c.interval.String(),
		}).Debug("Datagram interval changed")
	}

	if c.State() == StateInfoRequested {
		c.startStream(from)
		return
	}

	p, err := c.framer.Parse(datagram)
	if err != nil {
		c.parseErrors.Inc()
		c.observer.OnParseError()
		logrus.WithFields(logrus.Fields{
			"function": "Client.handle",
			"size":     len(datagram),
			"error":    err.Error(),
		}).Warn("Dropping malformed datagram")
		return
	}

	if gap := c.tracker.Observe(p.Seq); gap > 0 {
		c.wireLost.Add(uint64(gap))
		c.observer.OnWireLost(gap)
	}
	c.reordered.Store(c.tracker.Reordered())

	if err := c.player.Enqueue(p); err != nil {
		c.enqueueErrors.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Client.handle",
			"seq":      p.Seq,
			"error":    err.Error(),
		}).Warn("Failed to enqueue packet")
	}
}

// startStream treats the first datagram, whatever it holds and wherever it
// came from, as the sender being ready.
func (c *Client) startStream(from net.Addr) {
	logrus.WithFields(logrus.Fields{
		"function": "Client.startStream",
		"from":     fmt.Sprint(from),
	}).Info("Sender ready, starting playback")

	if err := c.player.StartPlaying(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.startStream",
			"error":    err.Error(),
		}).Error("Failed to start playback")
	}
	if err := c.send(TokenStart); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.startStream",
			"error":    err.Error(),
		}).Error("Failed to send start")
	}
	c.state.Store(int32(StateStarted))
}
