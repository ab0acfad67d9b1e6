package jitter

import (
	"time"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/stats"
)

// maxGap is the largest forward jump filled with placeholders. Anything
// further is treated as a stream restart.
const maxGap = 1024

// Action tells the writer what to do after Write returns.
type Action int

const (
	// ActionNothing means the pull callback will drain the buffer as usual.
	ActionNothing Action = iota
	// ActionRead means the writer should read once right away to prime playback.
	ActionRead
)

func (a Action) String() string {
	switch a {
	case ActionNothing:
		return "nothing"
	case ActionRead:
		return "read"
	default:
		return "unknown"
	}
}

// Decoder turns one queued payload into PCM. Decode replaces the contents
// of out. FrameDuration reports the playout length of one frame, or zero
// until the first frame has been decoded.
type Decoder interface {
	Decode(payload []byte, out *[]byte) error
	FrameDuration() time.Duration
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Len           int
	Hold          int
	Missing       uint64
	Underruns     uint64
	Dropped       uint64
	Duplicates    uint64
	Late          uint64
	Allocated     int
	FrameDuration time.Duration
	AvgDelay      time.Duration
	Fixed         bool
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithListener installs l to observe buffer events.
func WithListener(l Listener) Option {
	return func(b *Buffer) {
		if l != nil {
			b.listener = l
		}
	}
}

// WithTimeProvider replaces the system clock.
func WithTimeProvider(tp TimeProvider) Option {
	return func(b *Buffer) {
		if tp != nil {
			b.clock = tp
		}
	}
}

// Buffer reorders packets by sequence number and hands them to the audio
// callback one frame at a time.
type Buffer struct {
	cfg      Config
	decoder  Decoder
	listener Listener
	clock    TimeProvider

	queue      deque.Deque[*frame]
	pool       framePool
	lastPlayed *frame

	started bool
	nextSeq uint32
	hasNext bool

	hold int
	avg  *stats.RollingAverage

	fixed      bool
	fixedDelay time.Duration

	missing    uint64
	underruns  uint64
	dropped    uint64
	duplicates uint64
	late       uint64

	closed bool
}

// NewBuffer creates an empty buffer that decodes frames with dec.
func NewBuffer(cfg Config, dec Decoder, opts ...Option) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dec == nil {
		return nil, apperr.Invalid("decoder cannot be nil")
	}

	avg, err := stats.NewRollingAverage(cfg.AvgWindow)
	if err != nil {
		return nil, err
	}

	b := &Buffer{
		cfg:      cfg,
		decoder:  dec,
		listener: NullListener{},
		clock:    RealTimeProvider{},
		avg:      avg,
	}
	for _, opt := range opts {
		opt(b)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewBuffer",
		"buffer_len": cfg.JitterBufferLen,
		"avg_window": cfg.AvgWindow,
		"delay_step": cfg.DelayStep,
	}).Debug("Created jitter buffer")

	return b, nil
}

// Write inserts p and reports whether the caller should read immediately.
// The payload is copied, so p may borrow from a reused receive buffer.
func (b *Buffer) Write(p packet.Packet) Action {
	if b.closed {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Write",
			"seq":      p.Seq,
		}).Warn("Write to closed buffer ignored")
		return ActionNothing
	}

	if p.IsMissing() {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Write",
			"seq":      p.Seq,
		}).Warn("Adding missing packet to buffer")
	}

	accepted := b.insert(p)
	b.trimToPin()

	if !b.started {
		b.started = true
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Write",
			"seq":      p.Seq,
		}).Info("Got first packet")
		return ActionRead
	}

	if accepted && b.hold > 0 {
		b.hold--
		if b.hold == 0 {
			logrus.WithFields(logrus.Fields{
				"function":  "Buffer.Write",
				"queue_len": b.queue.Len(),
			}).Info("Jitter buffer is full, start playing")
		}
	}
	return ActionNothing
}

// insert places p in its slot and reports whether the buffer changed.
func (b *Buffer) insert(p packet.Packet) bool {
	if b.queue.Len() == 0 {
		if b.hasNext && p.Seq < b.nextSeq {
			b.rejectLate(p.Seq, b.nextSeq)
			return false
		}
		b.queue.PushBack(b.newFrame(p))
		return true
	}

	first := b.queue.Front().seq
	last := b.queue.Back().seq

	switch {
	case p.Seq > last:
		if p.Seq-last > maxGap {
			logrus.WithFields(logrus.Fields{
				"function": "Buffer.insert",
				"seq":      p.Seq,
				"last_seq": last,
			}).Warn("Sequence jump too large, restarting queue")
			b.flushQueue()
			b.queue.PushBack(b.newFrame(p))
			return true
		}
		for seq := last + 1; seq < p.Seq; seq++ {
			b.queue.PushBack(b.newFrame(packet.Missing(seq)))
		}
		b.queue.PushBack(b.newFrame(p))
		return true
	case p.Seq < first:
		b.rejectLate(p.Seq, first)
		return false
	case p.IsMissing():
		return false
	}

	slot := b.queue.At(int(p.Seq - first))
	if !slot.missing {
		b.duplicates++
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.insert",
			"seq":      p.Seq,
		}).Debug("Duplicate packet ignored")
		return false
	}
	slot.fill(p, b.clock.Now())
	return true
}

func (b *Buffer) rejectLate(seq, front uint32) {
	b.late++
	logrus.WithFields(logrus.Fields{
		"function":  "Buffer.insert",
		"seq":       seq,
		"front_seq": front,
	}).Warn("Packet arrived too late, discarding")
}

func (b *Buffer) newFrame(p packet.Packet) *frame {
	f := b.pool.get()
	f.fill(p, b.clock.Now())
	return f
}

// Read writes the next frame's PCM into out. It returns false only when
// nothing has ever been played, in which case out is left empty.
func (b *Buffer) Read(out *[]byte) (bool, error) {
	if b.closed {
		return false, apperr.State("read from closed jitter buffer")
	}

	if b.hold > 0 {
		return b.repeatLast(out)
	}

	f, ok := b.popFront()
	if !ok {
		b.underruns++
		b.hold = b.holdThreshold()
		logrus.WithFields(logrus.Fields{
			"function":  "Buffer.Read",
			"hold":      b.hold,
			"underruns": b.underruns,
		}).Info("Nothing to read")
		b.listener.OnUnderrun(b.underruns)
		return b.repeatLast(out)
	}

	if f.missing {
		b.missing++
		logrus.WithFields(logrus.Fields{
			"function":      "Buffer.Read",
			"seq":           f.seq,
			"total_missing": b.missing,
		}).Warn("Frame is missing")
		b.listener.OnFrameMissing(f.seq, b.missing)
		b.pool.put(f)
		return b.repeatLast(out)
	}

	b.avg.Push(b.clock.Now().Sub(f.receivedAt))

	if err := b.decoder.Decode(f.data, out); err != nil {
		b.pool.put(f)
		return false, err
	}

	b.pool.put(b.lastPlayed)
	b.lastPlayed = f
	b.listener.OnDelayChanged(b.Delay())
	return true, nil
}

func (b *Buffer) repeatLast(out *[]byte) (bool, error) {
	if b.lastPlayed == nil {
		*out = (*out)[:0]
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Read",
		}).Debug("No last packet")
		return false, nil
	}
	if err := b.decoder.Decode(b.lastPlayed.data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Buffer) popFront() (*frame, bool) {
	if b.queue.Len() == 0 {
		return nil, false
	}
	f := b.queue.PopFront()
	b.nextSeq = f.seq + 1
	b.hasNext = true
	return f, true
}

func (b *Buffer) flushQueue() {
	for b.queue.Len() > 0 {
		b.pool.put(b.queue.PopFront())
	}
}

// Len returns the number of queued frames, placeholders included.
func (b *Buffer) Len() int {
	return b.queue.Len()
}

// Missing returns how many placeholders have been played so far.
func (b *Buffer) Missing() uint64 {
	return b.missing
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Len:           b.queue.Len(),
		Hold:          b.hold,
		Missing:       b.missing,
		Underruns:     b.underruns,
		Dropped:       b.dropped,
		Duplicates:    b.duplicates,
		Late:          b.late,
		Allocated:     b.pool.allocated,
		FrameDuration: b.decoder.FrameDuration(),
		AvgDelay:      b.Delay(),
		Fixed:         b.fixed,
	}
}

// Reset returns every frame to the free list and forgets the stream, as if
// no packet had been written. Pinned delay settings survive.
func (b *Buffer) Reset() {
	b.flushQueue()
	b.pool.put(b.lastPlayed)
	b.lastPlayed = nil
	b.started = false
	b.hasNext = false
	b.nextSeq = 0
	b.hold = 0
	b.avg.Reset()
	b.missing, b.underruns, b.dropped, b.duplicates, b.late = 0, 0, 0, 0, 0
}

// Close releases all frames. Later reads fail and writes are ignored.
func (b *Buffer) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.queue.Clear()
	b.lastPlayed = nil
	b.pool.drop()
}
