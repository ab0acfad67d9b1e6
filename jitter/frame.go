package jitter

import (
	"time"

	"github.com/opd-ai/streamaudio/packet"
)

// frame is pooled storage for one queued packet.
type frame struct {
	seq        uint32
	missing    bool
	data       []byte
	receivedAt time.Time
}

func (f *frame) fill(p packet.Packet, now time.Time) {
	f.seq = p.Seq
	f.missing = p.IsMissing()
	f.data = append(f.data[:0], p.Payload.Bytes()...)
	f.receivedAt = now
}

// framePool is a free list of frames. Frames are allocated on a miss and
// only released when the pool is dropped.
type framePool struct {
	free      []*frame
	allocated int
}

func (p *framePool) get() *frame {
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return f
	}
	p.allocated++
	return &frame{}
}

func (p *framePool) put(f *frame) {
	if f == nil {
		return
	}
	f.missing = false
	f.data = f.data[:0]
	p.free = append(p.free, f)
}

func (p *framePool) drop() {
	p.free = nil
}
