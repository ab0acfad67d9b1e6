package packet

import (
	"fmt"

	"github.com/pion/rtp"

	"github.com/opd-ai/streamaudio/apperr"
)

// SequenceUnwrapper extends 16-bit RTP sequence numbers to 32 bits.
type SequenceUnwrapper struct {
	hasLast bool
	last    uint16
	current int64
}

// Unwrap returns the extended counter for seq. Reordered packets map below
// the current value; a step back across zero is clamped to zero.
func (u *SequenceUnwrapper) Unwrap(seq uint16) uint32 {
	if !u.hasLast {
		u.hasLast = true
		u.last = seq
		u.current = int64(seq)
		return uint32(u.current)
	}

	diff := int16(seq - u.last)
	ext := u.current + int64(diff)
	if ext < 0 {
		ext = 0
	}
	if diff > 0 {
		u.current = ext
		u.last = seq
	}
	return uint32(ext)
}

// RTPFramer parses RTP datagrams, keeping the payload borrowed.
type RTPFramer struct {
	unwrapper SequenceUnwrapper
	ssrc      uint32
	hasSSRC   bool
}

// NewRTPFramer returns a framer that locks onto the first SSRC it sees.
func NewRTPFramer() *RTPFramer {
	return &RTPFramer{}
}

// Parse implements Framer. Packets from a different SSRC than the first one
// are rejected.
func (f *RTPFramer) Parse(datagram []byte) (Packet, error) {
	var p rtp.Packet
	if err := p.Unmarshal(datagram); err != nil {
		return Packet{}, fmt.Errorf("%w: unmarshal RTP packet: %w", apperr.ErrInvalidArgument, err)
	}

	if !f.hasSSRC {
		f.ssrc = p.SSRC
		f.hasSSRC = true
	} else if p.SSRC != f.ssrc {
		return Packet{}, apperr.Invalid("unexpected SSRC: expected %d, got %d", f.ssrc, p.SSRC)
	}

	return Packet{
		Seq:     f.unwrapper.Unwrap(p.SequenceNumber),
		Payload: Borrowed(p.Payload),
	}, nil
}
