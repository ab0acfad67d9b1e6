package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/streamaudio/limits"
)

// Packet is one sequence-numbered unit of the media stream.
type Packet struct {
	Seq     uint32
	Payload Payload
}

// Missing returns a placeholder for a sequence number that never arrived.
func Missing(seq uint32) Packet {
	return Packet{Seq: seq, Payload: None()}
}

// IsMissing reports whether p is a placeholder.
func (p Packet) IsMissing() bool {
	return !p.Payload.Present()
}

func (p Packet) String() string {
	if p.IsMissing() {
		return fmt.Sprintf("packet(%d, missing)", p.Seq)
	}
	return fmt.Sprintf("packet(%d, %d bytes)", p.Seq, p.Payload.Len())
}

// Framer turns a raw datagram into a Packet.
type Framer interface {
	Parse(datagram []byte) (Packet, error)
}

// Parse extracts the big-endian counter from the first four bytes of
// datagram and borrows the remainder as the payload.
func Parse(datagram []byte) (Packet, error) {
	if err := limits.ValidateDatagram(datagram); err != nil {
		return Packet{}, fmt.Errorf("parse datagram: %w", err)
	}

	seq := binary.BigEndian.Uint32(datagram[:limits.SequenceHeaderSize])
	return Packet{
		Seq:     seq,
		Payload: Borrowed(datagram[limits.SequenceHeaderSize:]),
	}, nil
}

// Encode builds a counter-framed datagram.
func Encode(seq uint32, payload []byte) []byte {
	buf := make([]byte, limits.SequenceHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, seq)
	copy(buf[limits.SequenceHeaderSize:], payload)
	return buf
}

// CounterFramer parses the plain counter wire format.
type CounterFramer struct{}

// Parse implements Framer.
func (CounterFramer) Parse(datagram []byte) (Packet, error) {
	return Parse(datagram)
}
