package limits

import (
	"fmt"

	"github.com/opd-ai/streamaudio/apperr"
)

const (
	// SequenceHeaderSize is the size of the big-endian counter preceding the payload.
	SequenceHeaderSize = 4

	// MaxDatagram is the size of the socket receive buffer.
	MaxDatagram = 65536

	// MaxFramePayload is the largest payload that fits after the counter.
	MaxFramePayload = MaxDatagram - SequenceHeaderSize
)

var (
	// ErrDatagramTooShort indicates a datagram without a complete counter.
	ErrDatagramTooShort = fmt.Errorf("%w: datagram too short", apperr.ErrInvalidArgument)

	// ErrDatagramTooLarge indicates a payload that exceeds the receive buffer.
	ErrDatagramTooLarge = fmt.Errorf("%w: datagram too large", apperr.ErrInvalidArgument)
)

// ValidateDatagram checks that data can carry a counter-framed media packet.
func ValidateDatagram(data []byte) error {
	if len(data) < SequenceHeaderSize {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrDatagramTooShort, len(data), SequenceHeaderSize)
	}
	if payload := len(data) - SequenceHeaderSize; payload > MaxFramePayload {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d", ErrDatagramTooLarge, payload, MaxFramePayload)
	}
	return nil
}
