// Package limits provides centralized size constants and validation functions
// for the receiver's wire protocol.
//
// # Datagram Size Hierarchy
//
//   - SequenceHeaderSize (4 bytes): the big-endian sequence counter that
//     prefixes every media datagram.
//   - MaxDatagram (65536 bytes): the receive buffer size. No UDP payload can
//     be larger, so a datagram that fills it was truncated.
//   - MaxFramePayload (MaxDatagram - SequenceHeaderSize): the largest codec
//     payload that can follow the counter.
//
// # Validation Functions
//
//	err := limits.ValidateDatagram(buf)
//	if err != nil {
//	    // ErrDatagramTooShort or ErrDatagramTooLarge
//	}
package limits
