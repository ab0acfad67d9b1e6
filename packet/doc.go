// Package packet parses media datagrams into sequence-numbered packets.
//
// The default wire format is a 4-byte big-endian sequence counter followed by
// an opaque codec payload:
//
//	+--------+--------+--------+--------+----------------------+
//	|          sequence counter (BE)    |   codec payload ...  |
//	+--------+--------+--------+--------+----------------------+
//
// Parsed packets borrow their payload from the datagram; nothing is copied
// until a consumer decides to keep the data (see Payload.Clone).
//
// An RTP framing is also available. It extends the 16-bit RTP sequence
// number into the same 32-bit counter space so the rest of the pipeline is
// unaware of which format was on the wire.
//
// Parsing performs no loss accounting. Tracker observes the counters for
// diagnostics only.
package packet
