package packet

type payloadKind uint8

const (
	kindNone payloadKind = iota
	kindBorrowed
	kindOwned
)

// Payload is a view over packet data that is either absent, borrowed from a
// buffer owned by someone else, or owned by the holder.
type Payload struct {
	kind payloadKind
	data []byte
}

// None returns an absent payload, used for missing-packet placeholders.
func None() Payload {
	return Payload{}
}

// Borrowed wraps b without copying. The caller must not reuse b while the
// payload is alive.
func Borrowed(b []byte) Payload {
	if b == nil {
		b = []byte{}
	}
	return Payload{kind: kindBorrowed, data: b}
}

// Owned wraps b, taking ownership of it.
func Owned(b []byte) Payload {
	if b == nil {
		b = []byte{}
	}
	return Payload{kind: kindOwned, data: b}
}

// Present reports whether the payload carries data (possibly zero length).
func (p Payload) Present() bool {
	return p.kind != kindNone
}

// IsOwned reports whether the payload owns its storage.
func (p Payload) IsOwned() bool {
	return p.kind == kindOwned
}

// Bytes returns the payload data, nil when absent.
func (p Payload) Bytes() []byte {
	return p.data
}

// Len returns the payload length, zero when absent.
func (p Payload) Len() int {
	return len(p.data)
}

// Clone returns an owned copy. An absent payload stays absent.
func (p Payload) Clone() Payload {
	if p.kind == kindNone {
		return None()
	}
	buf := make([]byte, len(p.data))
	copy(buf, p.data)
	return Owned(buf)
}
