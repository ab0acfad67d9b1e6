package apperr

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid argument", Invalid("window size %d", 0), ErrInvalidArgument},
		{"invalid state", State("already playing"), ErrInvalidState},
		{"codec", Codec("decode", errors.New("bad toc")), ErrCodec},
		{"io", NewIOError("bind", "0.0.0.0:25204", errors.New("in use")), ErrIO},
		{"addr", &AddrError{Addr: "nope", Err: errors.New("missing port")}, ErrAddrParse},
		{"wrapped", fmt.Errorf("play: %w", ErrNullHandle), ErrNullHandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}
}

func TestIOErrorKeepsCause(t *testing.T) {
	cause := &net.AddrError{Err: "bad", Addr: "x"}
	err := NewIOError("send", "", cause)

	var addrErr *net.AddrError
	assert.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "send: address x: bad", err.Error())

	withCtx := NewIOError("bind", "0.0.0.0:1", cause)
	assert.Contains(t, withCtx.Error(), "bind 0.0.0.0:1")
}

func TestClassify(t *testing.T) {
	sig, msg := Classify(nil)
	assert.Equal(t, SignalNone, sig)
	assert.Empty(t, msg)

	sig, msg = Classify(fmt.Errorf("receiver: %w", ErrNullHandle))
	assert.Equal(t, SignalInvalidHandle, sig)
	assert.Equal(t, "receiver: null handle", msg)

	sig, msg = Classify(Invalid("codec %q", "mp3"))
	assert.Equal(t, SignalFailure, sig)
	assert.Contains(t, msg, "mp3")
	assert.Equal(t, "failure", sig.String())
}
