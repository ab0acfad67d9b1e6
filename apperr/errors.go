// Package apperr defines the error kinds shared by the receiver packages.
//
// Every error produced by the module wraps exactly one of the sentinel kinds
// below so callers can classify failures with errors.Is, regardless of how
// much context was added along the way.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrInvalidArgument indicates a malformed or out-of-range argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState indicates an operation attempted in the wrong state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNullHandle indicates a missing or already destroyed session handle.
	ErrNullHandle = errors.New("null handle")

	// ErrIO indicates a socket or file failure.
	ErrIO = errors.New("i/o failure")

	// ErrBackend indicates a failure reported by the audio backend.
	ErrBackend = errors.New("audio backend failure")

	// ErrAddrParse indicates a network address that could not be parsed.
	ErrAddrParse = errors.New("address parse failure")

	// ErrLockPoisoned indicates a critical section panicked while holding the lock.
	ErrLockPoisoned = errors.New("lock poisoned")

	// ErrCodec indicates a decoder or resampler failure.
	ErrCodec = errors.New("codec failure")

	// ErrBinding indicates a failure in the host binding layer.
	ErrBinding = errors.New("binding failure")
)

// IOError carries the operation and an optional socket or file context.
type IOError struct {
	Op      string
	Context string
	Err     error
}

// NewIOError wraps err as an I/O failure of op.
func NewIOError(op, context string, err error) *IOError {
	return &IOError{Op: op, Context: context, Err: err}
}

func (e *IOError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Context, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// AddrError reports an address string that failed to parse.
type AddrError struct {
	Addr string
	Err  error
}

func (e *AddrError) Error() string {
	return fmt.Sprintf("%v of %q", e.Err, e.Addr)
}

func (e *AddrError) Unwrap() []error { return []error{ErrAddrParse, e.Err} }

// Invalid returns an ErrInvalidArgument with a formatted description.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// State returns an ErrInvalidState with a formatted description.
func State(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Codec wraps err as a codec failure.
func Codec(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCodec, op, err)
}

// Signal is what the binding boundary reports for a failed call.
type Signal int

const (
	// SignalNone means the call succeeded.
	SignalNone Signal = iota
	// SignalInvalidHandle is reported for null-handle errors.
	SignalInvalidHandle
	// SignalFailure is reported for every other error kind.
	SignalFailure
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalInvalidHandle:
		return "invalid_handle"
	case SignalFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Classify maps err to the signal the binding layer raises and a
// human-readable message.
func Classify(err error) (Signal, string) {
	if err == nil {
		return SignalNone, ""
	}
	if errors.Is(err, ErrNullHandle) {
		return SignalInvalidHandle, err.Error()
	}
	return SignalFailure, err.Error()
}
