package sink

import (
	"fmt"

	"github.com/opd-ai/streamaudio/apperr"
)

// Result codes reported in BackendError.
const (
	ResultPreconditionsViolated = 1
	ResultParameterInvalid      = 2
	ResultResourceError         = 4
	ResultIOError               = 10
	ResultFeatureUnsupported    = 12
)

var resultNames = map[int]string{
	ResultPreconditionsViolated: "preconditions_violated",
	ResultParameterInvalid:      "parameter_invalid",
	ResultResourceError:         "resource_error",
	ResultIOError:               "io_error",
	ResultFeatureUnsupported:    "feature_unsupported",
}

// BackendError is a failure reported by the audio backend.
type BackendError struct {
	Op   string
	Code int
	Err  error
}

func (e *BackendError) Error() string {
	name, ok := resultNames[e.Code]
	if !ok {
		name = fmt.Sprintf("unknown_error(%d)", e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("audio backend %s: %s: %v", e.Op, name, e.Err)
	}
	return fmt.Sprintf("audio backend %s: %s", e.Op, name)
}

func (e *BackendError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperr.ErrBackend, e.Err}
	}
	return []error{apperr.ErrBackend}
}

// ErrNotRealized is the cause attached to operations on objects that have not
// been realized, or have been destroyed.
var ErrNotRealized = fmt.Errorf("object not realized")

// PlayState is the transport state of a buffer player.
type PlayState int

const (
	PlayStateStopped PlayState = iota + 1
	PlayStatePaused
	PlayStatePlaying
)

func (s PlayState) String() string {
	switch s {
	case PlayStateStopped:
		return "stopped"
	case PlayStatePaused:
		return "paused"
	case PlayStatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Settings is the PCM format a buffer player consumes. Samples are always
// signed 16-bit little-endian.
type Settings struct {
	SampleRate int
	Channels   int
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.SampleRate <= 0 {
		return apperr.Invalid("sample rate must be positive, got %d", s.SampleRate)
	}
	if s.Channels < 1 || s.Channels > 2 {
		return apperr.Invalid("unsupported channel count: %d", s.Channels)
	}
	return nil
}

// Object is the two-phase lifecycle shared by every backend object.
type Object interface {
	Realize() error
	Destroy() error
}

// Engine is the root backend object.
type Engine interface {
	Object
	CreateOutputMix() (OutputMix, error)
	CreateBufferPlayer(mix OutputMix, settings Settings) (BufferPlayer, error)
}

// OutputMix routes a buffer player to the device.
type OutputMix interface {
	Object
}

// BufferPlayer plays PCM it pulls from a FrameSource or is handed directly.
type BufferPlayer interface {
	Object
	RegisterCallback(src FrameSource) error
	SetPlayState(state PlayState) error
	PlayState() (PlayState, error)
	Enqueue(pcm []byte) error
}

// FrameSource fills buf with the next PCM to play and returns the number of
// bytes produced. Zero means nothing is available this cycle and is not an
// error.
type FrameSource interface {
	Pull(buf *[]byte) (int, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(buf *[]byte) (int, error)

// Pull implements FrameSource.
func (f FrameSourceFunc) Pull(buf *[]byte) (int, error) { return f(buf) }
