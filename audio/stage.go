package audio

import (
	"errors"
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// Plausible playout duration of a single frame. A first frame outside this
// range means the configured formats do not match the stream.
const (
	MinFrameDuration = 15 * time.Millisecond
	MaxFrameDuration = 43 * time.Millisecond
)

// ErrImplausibleFrameDuration is returned when the first decoded frame plays
// for a duration outside [MinFrameDuration, MaxFrameDuration].
var ErrImplausibleFrameDuration = fmt.Errorf("%w: implausible frame duration", apperr.ErrCodec)

// Stage decodes payloads and resamples them to the playback format.
// It is not safe for concurrent use.
type Stage struct {
	decoder   Decoder
	resampler *Resampler

	frameDuration time.Duration
}

// NewStage combines dec with a resampler producing out.
func NewStage(dec Decoder, out Format) (*Stage, error) {
	if dec == nil {
		return nil, apperr.Invalid("decoder cannot be nil")
	}
	resampler, err := NewResampler(out)
	if err != nil {
		return nil, err
	}
	return &Stage{decoder: dec, resampler: resampler}, nil
}

// Output returns the playback format.
func (s *Stage) Output() Format {
	return s.resampler.Output()
}

// FrameDuration returns the playout length of one frame, zero until the
// first frame has been decoded.
func (s *Stage) FrameDuration() time.Duration {
	return s.frameDuration
}

// Decode replaces the contents of out with the S16LE PCM for payload.
func (s *Stage) Decode(payload []byte, out *[]byte) error {
	*out = (*out)[:0]

	if err := s.decoder.Write(payload); err != nil {
		return wrapCodec("decoder write", err)
	}

	for {
		chunk, err := s.decoder.Read()
		if err != nil {
			return wrapCodec("decoder read", err)
		}
		if chunk == nil {
			break
		}

		resampled, err := s.resampler.Resample(chunk)
		if err != nil {
			return err
		}
		*out = appendS16LE(*out, resampled)
	}

	if s.frameDuration == 0 && len(*out) > 0 {
		return s.learnFrameDuration(len(*out))
	}
	return nil
}

func (s *Stage) learnFrameDuration(n int) error {
	d := s.Output().Duration(n)
	if d < MinFrameDuration || d > MaxFrameDuration {
		logrus.WithFields(logrus.Fields{
			"function":       "Stage.Decode",
			"bytes":          n,
			"frame_duration": d,
		}).Error("Decoded frame has implausible duration")
		return fmt.Errorf("%w: %v for %d bytes", ErrImplausibleFrameDuration, d, n)
	}

	s.frameDuration = d
	logrus.WithFields(logrus.Fields{
		"function":       "Stage.Decode",
		"frame_duration": d,
	}).Info("Learned frame duration")
	return nil
}

// Close releases the decoder.
func (s *Stage) Close() error {
	return s.decoder.Close()
}

func wrapCodec(op string, err error) error {
	if errors.Is(err, apperr.ErrCodec) {
		return err
	}
	return apperr.Codec(op, err)
}

func appendS16LE(dst []byte, buf *goaudio.IntBuffer) []byte {
	for _, v := range buf.Data {
		s := uint16(int16(clampInt16(v)))
		dst = append(dst, byte(s), byte(s>>8))
	}
	return dst
}
