package audio

import (
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/opd-ai/streamaudio/apperr"
)

// BytesPerSample is the size of one output sample (S16LE).
const BytesPerSample = 2

// Format describes interleaved PCM.
type Format struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// Validate checks that the format can be produced by the resampler.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return apperr.Invalid("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return apperr.Invalid("unsupported channel count: %d (must be 1 or 2)", f.Channels)
	}
	return nil
}

// BytesPerFrame is the size of one S16LE sample frame across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * BytesPerSample
}

// Duration returns how long n bytes of S16LE PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// GoAudio converts the format to its go-audio equivalent.
func (f Format) GoAudio() *goaudio.Format {
	return &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate}
}

func formatOf(buf *goaudio.IntBuffer) Format {
	if buf == nil || buf.Format == nil {
		return Format{}
	}
	return Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
}
