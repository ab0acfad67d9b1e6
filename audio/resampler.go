package audio

import (
	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// Resampler converts decoded chunks to a fixed output format using linear
// interpolation. State carries across calls so chunk boundaries do not click.
// A change of input format resets the interpolation state.
type Resampler struct {
	out Format

	inputRate  int
	position   float64
	lastFrame  []int
	primed     bool
	mapScratch []int
}

// NewResampler creates a resampler producing out.
func NewResampler(out Format) (*Resampler, error) {
	if err := out.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResampler",
			"output_rate": out.SampleRate,
			"channels":    out.Channels,
			"error":       err.Error(),
		}).Error("Output format validation failed")
		return nil, err
	}

	return &Resampler{
		out:       out,
		lastFrame: make([]int, out.Channels),
	}, nil
}

// Output returns the format produced by Resample.
func (r *Resampler) Output() Format {
	return r.out
}

// Resample converts buf to the output format.
func (r *Resampler) Resample(buf *goaudio.IntBuffer) (*goaudio.IntBuffer, error) {
	in := formatOf(buf)
	if err := in.Validate(); err != nil {
		return nil, apperr.Codec("resample", err)
	}
	if len(buf.Data)%in.Channels != 0 {
		return nil, apperr.Codec("resample", apperr.Invalid("%d samples not aligned to %d channels", len(buf.Data), in.Channels))
	}

	if in.SampleRate != r.inputRate {
		if r.inputRate != 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Resampler.Resample",
				"old_rate": r.inputRate,
				"new_rate": in.SampleRate,
			}).Info("Input sample rate changed")
		}
		r.inputRate = in.SampleRate
		r.Reset()
	}

	mapped := r.mapChannels(buf.Data, in.Channels)
	frames := len(mapped) / r.out.Channels

	if in.SampleRate == r.out.SampleRate {
		data := make([]int, len(mapped))
		copy(data, mapped)
		r.remember(mapped, frames)
		return &goaudio.IntBuffer{Format: r.out.GoAudio(), Data: data, SourceBitDepth: 16}, nil
	}

	if frames == 0 {
		return &goaudio.IntBuffer{Format: r.out.GoAudio(), Data: []int{}, SourceBitDepth: 16}, nil
	}

	if !r.primed {
		copy(r.lastFrame, mapped[:r.out.Channels])
		r.primed = true
	}

	ratio := float64(in.SampleRate) / float64(r.out.SampleRate)
	estimate := int(float64(frames)/ratio) + 1
	data := make([]int, 0, estimate*r.out.Channels)

	// position is relative to the first frame of this chunk; -1 refers to
	// the last frame of the previous chunk.
	for r.position <= float64(frames-1) {
		idx := int(r.position)
		if r.position < 0 {
			idx = -1
		}
		frac := r.position - float64(idx)

		for ch := 0; ch < r.out.Channels; ch++ {
			s0 := r.sampleAt(mapped, idx, ch)
			s1 := s0
			if idx+1 < frames {
				s1 = r.sampleAt(mapped, idx+1, ch)
			}
			data = append(data, int(float64(s0)*(1-frac)+float64(s1)*frac))
		}
		r.position += ratio
	}
	r.position -= float64(frames)
	r.remember(mapped, frames)

	return &goaudio.IntBuffer{Format: r.out.GoAudio(), Data: data, SourceBitDepth: 16}, nil
}

func (r *Resampler) sampleAt(data []int, idx, ch int) int {
	if idx < 0 {
		return r.lastFrame[ch]
	}
	return data[idx*r.out.Channels+ch]
}

func (r *Resampler) remember(data []int, frames int) {
	if frames == 0 {
		return
	}
	copy(r.lastFrame, data[(frames-1)*r.out.Channels:])
	r.primed = true
}

// mapChannels converts interleaved samples from inChannels to the output
// channel count. Mono is duplicated to stereo, stereo is averaged to mono.
func (r *Resampler) mapChannels(data []int, inChannels int) []int {
	if inChannels == r.out.Channels {
		return data
	}

	frames := len(data) / inChannels
	need := frames * r.out.Channels
	if cap(r.mapScratch) < need {
		r.mapScratch = make([]int, need)
	}
	out := r.mapScratch[:need]

	switch {
	case inChannels == 1 && r.out.Channels == 2:
		for i := 0; i < frames; i++ {
			out[2*i] = data[i]
			out[2*i+1] = data[i]
		}
	case inChannels == 2 && r.out.Channels == 1:
		for i := 0; i < frames; i++ {
			out[i] = (data[2*i] + data[2*i+1]) / 2
		}
	}
	return out
}

// Reset clears the interpolation state.
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}
