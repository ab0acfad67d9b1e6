package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// Codec names accepted by NewDecoder.
const (
	CodecOpus    = "opus"
	CodecPCM16   = "pcm_s16le"
	CodecFloat32 = "pcm_f32le"
)

// Decoder is a stateful push/pull codec. Read returns nil once every chunk
// produced by the preceding Writes has been drained.
type Decoder interface {
	Write(payload []byte) error
	Read() (*goaudio.IntBuffer, error)
	Close() error
}

// NewDecoder returns a decoder for codec. format describes the stream for
// raw PCM codecs; Opus carries its own format in-band and ignores it.
func NewDecoder(codec string, format Format) (Decoder, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewDecoder",
		"codec":       codec,
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Info("Creating audio decoder")

	switch codec {
	case CodecOpus:
		return NewOpusDecoder(), nil
	case CodecPCM16:
		if err := format.Validate(); err != nil {
			return nil, err
		}
		return NewPCM16Decoder(format), nil
	case CodecFloat32:
		if err := format.Validate(); err != nil {
			return nil, err
		}
		return NewFloat32Decoder(format), nil
	default:
		return nil, apperr.Invalid("unknown codec %q", codec)
	}
}

// chunkQueue holds decoded chunks until they are read.
type chunkQueue struct {
	chunks []*goaudio.IntBuffer
	closed bool
}

func (q *chunkQueue) push(buf *goaudio.IntBuffer) {
	q.chunks = append(q.chunks, buf)
}

func (q *chunkQueue) pop() (*goaudio.IntBuffer, error) {
	if q.closed {
		return nil, apperr.State("decoder closed")
	}
	if len(q.chunks) == 0 {
		return nil, nil
	}
	buf := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	return buf, nil
}

func (q *chunkQueue) close() {
	q.closed = true
	q.chunks = nil
}

// PCM16Decoder passes interleaved S16LE through as IntBuffers.
type PCM16Decoder struct {
	format Format
	queue  chunkQueue
}

// NewPCM16Decoder creates a passthrough decoder for format.
func NewPCM16Decoder(format Format) *PCM16Decoder {
	return &PCM16Decoder{format: format}
}

// Write implements Decoder.
func (d *PCM16Decoder) Write(payload []byte) error {
	if d.queue.closed {
		return apperr.State("decoder closed")
	}
	if len(payload) == 0 {
		return nil
	}
	if len(payload)%(d.format.Channels*2) != 0 {
		return apperr.Codec("decode pcm_s16le", fmt.Errorf("payload of %d bytes is not aligned to %d channels", len(payload), d.format.Channels))
	}

	data := make([]int, len(payload)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(payload[i*2:])))
	}
	d.queue.push(&goaudio.IntBuffer{Format: d.format.GoAudio(), Data: data, SourceBitDepth: 16})
	return nil
}

// Read implements Decoder.
func (d *PCM16Decoder) Read() (*goaudio.IntBuffer, error) { return d.queue.pop() }

// Close implements Decoder.
func (d *PCM16Decoder) Close() error {
	d.queue.close()
	return nil
}

// Float32Decoder converts interleaved float32 LE samples in [-1, 1] to
// 16-bit integers, clamping out-of-range values.
type Float32Decoder struct {
	format Format
	queue  chunkQueue
}

// NewFloat32Decoder creates a float decoder for format.
func NewFloat32Decoder(format Format) *Float32Decoder {
	return &Float32Decoder{format: format}
}

// Write implements Decoder.
func (d *Float32Decoder) Write(payload []byte) error {
	if d.queue.closed {
		return apperr.State("decoder closed")
	}
	if len(payload) == 0 {
		return nil
	}
	if len(payload)%(d.format.Channels*4) != 0 {
		return apperr.Codec("decode pcm_f32le", fmt.Errorf("payload of %d bytes is not aligned to %d channels", len(payload), d.format.Channels))
	}

	data := make([]int, len(payload)/4)
	for i := range data {
		f := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		data[i] = floatToInt16(f)
	}
	d.queue.push(&goaudio.IntBuffer{Format: d.format.GoAudio(), Data: data, SourceBitDepth: 16})
	return nil
}

// Read implements Decoder.
func (d *Float32Decoder) Read() (*goaudio.IntBuffer, error) { return d.queue.pop() }

// Close implements Decoder.
func (d *Float32Decoder) Close() error {
	d.queue.close()
	return nil
}

func floatToInt16(f float32) int {
	if f != f {
		return 0
	}
	v := int(math.Round(float64(f) * math.MaxInt16))
	return clampInt16(v)
}

func clampInt16(v int) int {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}
