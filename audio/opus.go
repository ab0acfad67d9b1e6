package audio

import (
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// OpusSampleRate is the rate pion/opus produces regardless of bandwidth.
const OpusSampleRate = 48000

// OpusDecoder decodes SILK-mode Opus packets to mono 48 kHz samples.
type OpusDecoder struct {
	decoder opus.Decoder
	out     []byte
	queue   chunkQueue
}

// NewOpusDecoder creates an Opus decoder.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{decoder: opus.NewDecoder()}
}

// Write implements Decoder.
func (d *OpusDecoder) Write(payload []byte) error {
	if d.queue.closed {
		return apperr.State("decoder closed")
	}
	if len(payload) == 0 {
		return nil
	}

	duration, err := opusPacketDuration(payload)
	if err != nil {
		return apperr.Codec("decode opus", err)
	}
	samples := int(duration * OpusSampleRate / time.Second)
	if cap(d.out) < samples*BytesPerSample {
		d.out = make([]byte, samples*BytesPerSample)
	}
	out := d.out[:samples*BytesPerSample]

	bandwidth, isStereo, err := d.decoder.Decode(payload, out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpusDecoder.Write",
			"size":     len(payload),
			"error":    err.Error(),
		}).Debug("Opus decode failed")
		return apperr.Codec("decode opus", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "OpusDecoder.Write",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
		"samples":   samples,
	}).Debug("Decoded opus packet")

	data := make([]int, samples)
	for i := range data {
		data[i] = int(int16(uint16(out[i*2]) | uint16(out[i*2+1])<<8))
	}
	d.queue.push(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: OpusSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	return nil
}

// Read implements Decoder.
func (d *OpusDecoder) Read() (*goaudio.IntBuffer, error) { return d.queue.pop() }

// Close implements Decoder.
func (d *OpusDecoder) Close() error {
	d.queue.close()
	d.out = nil
	return nil
}

// opusFrameDurations maps the TOC configuration number to a frame length.
var opusFrameDurations = [32]time.Duration{
	// SILK NB, MB, WB
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	// Hybrid SWB, FB
	10 * time.Millisecond, 20 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond,
	// CELT NB, WB, SWB, FB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
}

// opusPacketDuration reads the TOC byte (RFC 6716 section 3.1) and returns
// the total playout duration of the packet.
func opusPacketDuration(packet []byte) (time.Duration, error) {
	if len(packet) == 0 {
		return 0, fmt.Errorf("empty opus packet")
	}

	toc := packet[0]
	frame := opusFrameDurations[toc>>3]

	var frames int
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(packet) < 2 {
			return 0, fmt.Errorf("opus code 3 packet without frame count")
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, fmt.Errorf("opus code 3 packet with zero frames")
		}
	}

	total := time.Duration(frames) * frame
	if total > 120*time.Millisecond {
		return 0, fmt.Errorf("opus packet duration %v exceeds 120ms", total)
	}
	return total, nil
}
