package sink

import (
	"encoding/binary"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// PCMWriter consumes S16LE PCM produced by a buffer player.
type PCMWriter interface {
	Write(pcm []byte) error
	Close() error
}

// DiscardWriter drops everything written to it.
type DiscardWriter struct{}

func (DiscardWriter) Write([]byte) error { return nil }
func (DiscardWriter) Close() error       { return nil }

// WAVWriter records PCM into a 16-bit WAV file.
type WAVWriter struct {
	path     string
	file     *os.File
	encoder  *wav.Encoder
	format   *goaudio.Format
	buf      goaudio.IntBuffer
	frames   int
	channels int
}

// NewWAVWriter creates the file at path.
func NewWAVWriter(path string, settings Settings) (*WAVWriter, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, apperr.NewIOError("create", path, err)
	}

	format := &goaudio.Format{NumChannels: settings.Channels, SampleRate: settings.SampleRate}
	w := &WAVWriter{
		path:     path,
		file:     f,
		encoder:  wav.NewEncoder(f, settings.SampleRate, 16, settings.Channels, 1),
		format:   format,
		channels: settings.Channels,
	}
	w.buf.Format = format
	w.buf.SourceBitDepth = 16

	logrus.WithFields(logrus.Fields{
		"function":    "NewWAVWriter",
		"path":        path,
		"sample_rate": settings.SampleRate,
		"channels":    settings.Channels,
	}).Info("Recording playback to WAV file")

	return w, nil
}

// Write appends pcm to the file. A trailing partial sample is ignored.
func (w *WAVWriter) Write(pcm []byte) error {
	n := len(pcm) / 2
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	for i := 0; i < n; i++ {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	if err := w.encoder.Write(&w.buf); err != nil {
		return apperr.NewIOError("write", w.path, err)
	}
	w.frames += n / w.channels
	return nil
}

// Frames returns the number of sample frames written so far.
func (w *WAVWriter) Frames() int {
	return w.frames
}

// Close finalizes the WAV header and closes the file.
func (w *WAVWriter) Close() error {
	encErr := w.encoder.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return apperr.NewIOError("finalize", w.path, encErr)
	}
	if fileErr != nil {
		return apperr.NewIOError("close", w.path, fileErr)
	}
	return nil
}
