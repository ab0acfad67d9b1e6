package sink

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamaudio/apperr"
)

// memoryWriter collects written PCM.
type memoryWriter struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (w *memoryWriter) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, append([]byte(nil), pcm...))
	return nil
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memoryWriter) snapshot() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.writes...)
}

var stereo = Settings{SampleRate: 48000, Channels: 2}

func realizedPlayer(t *testing.T, cfg ClockConfig) (*ClockEngine, OutputMix, BufferPlayer) {
	t.Helper()
	engine := NewClockEngine(cfg)
	require.NoError(t, engine.Realize())
	mix, err := engine.CreateOutputMix()
	require.NoError(t, err)
	require.NoError(t, mix.Realize())
	player, err := engine.CreateBufferPlayer(mix, stereo)
	require.NoError(t, err)
	require.NoError(t, player.Realize())
	return engine, mix, player
}

func TestLifecycleOrdering(t *testing.T) {
	engine := NewClockEngine(ClockConfig{})

	_, err := engine.CreateOutputMix()
	assert.ErrorIs(t, err, apperr.ErrBackend)
	assert.ErrorIs(t, err, ErrNotRealized)

	require.NoError(t, engine.Realize())
	assert.ErrorIs(t, engine.Realize(), apperr.ErrBackend, "double realize")

	mix, err := engine.CreateOutputMix()
	require.NoError(t, err)
	_, err = engine.CreateBufferPlayer(mix, stereo)
	assert.ErrorIs(t, err, ErrNotRealized, "mix must be realized first")

	require.NoError(t, mix.Realize())
	_, err = engine.CreateBufferPlayer(mix, Settings{SampleRate: 0, Channels: 2})
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ResultParameterInvalid, be.Code)

	player, err := engine.CreateBufferPlayer(mix, stereo)
	require.NoError(t, err)
	assert.ErrorIs(t, player.SetPlayState(PlayStatePlaying), ErrNotRealized)
	assert.ErrorIs(t, player.Enqueue([]byte{0, 0}), ErrNotRealized)

	require.NoError(t, player.Realize())
	state, err := player.PlayState()
	require.NoError(t, err)
	assert.Equal(t, PlayStateStopped, state)

	require.NoError(t, player.Destroy())
	require.NoError(t, player.Destroy())
	_, err = player.PlayState()
	assert.ErrorIs(t, err, ErrNotRealized)
}

func TestBackendErrorMessage(t *testing.T) {
	err := &BackendError{Op: "Engine.Realize", Code: ResultResourceError}
	assert.Equal(t, "audio backend Engine.Realize: resource_error", err.Error())
	assert.Contains(t, (&BackendError{Op: "x", Code: 99}).Error(), "unknown_error(99)")
}

func TestClockPlayerPullsSource(t *testing.T) {
	writer := &memoryWriter{}
	_, _, player := realizedPlayer(t, ClockConfig{Period: 2 * time.Millisecond, Writer: writer})

	var mu sync.Mutex
	calls := 0
	require.NoError(t, player.RegisterCallback(FrameSourceFunc(func(buf *[]byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls%2 == 0 {
			return 0, nil
		}
		*buf = append((*buf)[:0], 1, 2, 3, 4)
		return 4, nil
	})))

	require.NoError(t, player.SetPlayState(PlayStatePlaying))
	require.NoError(t, player.SetPlayState(PlayStatePlaying))
	assert.Eventually(t, func() bool { return len(writer.snapshot()) >= 4 }, time.Second, time.Millisecond)

	require.NoError(t, player.SetPlayState(PlayStatePaused))
	state, err := player.PlayState()
	require.NoError(t, err)
	assert.Equal(t, PlayStatePaused, state)

	writes := writer.snapshot()
	assert.Equal(t, []byte{1, 2, 3, 4}, writes[0])
	// Starved cycles are filled with one period of silence: 96 frames of stereo S16LE.
	assert.Len(t, writes[1], 96*4)

	require.NoError(t, player.Destroy())
	assert.True(t, writer.closed)
}

func TestEnqueueWritesImmediately(t *testing.T) {
	writer := &memoryWriter{}
	_, _, player := realizedPlayer(t, ClockConfig{Writer: writer})

	require.NoError(t, player.Enqueue([]byte{9, 9}))
	assert.Equal(t, [][]byte{{9, 9}}, writer.snapshot())
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWAVWriter(path, Settings{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte{0x01, 0x00, 0xff, 0xff}))
	require.NoError(t, w.Write([]byte{0x00, 0x80}))
	assert.Equal(t, 3, w.Frames())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, -1, -32768}, buf.Data)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
}

func TestWAVWriterBadPath(t *testing.T) {
	_, err := NewWAVWriter(filepath.Join(t.TempDir(), "missing", "out.wav"), stereo)
	assert.ErrorIs(t, err, apperr.ErrIO)

	_, err = NewWAVWriter(filepath.Join(t.TempDir(), "out.wav"), Settings{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestEngineClosesUnclaimedWriter(t *testing.T) {
	writer := &memoryWriter{}
	engine := NewClockEngine(ClockConfig{Writer: writer})
	require.NoError(t, engine.Realize())
	require.NoError(t, engine.Destroy())
	assert.True(t, writer.closed)

	claimed := &memoryWriter{}
	engine, _, _ = realizedPlayer(t, ClockConfig{Writer: claimed})
	require.NoError(t, engine.Destroy())
	assert.False(t, claimed.closed, "the buffer player owns the writer")
}
