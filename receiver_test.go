package streamaudio

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/audio"
	"github.com/opd-ai/streamaudio/config"
	"github.com/opd-ai/streamaudio/notify"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/sink"
)

// 20 ms of 8 kHz mono S16LE.
const frameBytes = 320

func testConfig() *config.Config {
	conf := config.Default()
	conf.LocalAddr = "127.0.0.1:0"
	conf.Codec = audio.CodecPCM16
	conf.Input = audio.Format{SampleRate: 8000, Channels: 1}
	conf.Output = audio.Format{SampleRate: 8000, Channels: 1}
	conf.Sink.Backend = config.BackendNull
	conf.NotifyInterval = 10 * time.Millisecond
	return conf
}

type delayRecorder struct {
	mu     sync.Mutex
	values []int64
}

func (d *delayRecorder) OnDelayChangedMs(ms int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = append(d.values, ms)
}

func (d *delayRecorder) last() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return 0, false
	}
	return d.values[len(d.values)-1], true
}

type remote struct {
	t    *testing.T
	conn *net.UDPConn
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &remote{t: t, conn: conn}
}

func (r *remote) expect(want string) *net.UDPAddr {
	r.t.Helper()
	buf := make([]byte, 64)
	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, from, err := r.conn.ReadFromUDP(buf)
	require.NoError(r.t, err)
	require.Equal(r.t, want, string(buf[:n]))
	return from
}

func (r *remote) send(to *net.UDPAddr, data []byte) {
	r.t.Helper()
	_, err := r.conn.WriteToUDP(data, to)
	require.NoError(r.t, err)
}

func newTestReceiver(t *testing.T, cb notify.Callback) *Receiver {
	t.Helper()
	rx, err := New(testConfig(), cb)
	require.NoError(t, err)
	t.Cleanup(func() { rx.Close() })
	return rx
}

func TestReceiverSession(t *testing.T) {
	rec := &delayRecorder{}
	rx := newTestReceiver(t, rec)
	assert.NotEmpty(t, rx.ID())

	playing, err := rx.IsPlaying()
	require.NoError(t, err)
	assert.False(t, playing)

	_, err = rx.DelayMs()
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	srv := newRemote(t)
	require.NoError(t, rx.Play(srv.conn.LocalAddr().String()))
	addr := srv.expect("info")

	playing, err = rx.IsPlaying()
	require.NoError(t, err)
	assert.True(t, playing)

	err = rx.Play(srv.conn.LocalAddr().String())
	assert.True(t, errors.Is(err, apperr.ErrInvalidState), "double play: %v", err)

	srv.send(addr, []byte("ready"))
	srv.expect("start")

	for _, seq := range []uint32{1, 2, 4, 5} {
		srv.send(addr, packet.Encode(seq, make([]byte, frameBytes)))
	}

	require.Eventually(t, func() bool {
		s, err := rx.Stats()
		return err == nil && s.Transport.Datagrams == 5 && s.Buffer.FrameDuration > 0
	}, 2*time.Second, 5*time.Millisecond)

	stats, err := rx.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Transport.WireLost)
	assert.Equal(t, 20*time.Millisecond, stats.Buffer.FrameDuration)

	_, err = rx.DelayMs()
	require.NoError(t, err)
	after, err := rx.IncreaseDelayMs()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, int64(50))

	require.Eventually(t, func() bool {
		ms, ok := rec.last()
		return ok && ms >= 50
	}, 2*time.Second, 5*time.Millisecond)

	decreased, err := rx.DecreaseDelayMs()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, decreased, int64(0))
	assert.Less(t, decreased, after)

	require.NoError(t, rx.Stop())
	srv.expect("stop")

	playing, err = rx.IsPlaying()
	require.NoError(t, err)
	assert.False(t, playing)
	assert.NoError(t, rx.Stop(), "stopping an idle receiver")
}

func TestReceiverFixedDelay(t *testing.T) {
	rx := newTestReceiver(t, nil)
	srv := newRemote(t)
	require.NoError(t, rx.Play(srv.conn.LocalAddr().String()))
	srv.expect("info")

	require.NoError(t, rx.FixDelayMs(120))
	ms, err := rx.DelayMs()
	require.NoError(t, err)
	assert.Equal(t, int64(120), ms)

	require.NoError(t, rx.UnfixDelay())
	assert.True(t, errors.Is(rx.FixDelayMs(-1), apperr.ErrInvalidArgument))
}

func TestReceiverPlayErrors(t *testing.T) {
	rx := newTestReceiver(t, nil)

	err := rx.Play("not an address")
	assert.True(t, errors.Is(err, apperr.ErrAddrParse), "got %v", err)

	err = rx.Play("")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument), "got %v", err)

	playing, err := rx.IsPlaying()
	require.NoError(t, err)
	assert.False(t, playing, "failed play leaves nothing running")
}

func TestReceiverBindFailureLeavesNothingRunning(t *testing.T) {
	busy, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer busy.Close()

	conf := testConfig()
	conf.LocalAddr = busy.LocalAddr().String()

	var destroyed bool
	rx, err := New(conf, nil, WithEngineFactory(func(c *config.Config, s sink.Settings) (sink.Engine, error) {
		return &trackedEngine{ClockEngine: sink.NewClockEngine(sink.ClockConfig{}), destroyed: &destroyed}, nil
	}))
	require.NoError(t, err)
	defer rx.Close()

	err = rx.Play("127.0.0.1:9")
	assert.True(t, errors.Is(err, apperr.ErrIO), "got %v", err)
	assert.True(t, destroyed, "engine destroyed after bind failure")

	playing, err := rx.IsPlaying()
	require.NoError(t, err)
	assert.False(t, playing)
}

type trackedEngine struct {
	*sink.ClockEngine
	destroyed *bool
}

func (e *trackedEngine) Destroy() error {
	*e.destroyed = true
	return e.ClockEngine.Destroy()
}

type unrealizableEngine struct {
	*sink.ClockEngine
}

func (unrealizableEngine) Realize() error {
	return &sink.BackendError{Op: "Engine.Realize", Code: sink.ResultResourceError}
}

type closeRecorder struct {
	sink.DiscardWriter
	closed bool
}

func (w *closeRecorder) Close() error {
	w.closed = true
	return nil
}

func TestReceiverPlayerFailureReleasesEngine(t *testing.T) {
	writer := &closeRecorder{}
	rx, err := New(testConfig(), nil, WithEngineFactory(func(*config.Config, sink.Settings) (sink.Engine, error) {
		return unrealizableEngine{sink.NewClockEngine(sink.ClockConfig{Writer: writer})}, nil
	}))
	require.NoError(t, err)
	defer rx.Close()

	err = rx.Play("127.0.0.1:9")
	assert.True(t, errors.Is(err, apperr.ErrBackend), "got %v", err)
	assert.True(t, writer.closed, "engine writer closed after failed setup")

	playing, err := rx.IsPlaying()
	require.NoError(t, err)
	assert.False(t, playing)
}

func TestReceiverClosed(t *testing.T) {
	rx, err := New(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, rx.Close())
	require.NoError(t, rx.Close())

	assert.True(t, errors.Is(rx.Play("127.0.0.1:9"), apperr.ErrNullHandle))
	assert.True(t, errors.Is(rx.Stop(), apperr.ErrNullHandle))
	_, err = rx.IsPlaying()
	assert.True(t, errors.Is(err, apperr.ErrNullHandle))
}

func TestNilReceiver(t *testing.T) {
	var rx *Receiver
	_, err := rx.DelayMs()
	assert.True(t, errors.Is(err, apperr.ErrNullHandle))
	assert.True(t, errors.Is(rx.Close(), apperr.ErrNullHandle))

	sig, msg := Signal(err)
	assert.Equal(t, apperr.SignalInvalidHandle, sig)
	assert.Contains(t, msg, "nil")
}

func TestSignal(t *testing.T) {
	sig, _ := Signal(nil)
	assert.Equal(t, apperr.SignalNone, sig)

	sig, msg := Signal(apperr.State("already playing"))
	assert.Equal(t, apperr.SignalFailure, sig)
	assert.Contains(t, msg, "already playing")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	conf := testConfig()
	conf.Codec = "aac"
	_, err := New(conf, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}
