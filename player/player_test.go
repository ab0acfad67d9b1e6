package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/jitter"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/sink"
)

// echoDecoder copies payloads to the output; every frame lasts 20ms.
type echoDecoder struct {
	mu      sync.Mutex
	decoded int
	panicOn byte
	closed  bool
}

func (d *echoDecoder) Decode(payload []byte, out *[]byte) error {
	if d.panicOn != 0 && len(payload) > 0 && payload[0] == d.panicOn {
		panic("decoder state corrupted")
	}
	*out = append((*out)[:0], payload...)
	d.mu.Lock()
	d.decoded++
	d.mu.Unlock()
	return nil
}

func (d *echoDecoder) FrameDuration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decoded == 0 {
		return 0
	}
	return 20 * time.Millisecond
}

func (d *echoDecoder) Close() error {
	d.closed = true
	return nil
}

type fakeObject struct {
	name       string
	events     *[]string
	realizeErr error
}

func (o *fakeObject) Realize() error {
	*o.events = append(*o.events, "realize "+o.name)
	return o.realizeErr
}

func (o *fakeObject) Destroy() error {
	*o.events = append(*o.events, "destroy "+o.name)
	return nil
}

type fakeBufferPlayer struct {
	fakeObject
	mu       sync.Mutex
	source   sink.FrameSource
	state    sink.PlayState
	enqueued [][]byte
}

func (p *fakeBufferPlayer) RegisterCallback(src sink.FrameSource) error {
	p.source = src
	return nil
}

func (p *fakeBufferPlayer) SetPlayState(state sink.PlayState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	return nil
}

func (p *fakeBufferPlayer) PlayState() (sink.PlayState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *fakeBufferPlayer) Enqueue(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, append([]byte(nil), pcm...))
	return nil
}

// pull simulates one backend callback.
func (p *fakeBufferPlayer) pull(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	n, err := p.source.Pull(&buf)
	require.NoError(t, err)
	return buf[:n]
}

type fakeEngine struct {
	fakeObject
	events        []string
	mixErr        error
	playerErr     error
	mixRealizeErr error
	player        *fakeBufferPlayer
}

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{}
	e.fakeObject = fakeObject{name: "engine", events: &e.events}
	return e
}

func (e *fakeEngine) CreateOutputMix() (sink.OutputMix, error) {
	if e.mixErr != nil {
		return nil, e.mixErr
	}
	return &fakeObject{name: "mix", events: &e.events, realizeErr: e.mixRealizeErr}, nil
}

func (e *fakeEngine) CreateBufferPlayer(sink.OutputMix, sink.Settings) (sink.BufferPlayer, error) {
	if e.playerErr != nil {
		return nil, e.playerErr
	}
	e.player = &fakeBufferPlayer{fakeObject: fakeObject{name: "player", events: &e.events}, state: sink.PlayStateStopped}
	return e.player, nil
}

func testConfig() Config {
	return Config{
		Jitter:   jitter.DefaultConfig(),
		Settings: sink.Settings{SampleRate: 48000, Channels: 2},
	}
}

func pkt(seq uint32) packet.Packet {
	return packet.Packet{Seq: seq, Payload: packet.Borrowed([]byte{byte(seq)})}
}

func newTestPlayer(t *testing.T) (*Player, *fakeEngine, *echoDecoder) {
	t.Helper()
	engine := newFakeEngine()
	dec := &echoDecoder{}
	p, err := New(engine, testConfig(), dec)
	require.NoError(t, err)
	return p, engine, dec
}

func TestNewRealizesInOrder(t *testing.T) {
	p, engine, _ := newTestPlayer(t)

	assert.Equal(t, []string{"realize engine", "realize mix", "realize player"}, engine.events)
	assert.NotNil(t, engine.player.source)

	require.NoError(t, p.Close())
	assert.Equal(t, []string{
		"realize engine", "realize mix", "realize player",
		"destroy player", "destroy mix", "destroy engine",
	}, engine.events)
}

func TestNewRollsBackOnFailure(t *testing.T) {
	backendErr := &sink.BackendError{Op: "test", Code: sink.ResultResourceError}

	tests := []struct {
		name   string
		setup  func(e *fakeEngine)
		events []string
	}{
		{
			name:   "engine realize fails",
			setup:  func(e *fakeEngine) { e.realizeErr = backendErr },
			events: []string{"realize engine"},
		},
		{
			name:   "output mix creation fails",
			setup:  func(e *fakeEngine) { e.mixErr = backendErr },
			events: []string{"realize engine", "destroy engine"},
		},
		{
			name:   "output mix realize fails",
			setup:  func(e *fakeEngine) { e.mixRealizeErr = backendErr },
			events: []string{"realize engine", "realize mix", "destroy mix", "destroy engine"},
		},
		{
			name:   "buffer player creation fails",
			setup:  func(e *fakeEngine) { e.playerErr = backendErr },
			events: []string{"realize engine", "realize mix", "destroy mix", "destroy engine"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			tt.setup(engine)

			p, err := New(engine, testConfig(), &echoDecoder{})
			assert.Nil(t, p)
			assert.ErrorIs(t, err, apperr.ErrBackend)
			assert.Equal(t, tt.events, engine.events)
		})
	}
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, testConfig(), &echoDecoder{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = New(newFakeEngine(), testConfig(), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	cfg := testConfig()
	cfg.Jitter.AvgWindow = 0
	_, err = New(newFakeEngine(), cfg, &echoDecoder{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestStartStopPlaying(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	defer p.Close()

	assert.False(t, p.IsPlaying())
	require.NoError(t, p.StartPlaying())
	assert.True(t, p.IsPlaying())
	assert.ErrorIs(t, p.StartPlaying(), apperr.ErrInvalidState)

	require.NoError(t, p.StopPlaying())
	assert.False(t, p.IsPlaying())
}

func TestEnqueuePrimesPlayback(t *testing.T) {
	p, engine, _ := newTestPlayer(t)
	defer p.Close()

	require.NoError(t, p.Enqueue(pkt(1)))
	require.NoError(t, p.Enqueue(pkt(2)))

	assert.Equal(t, [][]byte{{1}}, engine.player.enqueued)
	assert.Equal(t, []byte{2}, engine.player.pull(t))
}

func TestPullScenarioWithLoss(t *testing.T) {
	p, engine, _ := newTestPlayer(t)
	defer p.Close()

	// The first packet primes playback directly; the rest arrive before any pull.
	for _, seq := range []uint32{1, 2, 4, 5} {
		require.NoError(t, p.Enqueue(pkt(seq)))
	}

	var got [][]byte
	got = append(got, engine.player.enqueued...)
	for i := 0; i < 4; i++ {
		got = append(got, engine.player.pull(t))
	}
	assert.Equal(t, [][]byte{{1}, {2}, {2}, {4}, {5}}, got)

	stats, err := p.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Missing)
}

func TestPullReturnsZeroWhenStarved(t *testing.T) {
	p, engine, _ := newTestPlayer(t)
	defer p.Close()

	var buf []byte
	n, err := engine.player.source.Pull(&buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelayControls(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	defer p.Close()

	d, err := p.IncreaseDelay()
	require.NoError(t, err)
	assert.Zero(t, d, "no frame decoded yet")

	require.NoError(t, p.Enqueue(pkt(1)))

	d, err = p.IncreaseDelay()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, jitter.DefaultDelayStep)

	got, err := p.Delay()
	require.NoError(t, err)
	assert.Equal(t, d, got)

	d, err = p.DecreaseDelay()
	require.NoError(t, err)
	assert.Less(t, d, got)

	require.NoError(t, p.FixDelayAt(80*time.Millisecond))
	fixed, err := p.IsDelayFixed()
	require.NoError(t, err)
	assert.True(t, fixed)
	got, err = p.Delay()
	require.NoError(t, err)
	assert.Equal(t, 80*time.Millisecond, got)

	require.NoError(t, p.UnfixDelay())
	fixed, err = p.IsDelayFixed()
	require.NoError(t, err)
	assert.False(t, fixed)
}

func TestPanicPoisonsLock(t *testing.T) {
	engine := newFakeEngine()
	dec := &echoDecoder{panicOn: 2}
	p, err := New(engine, testConfig(), dec)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Enqueue(pkt(1)))
	require.NoError(t, p.Enqueue(pkt(2)))

	var buf []byte
	_, err = engine.player.source.Pull(&buf)
	assert.ErrorIs(t, err, apperr.ErrLockPoisoned)

	_, err = p.Delay()
	assert.ErrorIs(t, err, apperr.ErrLockPoisoned)
	assert.ErrorIs(t, p.Enqueue(pkt(3)), apperr.ErrLockPoisoned)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, engine, dec := newTestPlayer(t)

	require.NoError(t, p.StartPlaying())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, dec.closed)
	assert.False(t, p.IsPlaying())
	assert.ErrorIs(t, p.StartPlaying(), apperr.ErrInvalidState)
	assert.Equal(t, 1, countEvents(engine.events, "destroy engine"))

	var buf []byte
	_, err := engine.player.source.Pull(&buf)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestPlayerWithClockEngine(t *testing.T) {
	engine := sink.NewClockEngine(sink.ClockConfig{Period: time.Hour})
	p, err := New(engine, testConfig(), &echoDecoder{})
	require.NoError(t, err)

	require.NoError(t, p.StartPlaying())
	assert.True(t, p.IsPlaying())
	require.NoError(t, p.Enqueue(pkt(1)))
	require.NoError(t, p.Close())
	assert.False(t, p.IsPlaying())
}

func countEvents(events []string, want string) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}
