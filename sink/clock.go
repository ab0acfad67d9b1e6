package sink

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultPeriod is the pull interval of a ClockEngine buffer player.
const DefaultPeriod = 20 * time.Millisecond

// ClockConfig configures a ClockEngine.
type ClockConfig struct {
	// Period between pull callbacks.
	Period time.Duration
	// Writer receives the played PCM. Defaults to DiscardWriter.
	Writer PCMWriter
}

type objectState int

const (
	stateCreated objectState = iota
	stateRealized
	stateDestroyed
)

// lifecycle tracks the two-phase state of one backend object.
type lifecycle struct {
	mu    sync.Mutex
	name  string
	state objectState
}

func (l *lifecycle) realize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateCreated {
		return &BackendError{Op: l.name + ".Realize", Code: ResultPreconditionsViolated}
	}
	l.state = stateRealized
	return nil
}

func (l *lifecycle) requireRealized(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateRealized {
		return &BackendError{Op: l.name + "." + op, Code: ResultPreconditionsViolated, Err: ErrNotRealized}
	}
	return nil
}

// markDestroyed reports whether this call performed the transition.
func (l *lifecycle) markDestroyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateDestroyed {
		return false
	}
	l.state = stateDestroyed
	return true
}

// ClockEngine is a software audio backend driven by a ticker.
type ClockEngine struct {
	lifecycle
	cfg ClockConfig

	writerOwned atomic.Bool
}

// NewClockEngine creates an unrealized engine.
func NewClockEngine(cfg ClockConfig) *ClockEngine {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Writer == nil {
		cfg.Writer = DiscardWriter{}
	}
	return &ClockEngine{lifecycle: lifecycle{name: "Engine"}, cfg: cfg}
}

// Realize implements Object.
func (e *ClockEngine) Realize() error {
	return e.realize()
}

// Destroy implements Object. The writer is closed here when no buffer
// player took ownership of it.
func (e *ClockEngine) Destroy() error {
	if !e.markDestroyed() || e.writerOwned.Load() {
		return nil
	}
	if err := e.cfg.Writer.Close(); err != nil {
		return &BackendError{Op: "Engine.Destroy", Code: ResultIOError, Err: err}
	}
	return nil
}

// CreateOutputMix implements Engine.
func (e *ClockEngine) CreateOutputMix() (OutputMix, error) {
	if err := e.requireRealized("CreateOutputMix"); err != nil {
		return nil, err
	}
	return &clockOutputMix{lifecycle: lifecycle{name: "OutputMix"}}, nil
}

// CreateBufferPlayer implements Engine.
func (e *ClockEngine) CreateBufferPlayer(mix OutputMix, settings Settings) (BufferPlayer, error) {
	if err := e.requireRealized("CreateBufferPlayer"); err != nil {
		return nil, err
	}
	m, ok := mix.(*clockOutputMix)
	if !ok || m == nil {
		return nil, &BackendError{Op: "Engine.CreateBufferPlayer", Code: ResultParameterInvalid}
	}
	if err := m.requireRealized("CreateBufferPlayer"); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, &BackendError{Op: "Engine.CreateBufferPlayer", Code: ResultParameterInvalid, Err: err}
	}

	e.writerOwned.Store(true)
	return &clockPlayer{
		lifecycle: lifecycle{name: "BufferPlayer"},
		settings:  settings,
		period:    e.cfg.Period,
		writer:    e.cfg.Writer,
		state:     PlayStateStopped,
	}, nil
}

type clockOutputMix struct {
	lifecycle
}

func (m *clockOutputMix) Realize() error { return m.realize() }

func (m *clockOutputMix) Destroy() error {
	m.markDestroyed()
	return nil
}

type clockPlayer struct {
	lifecycle

	settings Settings
	period   time.Duration

	writeMu sync.Mutex
	writer  PCMWriter

	ctlMu  sync.Mutex
	source FrameSource
	state  PlayState
	stop   chan struct{}
	done   chan struct{}

	pulls  atomic.Uint64
	starve atomic.Uint64
}

func (p *clockPlayer) Realize() error { return p.realize() }

func (p *clockPlayer) RegisterCallback(src FrameSource) error {
	if err := p.requireRealized("RegisterCallback"); err != nil {
		return err
	}
	if src == nil {
		return &BackendError{Op: "BufferPlayer.RegisterCallback", Code: ResultParameterInvalid}
	}

	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()
	p.source = src
	return nil
}

func (p *clockPlayer) SetPlayState(state PlayState) error {
	if err := p.requireRealized("SetPlayState"); err != nil {
		return err
	}

	switch state {
	case PlayStatePlaying:
		p.start()
	case PlayStatePaused, PlayStateStopped:
		p.halt(state)
	default:
		return &BackendError{Op: "BufferPlayer.SetPlayState", Code: ResultParameterInvalid}
	}
	return nil
}

func (p *clockPlayer) PlayState() (PlayState, error) {
	if err := p.requireRealized("PlayState"); err != nil {
		return 0, err
	}
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()
	return p.state, nil
}

func (p *clockPlayer) Enqueue(pcm []byte) error {
	if err := p.requireRealized("Enqueue"); err != nil {
		return err
	}
	return p.write(pcm)
}

func (p *clockPlayer) Destroy() error {
	if !p.markDestroyed() {
		return nil
	}
	p.halt(PlayStateStopped)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.writer.Close(); err != nil {
		return &BackendError{Op: "BufferPlayer.Destroy", Code: ResultIOError, Err: err}
	}
	return nil
}

func (p *clockPlayer) start() {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()

	if p.state == PlayStatePlaying {
		return
	}
	p.state = PlayStatePlaying
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)

	logrus.WithFields(logrus.Fields{
		"function": "BufferPlayer.SetPlayState",
		"period":   p.period,
	}).Debug("Clock started")
}

func (p *clockPlayer) halt(state PlayState) {
	p.ctlMu.Lock()
	stop, done := p.stop, p.done
	wasPlaying := p.state == PlayStatePlaying
	p.state = state
	p.stop, p.done = nil, nil
	p.ctlMu.Unlock()

	if wasPlaying {
		close(stop)
		<-done
	}
}

func (p *clockPlayer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	frames := int(p.period * time.Duration(p.settings.SampleRate) / time.Second)
	silence := make([]byte, frames*p.settings.Channels*2)
	var buf []byte

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.ctlMu.Lock()
		src := p.source
		p.ctlMu.Unlock()

		n := 0
		if src != nil {
			var err error
			n, err = src.Pull(&buf)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "BufferPlayer.run",
					"error":    err.Error(),
				}).Warn("Frame source failed")
				n = 0
			}
		}
		p.pulls.Inc()

		out := silence
		if n > 0 {
			out = buf[:n]
		} else {
			p.starve.Inc()
		}
		if err := p.write(out); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "BufferPlayer.run",
				"error":    err.Error(),
			}).Warn("Failed to write PCM")
		}
	}
}

func (p *clockPlayer) write(pcm []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.writer.Write(pcm); err != nil {
		return &BackendError{Op: "BufferPlayer.Enqueue", Code: ResultIOError, Err: err}
	}
	return nil
}
