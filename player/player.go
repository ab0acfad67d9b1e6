package player

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/jitter"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/sink"
)

// Config configures a Player.
type Config struct {
	Jitter   jitter.Config
	Settings sink.Settings
}

// Option configures a Player.
type Option func(*options)

type options struct {
	bufferOpts []jitter.Option
}

// WithListener forwards jitter buffer events to l.
func WithListener(l jitter.Listener) Option {
	return func(o *options) {
		o.bufferOpts = append(o.bufferOpts, jitter.WithListener(l))
	}
}

// WithTimeProvider replaces the clock used for delay measurement.
func WithTimeProvider(tp jitter.TimeProvider) Option {
	return func(o *options) {
		o.bufferOpts = append(o.bufferOpts, jitter.WithTimeProvider(tp))
	}
}

// Player is a playback session.
type Player struct {
	engine  sink.Engine
	mix     sink.OutputMix
	output  sink.BufferPlayer
	decoder jitter.Decoder

	mu       sync.Mutex
	buffer   *jitter.Buffer
	scratch  []byte
	poisoned atomic.Bool

	closeOnce sync.Once
	closed    atomic.Bool
}

// New realizes the backend objects in order, creates the jitter buffer, and
// registers the pull callback. On failure every object created so far is
// destroyed and nothing is left running.
func New(engine sink.Engine, cfg Config, dec jitter.Decoder, opts ...Option) (*Player, error) {
	if engine == nil {
		return nil, apperr.Invalid("audio engine cannot be nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	buffer, err := jitter.NewBuffer(cfg.Jitter, dec, o.bufferOpts...)
	if err != nil {
		return nil, err
	}

	p := &Player{engine: engine, decoder: dec, buffer: buffer}
	var cleanup []sink.Object
	fail := func(op string, err error) (*Player, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if derr := cleanup[i].Destroy(); derr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "player.New",
					"error":    derr.Error(),
				}).Warn("Failed to destroy audio object during rollback")
			}
		}
		buffer.Close()
		logrus.WithFields(logrus.Fields{
			"function": "player.New",
			"step":     op,
			"error":    err.Error(),
		}).Error("Failed to create player")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := engine.Realize(); err != nil {
		return fail("realize engine", err)
	}
	cleanup = append(cleanup, engine)

	p.mix, err = engine.CreateOutputMix()
	if err != nil {
		return fail("create output mix", err)
	}
	cleanup = append(cleanup, p.mix)
	if err := p.mix.Realize(); err != nil {
		return fail("realize output mix", err)
	}

	p.output, err = engine.CreateBufferPlayer(p.mix, cfg.Settings)
	if err != nil {
		return fail("create buffer player", err)
	}
	cleanup = append(cleanup, p.output)
	if err := p.output.Realize(); err != nil {
		return fail("realize buffer player", err)
	}

	if err := p.output.RegisterCallback(bufferSource{p: p}); err != nil {
		return fail("register callback", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "player.New",
		"sample_rate": cfg.Settings.SampleRate,
		"channels":    cfg.Settings.Channels,
	}).Info("Player created")

	return p, nil
}

// withLock runs fn on the buffer under the session lock. A panic in fn
// poisons the lock.
func (p *Player) withLock(op string, fn func(b *jitter.Buffer) error) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned.Load() {
		return fmt.Errorf("%s: %w", op, apperr.ErrLockPoisoned)
	}

	defer func() {
		if r := recover(); r != nil {
			p.poisoned.Store(true)
			logrus.WithFields(logrus.Fields{
				"function": "Player.withLock",
				"op":       op,
				"panic":    fmt.Sprint(r),
			}).Error("Panic while holding player lock")
			err = fmt.Errorf("%s: %w: %v", op, apperr.ErrLockPoisoned, r)
		}
	}()

	return fn(p.buffer)
}

// StartPlaying starts pulling frames from the buffer.
func (p *Player) StartPlaying() error {
	if p.closed.Load() {
		return apperr.State("player is closed")
	}
	if p.IsPlaying() {
		return apperr.State("player is already playing")
	}
	if err := p.output.SetPlayState(sink.PlayStatePlaying); err != nil {
		return fmt.Errorf("start playing: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Player.StartPlaying",
	}).Info("Playback started")
	return nil
}

// StopPlaying stops the pull callback. Queued frames are kept.
func (p *Player) StopPlaying() error {
	if p.closed.Load() {
		return apperr.State("player is closed")
	}
	if err := p.output.SetPlayState(sink.PlayStateStopped); err != nil {
		return fmt.Errorf("stop playing: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Player.StopPlaying",
	}).Info("Playback stopped")
	return nil
}

// IsPlaying reports whether the backend is pulling frames.
func (p *Player) IsPlaying() bool {
	if p.closed.Load() {
		return false
	}
	state, err := p.output.PlayState()
	return err == nil && state == sink.PlayStatePlaying
}

// Enqueue writes pkt into the jitter buffer. The first packet of a stream is
// read back at once and pushed to the backend so playback starts without
// waiting for a pull.
func (p *Player) Enqueue(pkt packet.Packet) error {
	var primed []byte
	err := p.withLock("enqueue", func(b *jitter.Buffer) error {
		if b.Write(pkt) != jitter.ActionRead {
			return nil
		}
		ok, err := b.Read(&p.scratch)
		if err != nil {
			return err
		}
		if ok {
			primed = append([]byte(nil), p.scratch...)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(primed) > 0 {
		if err := p.output.Enqueue(primed); err != nil {
			return fmt.Errorf("enqueue primed frame: %w", err)
		}
	}
	return nil
}

// Delay returns the reported queueing delay.
func (p *Player) Delay() (time.Duration, error) {
	var d time.Duration
	err := p.withLock("delay", func(b *jitter.Buffer) error {
		d = b.Delay()
		return nil
	})
	return d, err
}

// IncreaseDelay adds one delay step and returns the new delay.
func (p *Player) IncreaseDelay() (time.Duration, error) {
	var d time.Duration
	err := p.withLock("increase delay", func(b *jitter.Buffer) error {
		d = b.IncreaseDelay()
		return nil
	})
	return d, err
}

// DecreaseDelay skips one delay step of queued audio and returns the new delay.
func (p *Player) DecreaseDelay() (time.Duration, error) {
	var d time.Duration
	err := p.withLock("decrease delay", func(b *jitter.Buffer) error {
		d = b.DecreaseDelay()
		return nil
	})
	return d, err
}

// IsDelayFixed reports whether the delay is pinned.
func (p *Player) IsDelayFixed() (bool, error) {
	var fixed bool
	err := p.withLock("is delay fixed", func(b *jitter.Buffer) error {
		fixed = b.IsDelayFixed()
		return nil
	})
	return fixed, err
}

// FixDelayAt pins the delay at d.
func (p *Player) FixDelayAt(d time.Duration) error {
	return p.withLock("fix delay", func(b *jitter.Buffer) error {
		return b.FixDelayAt(d)
	})
}

// UnfixDelay releases a pinned delay.
func (p *Player) UnfixDelay() error {
	return p.withLock("unfix delay", func(b *jitter.Buffer) error {
		b.UnfixDelay()
		return nil
	})
}

// Stats returns the jitter buffer counters.
func (p *Player) Stats() (jitter.Stats, error) {
	var s jitter.Stats
	err := p.withLock("stats", func(b *jitter.Buffer) error {
		s = b.Stats()
		return nil
	})
	return s, err
}

// Close stops playback and destroys the backend objects in reverse order.
// Failures are logged; Close always completes.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		if err := p.output.SetPlayState(sink.PlayStateStopped); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Player.Close",
				"error":    err.Error(),
			}).Warn("Failed to stop playback")
		}
		p.closed.Store(true)

		for _, obj := range []struct {
			name string
			obj  sink.Object
		}{
			{"buffer player", p.output},
			{"output mix", p.mix},
			{"engine", p.engine},
		} {
			if err := obj.obj.Destroy(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Player.Close",
					"object":   obj.name,
					"error":    err.Error(),
				}).Warn("Failed to destroy audio object")
			}
		}

		p.mu.Lock()
		p.buffer.Close()
		p.mu.Unlock()

		if c, ok := p.decoder.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Player.Close",
					"error":    err.Error(),
				}).Warn("Failed to close decoder")
			}
		}

		logrus.WithFields(logrus.Fields{
			"function": "Player.Close",
		}).Info("Player closed")
	})
	return nil
}

// bufferSource is the pull callback registered with the backend.
type bufferSource struct {
	p *Player
}

// Pull implements sink.FrameSource.
func (s bufferSource) Pull(buf *[]byte) (int, error) {
	n := 0
	err := s.p.withLock("pull", func(b *jitter.Buffer) error {
		ok, err := b.Read(buf)
		if err != nil {
			return err
		}
		if ok {
			n = len(*buf)
		}
		return nil
	})
	return n, err
}
