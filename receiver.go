package streamaudio

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/audio"
	"github.com/opd-ai/streamaudio/config"
	"github.com/opd-ai/streamaudio/jitter"
	"github.com/opd-ai/streamaudio/metrics"
	"github.com/opd-ai/streamaudio/notify"
	"github.com/opd-ai/streamaudio/packet"
	"github.com/opd-ai/streamaudio/player"
	"github.com/opd-ai/streamaudio/sink"
	"github.com/opd-ai/streamaudio/transport"
)

// EngineFactory builds the audio backend for one playback session.
type EngineFactory func(conf *config.Config, settings sink.Settings) (sink.Engine, error)

// Option configures a Receiver.
type Option func(*Receiver)

// WithEngineFactory replaces the backend selected by the sink configuration.
func WithEngineFactory(f EngineFactory) Option {
	return func(r *Receiver) {
		if f != nil {
			r.newEngine = f
		}
	}
}

// WithTimeProvider replaces the clock used for delay measurement.
func WithTimeProvider(tp jitter.TimeProvider) Option {
	return func(r *Receiver) {
		r.clock = tp
	}
}

// Stats is a snapshot of the active session.
type Stats struct {
	Buffer    jitter.Stats
	Transport transport.Stats
}

// Receiver is the session handle. It owns the delay notifier for its whole
// life and one player plus receive loop per Play.
type Receiver struct {
	id        string
	conf      *config.Config
	notifier  *notify.Notifier
	newEngine EngineFactory
	clock     jitter.TimeProvider

	mu     sync.Mutex
	closed bool
	player *player.Player
	client *transport.Client
}

// New creates an idle receiver. cb receives delay notifications and may be
// nil. A nil conf uses config.Default.
func New(conf *config.Config, cb notify.Callback, opts ...Option) (*Receiver, error) {
	if conf == nil {
		conf = config.Default()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if cb == nil {
		cb = notify.CallbackFunc(func(int64) {})
	}

	r := &Receiver{
		id:        uuid.NewString(),
		conf:      conf,
		newEngine: DefaultEngine,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.notifier = notify.New(cb, conf.NotifyInterval)

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"session_id": r.id,
		"codec":      conf.Codec,
		"framing":    conf.Framing,
	}).Info("Receiver created")
	return r, nil
}

// DefaultEngine builds the software clock backend described by conf.Sink.
// The null backend discards the PCM it pulls.
func DefaultEngine(conf *config.Config, settings sink.Settings) (sink.Engine, error) {
	var writer sink.PCMWriter = sink.DiscardWriter{}
	if conf.Sink.Backend == config.BackendClock && conf.Sink.WAVPath != "" {
		w, err := sink.NewWAVWriter(conf.Sink.WAVPath, settings)
		if err != nil {
			return nil, err
		}
		writer = w
	}
	return sink.NewClockEngine(sink.ClockConfig{Period: conf.Sink.Period, Writer: writer}), nil
}

// ID returns the session identifier used in logs and metrics.
func (r *Receiver) ID() string {
	if r == nil {
		return ""
	}
	return r.id
}

func (r *Receiver) lock(op string) error {
	if r == nil {
		return errors.Join(apperr.ErrNullHandle, errors.New(op+": receiver is nil"))
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.Join(apperr.ErrNullHandle, errors.New(op+": receiver is closed"))
	}
	return nil
}

// Play starts receiving from remote, or from the configured remote_addr when
// remote is empty. It fails with ErrInvalidState while a stream is already
// playing.
func (r *Receiver) Play(remote string) error {
	if err := r.lock("play"); err != nil {
		return err
	}
	defer r.mu.Unlock()

	if remote == "" {
		remote = r.conf.RemoteAddr
	}
	if remote == "" {
		return apperr.Invalid("no remote address")
	}
	remoteAddr, err := transport.ResolveAddr(remote)
	if err != nil {
		return err
	}
	if r.client != nil {
		return apperr.State("already playing from %s", r.client.RemoteAddr())
	}

	p, err := r.newPlayer()
	if err != nil {
		return err
	}

	client, err := transport.NewClient(transport.ClientConfig{
		LocalAddr:  r.conf.LocalAddr,
		RemoteAddr: remoteAddr.String(),
		Framer:     r.newFramer(),
		Observer:   metrics.Listener{},
	}, p)
	if err != nil {
		p.Close()
		return err
	}

	r.player = p
	r.client = client

	logrus.WithFields(logrus.Fields{
		"function":    "Receiver.Play",
		"session_id":  r.id,
		"remote_addr": remoteAddr.String(),
		"local_addr":  client.LocalAddr().String(),
	}).Info("Playback session started")
	return nil
}

func (r *Receiver) newPlayer() (*player.Player, error) {
	dec, err := audio.NewDecoder(r.conf.Codec, r.conf.Input)
	if err != nil {
		return nil, err
	}
	stage, err := audio.NewStage(dec, r.conf.Output)
	if err != nil {
		dec.Close()
		return nil, err
	}

	settings := sink.Settings{SampleRate: r.conf.Output.SampleRate, Channels: r.conf.Output.Channels}
	engine, err := r.newEngine(r.conf, settings)
	if err != nil {
		stage.Close()
		return nil, err
	}

	opts := []player.Option{
		player.WithListener(jitter.MultiListener{r.notifier, metrics.Listener{}}),
	}
	if r.clock != nil {
		opts = append(opts, player.WithTimeProvider(r.clock))
	}

	p, err := player.New(engine, player.Config{Jitter: r.conf.Jitter, Settings: settings}, stage, opts...)
	if err != nil {
		if derr := engine.Destroy(); derr != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Receiver.Play",
				"session_id": r.id,
				"error":      derr.Error(),
			}).Warn("Failed to destroy audio engine")
		}
		stage.Close()
		return nil, err
	}
	return p, nil
}

func (r *Receiver) newFramer() packet.Framer {
	if r.conf.Framing == config.FramingRTP {
		return packet.NewRTPFramer()
	}
	return packet.CounterFramer{}
}

// Stop ends the current session: the receive loop is joined, "stop" is sent
// to the remote and the player is torn down. Stopping an idle receiver is a
// no-op.
func (r *Receiver) Stop() error {
	if err := r.lock("stop"); err != nil {
		return err
	}
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Receiver) stopLocked() error {
	var err error
	if r.client != nil {
		err = r.client.Stop()
		stats := r.client.Stats()
		logrus.WithFields(logrus.Fields{
			"function":     "Receiver.Stop",
			"session_id":   r.id,
			"datagrams":    stats.Datagrams,
			"wire_lost":    stats.WireLost,
			"parse_errors": stats.ParseErrors,
		}).Info("Playback session stopped")
		r.client = nil
	}
	if r.player != nil {
		r.player.Close()
		r.player = nil
	}
	return err
}

// IsPlaying reports whether a session is active.
func (r *Receiver) IsPlaying() (bool, error) {
	if err := r.lock("is playing"); err != nil {
		return false, err
	}
	defer r.mu.Unlock()
	return r.client != nil, nil
}

func (r *Receiver) withPlayer(op string, fn func(p *player.Player) error) error {
	if err := r.lock(op); err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.player == nil {
		return apperr.State("%s: player is not created", op)
	}
	return fn(r.player)
}

// DelayMs returns the current playout delay in milliseconds.
func (r *Receiver) DelayMs() (int64, error) {
	return r.delayOp("delay", (*player.Player).Delay)
}

// IncreaseDelayMs adds one delay step and returns the new delay.
func (r *Receiver) IncreaseDelayMs() (int64, error) {
	return r.delayOp("increase delay", (*player.Player).IncreaseDelay)
}

// DecreaseDelayMs removes one delay step and returns the new delay.
func (r *Receiver) DecreaseDelayMs() (int64, error) {
	return r.delayOp("decrease delay", (*player.Player).DecreaseDelay)
}

func (r *Receiver) delayOp(op string, fn func(*player.Player) (time.Duration, error)) (int64, error) {
	var ms int64
	err := r.withPlayer(op, func(p *player.Player) error {
		d, err := fn(p)
		if err != nil {
			return err
		}
		ms = d.Milliseconds()
		return nil
	})
	return ms, err
}

// FixDelayMs pins the reported delay and sizes the buffer to match.
func (r *Receiver) FixDelayMs(ms int64) error {
	return r.withPlayer("fix delay", func(p *player.Player) error {
		return p.FixDelayAt(time.Duration(ms) * time.Millisecond)
	})
}

// UnfixDelay returns to measured delay reporting.
func (r *Receiver) UnfixDelay() error {
	return r.withPlayer("unfix delay", (*player.Player).UnfixDelay)
}

// Stats returns counters of the active session.
func (r *Receiver) Stats() (Stats, error) {
	var s Stats
	err := r.withPlayer("stats", func(p *player.Player) error {
		buf, err := p.Stats()
		if err != nil {
			return err
		}
		s.Buffer = buf
		s.Transport = r.client.Stats()
		return nil
	})
	return s, err
}

// Close stops any session and terminates the notifier. Later calls on the
// receiver fail with ErrNullHandle; Close itself is idempotent.
func (r *Receiver) Close() error {
	if r == nil {
		return errors.Join(apperr.ErrNullHandle, errors.New("close: receiver is nil"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.stopLocked(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Receiver.Close",
			"session_id": r.id,
			"error":      err.Error(),
		}).Warn("Failed to stop session")
	}
	r.notifier.Close()

	logrus.WithFields(logrus.Fields{
		"function":   "Receiver.Close",
		"session_id": r.id,
	}).Info("Receiver closed")
	return nil
}

// Signal maps err to the signal raised at the binding boundary.
func Signal(err error) (apperr.Signal, string) {
	return apperr.Classify(err)
}
