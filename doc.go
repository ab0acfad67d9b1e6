// Package streamaudio receives a live audio stream over UDP and plays it
// through a pull-driven audio sink.
//
// A sender publishes sequence-numbered compressed frames. The receiver asks
// for the stream with an "info" datagram, acknowledges the first reply with
// "start", and feeds every following datagram into a jitter buffer. The
// audio backend pulls decoded PCM from that buffer at its own pace; gaps are
// concealed by repeating the last good frame and underruns pause playback
// until the buffer has refilled.
//
// # Getting Started
//
//	conf := config.Default()
//	rx, err := streamaudio.New(conf, notify.CallbackFunc(func(ms int64) {
//	    fmt.Println("delay", ms, "ms")
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rx.Close()
//
//	if err := rx.Play("192.168.1.20:25204"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Latency control
//
// [Receiver.IncreaseDelayMs] and [Receiver.DecreaseDelayMs] move the
// playout point by one delay step (50 ms by default) and return the new
// delay. Delay changes are also pushed to the callback, at most once per
// notify interval.
//
// # Packages
//
//   - stats: rolling average and arrival interval measurement
//   - packet: wire framing (counter or RTP) and loss tracking
//   - jitter: the reordering buffer and delay controller
//   - audio: decoders, resampler and the decode stage
//   - sink: backend interfaces and a software clock-driven backend
//   - player: the playback session tying buffer and backend together
//   - transport: the UDP receive loop and handshake
//   - notify: rate-limited delay notifications
//   - config, metrics, apperr: configuration, Prometheus collectors, error kinds
package streamaudio
