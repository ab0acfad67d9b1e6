// Package sink describes the audio output backend the player drives and
// provides a software implementation of it.
//
// Backend objects follow a two-phase lifecycle: they are created unrealized,
// activated with Realize, and torn down with Destroy in reverse creation
// order. The engine creates an output mix, and the output mix hosts a buffer
// player. The buffer player pulls PCM from a registered FrameSource whenever
// it needs more data and also accepts buffers pushed with Enqueue.
//
// ClockEngine stands in for a hardware device. While playing, its buffer
// player calls the frame source once per period on its own goroutine and
// writes whatever it gets to a PCMWriter (a WAV file or nowhere).
package sink
