package jitter

import (
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// Delay returns the reported queueing delay: the pinned value when the delay
// is fixed, otherwise the rolling average.
func (b *Buffer) Delay() time.Duration {
	if b.fixed {
		return b.fixedDelay
	}
	return b.avg.Average()
}

// AvgDelay is the rolling-average queueing delay as reported by Delay.
func (b *Buffer) AvgDelay() time.Duration {
	return b.Delay()
}

// step returns how many frames make up one DelayStep and their duration.
func (b *Buffer) step() (int, time.Duration, bool) {
	fd := b.decoder.FrameDuration()
	if fd <= 0 {
		return 0, 0, false
	}
	n := framesFor(b.cfg.DelayStep, fd)
	return n, time.Duration(n) * fd, true
}

func framesFor(d, frameDuration time.Duration) int {
	return int((d + frameDuration - 1) / frameDuration)
}

// IncreaseDelay adds one DelayStep of hold time and returns the new delay.
// Nothing changes until a frame has been decoded.
func (b *Buffer) IncreaseDelay() time.Duration {
	n, step, ok := b.step()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.IncreaseDelay",
		}).Debug("Frame duration unknown, ignoring")
		return b.Delay()
	}

	b.hold += n
	if b.fixed {
		b.fixedDelay += step
	} else {
		b.avg.SetTo(b.avg.Average() + step)
	}

	d := b.Delay()
	logrus.WithFields(logrus.Fields{
		"function": "Buffer.IncreaseDelay",
		"frames":   n,
		"hold":     b.hold,
		"delay":    d,
	}).Info("Increased delay")
	b.listener.OnDelayChanged(d)
	return d
}

// DecreaseDelay drops up to one DelayStep worth of frames from the front of
// the queue and returns the new delay, never below zero.
func (b *Buffer) DecreaseDelay() time.Duration {
	n, step, ok := b.step()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.DecreaseDelay",
		}).Debug("Frame duration unknown, ignoring")
		return b.Delay()
	}

	drop := lo.Min([]int{n, b.queue.Len()})
	b.dropFront(drop)

	if b.fixed {
		b.fixedDelay = lo.Max([]time.Duration{0, b.fixedDelay - step})
	} else {
		b.avg.SetTo(lo.Max([]time.Duration{0, b.avg.Average() - step}))
	}

	d := b.Delay()
	logrus.WithFields(logrus.Fields{
		"function": "Buffer.DecreaseDelay",
		"frames":   n,
		"dropped":  drop,
		"delay":    d,
	}).Info("Decreased delay")
	b.listener.OnDelayChanged(d)
	return d
}

func (b *Buffer) dropFront(n int) {
	for i := 0; i < n; i++ {
		f, ok := b.popFront()
		if !ok {
			return
		}
		b.pool.put(f)
		b.dropped++
	}
}

// IsDelayFixed reports whether the delay is pinned.
func (b *Buffer) IsDelayFixed() bool {
	return b.fixed
}

// FixDelayAt pins the reported delay at d. The queue is trimmed so it never
// holds much more than d worth of frames.
func (b *Buffer) FixDelayAt(d time.Duration) error {
	if d < 0 {
		return apperr.Invalid("fixed delay cannot be negative, got %v", d)
	}

	b.fixed = true
	b.fixedDelay = d
	b.trimToPin()

	logrus.WithFields(logrus.Fields{
		"function": "Buffer.FixDelayAt",
		"delay":    d,
	}).Info("Delay fixed")
	b.listener.OnDelayChanged(d)
	return nil
}

// UnfixDelay returns to the measured rolling average.
func (b *Buffer) UnfixDelay() {
	if !b.fixed {
		return
	}
	b.fixed = false
	logrus.WithFields(logrus.Fields{
		"function": "Buffer.UnfixDelay",
	}).Info("Delay unfixed")
	b.listener.OnDelayChanged(b.Delay())
}

func (b *Buffer) holdThreshold() int {
	if !b.fixed {
		return b.cfg.JitterBufferLen
	}
	fd := b.decoder.FrameDuration()
	if fd <= 0 {
		return b.cfg.JitterBufferLen
	}
	return lo.Max([]int{1, framesFor(b.fixedDelay, fd)})
}

func (b *Buffer) trimToPin() {
	if !b.fixed {
		return
	}
	fd := b.decoder.FrameDuration()
	if fd <= 0 {
		return
	}
	limit := framesFor(b.fixedDelay, fd) + 1
	if excess := b.queue.Len() - limit; excess > 0 {
		b.dropFront(excess)
	}
}
