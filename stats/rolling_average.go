package stats

import (
	"time"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamaudio/apperr"
)

// RollingAverage is a moving average over the most recent window of samples.
type RollingAverage struct {
	capacity int
	window   deque.Deque[time.Duration]
	sum      time.Duration

	override    time.Duration
	hasOverride bool
}

// NewRollingAverage creates an average over the last capacity samples.
func NewRollingAverage(capacity int) (*RollingAverage, error) {
	if capacity <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NewRollingAverage",
			"capacity": capacity,
		}).Error("Window size must be greater than 0")
		return nil, apperr.Invalid("window size must be greater than 0, got %d", capacity)
	}

	return &RollingAverage{capacity: capacity}, nil
}

// Push adds a sample, evicting the oldest one once the window is full.
// Any value installed with SetTo is discarded.
func (r *RollingAverage) Push(v time.Duration) {
	if r.window.Len() >= r.capacity {
		r.sum -= r.window.PopFront()
	}

	r.window.PushBack(v)
	r.sum += v
	r.hasOverride = false
}

// Average returns the mean of the samples in the window, zero when empty.
func (r *RollingAverage) Average() time.Duration {
	if r.hasOverride {
		return r.override
	}
	if r.window.Len() == 0 {
		return 0
	}
	return r.sum / time.Duration(r.window.Len())
}

// SetTo forces the reported average to v until the next Push. The samples
// in the window are left as they are.
func (r *RollingAverage) SetTo(v time.Duration) {
	r.override = v
	r.hasOverride = true
}

// Len returns the number of samples currently in the window.
func (r *RollingAverage) Len() int {
	return r.window.Len()
}

// Capacity returns the window size.
func (r *RollingAverage) Capacity() int {
	return r.capacity
}

// Reset empties the window.
func (r *RollingAverage) Reset() {
	r.window.Clear()
	r.sum = 0
	r.hasOverride = false
}
