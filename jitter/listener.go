package jitter

import "time"

// Listener observes buffer events. Methods run synchronously on the caller's
// goroutine, usually with the session lock held, and must not block.
type Listener interface {
	// OnFrameMissing is called when a placeholder reaches the front of the queue.
	OnFrameMissing(seq uint32, totalMissing uint64)
	// OnUnderrun is called when a read finds the queue empty.
	OnUnderrun(totalUnderruns uint64)
	// OnDelayChanged is called whenever the reported delay may have changed.
	OnDelayChanged(delay time.Duration)
}

// NullListener ignores every event.
type NullListener struct{}

func (NullListener) OnFrameMissing(uint32, uint64) {}
func (NullListener) OnUnderrun(uint64)             {}
func (NullListener) OnDelayChanged(time.Duration)  {}

// MultiListener fans events out to several listeners in order.
type MultiListener []Listener

func (m MultiListener) OnFrameMissing(seq uint32, total uint64) {
	for _, l := range m {
		l.OnFrameMissing(seq, total)
	}
}

func (m MultiListener) OnUnderrun(total uint64) {
	for _, l := range m {
		l.OnUnderrun(total)
	}
}

func (m MultiListener) OnDelayChanged(d time.Duration) {
	for _, l := range m {
		l.OnDelayChanged(d)
	}
}
