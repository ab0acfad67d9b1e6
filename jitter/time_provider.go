package jitter

import "time"

// TimeProvider supplies the receipt and playout timestamps used for the
// queueing delay metric. Tests inject a controllable clock.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}
