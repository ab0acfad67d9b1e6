package jitter

import (
	"time"

	"github.com/opd-ai/streamaudio/apperr"
)

const (
	// DefaultJitterBufferLen is the number of arrivals to wait for after an underrun.
	DefaultJitterBufferLen = 3

	// DefaultAvgWindow is the number of samples in the queueing delay average.
	DefaultAvgWindow = 25

	// DefaultDelayStep is the latency change applied by one increase or decrease.
	DefaultDelayStep = 50 * time.Millisecond
)

// Config holds the tunables of a Buffer.
type Config struct {
	JitterBufferLen int           `yaml:"buffer_len"`
	AvgWindow       int           `yaml:"avg_window"`
	DelayStep       time.Duration `yaml:"delay_step"`
}

// DefaultConfig returns the stock buffer settings.
func DefaultConfig() Config {
	return Config{
		JitterBufferLen: DefaultJitterBufferLen,
		AvgWindow:       DefaultAvgWindow,
		DelayStep:       DefaultDelayStep,
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if c.JitterBufferLen <= 0 {
		return apperr.Invalid("jitter buffer length must be positive, got %d", c.JitterBufferLen)
	}
	if c.AvgWindow <= 0 {
		return apperr.Invalid("average window must be positive, got %d", c.AvgWindow)
	}
	if c.DelayStep <= 0 {
		return apperr.Invalid("delay step must be positive, got %v", c.DelayStep)
	}
	return nil
}
