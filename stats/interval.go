package stats

import (
	"fmt"
	"time"
)

// IntervalMeasure tracks the spacing between consecutive events.
type IntervalMeasure struct {
	prev    time.Time
	hasPrev bool

	min   time.Duration
	max   time.Duration
	total time.Duration
	count int64
}

// NewIntervalMeasure returns an empty measure.
func NewIntervalMeasure() *IntervalMeasure {
	return &IntervalMeasure{}
}

// Event records an event at now and reports whether the minimum or maximum
// interval changed as a result.
func (m *IntervalMeasure) Event(now time.Time) bool {
	changed := false
	if m.hasPrev {
		d := now.Sub(m.prev)
		if m.count == 0 || d < m.min {
			m.min = d
			changed = true
		}
		if d > m.max {
			m.max = d
			changed = true
		}
		m.total += d
		m.count++
	}

	m.prev = now
	m.hasPrev = true
	return changed
}

// Min returns the shortest observed interval.
func (m *IntervalMeasure) Min() time.Duration { return m.min }

// Max returns the longest observed interval.
func (m *IntervalMeasure) Max() time.Duration { return m.max }

// Average returns the mean interval, zero before two events were seen.
func (m *IntervalMeasure) Average() time.Duration {
	if m.count == 0 {
		return 0
	}
	return m.total / time.Duration(m.count)
}

func (m *IntervalMeasure) String() string {
	return fmt.Sprintf("min: %.3f ms, max: %d ms, avg: %d ms",
		float64(m.min.Microseconds())/1000, m.max.Milliseconds(), m.Average().Milliseconds())
}
