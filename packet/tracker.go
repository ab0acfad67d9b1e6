package packet

import (
	"github.com/sirupsen/logrus"
)

// Tracker observes arriving counters and keeps wire-level loss statistics.
// It never alters packets; the jitter buffer does its own gap handling.
type Tracker struct {
	prev      uint32
	hasPrev   bool
	lost      uint64
	reordered uint64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records seq and returns how many packets were skipped between the
// previous counter and seq.
func (t *Tracker) Observe(seq uint32) uint32 {
	if !t.hasPrev {
		t.prev = seq
		t.hasPrev = true
		return 0
	}

	var gap uint32
	switch {
	case seq <= t.prev:
		t.reordered++
		logrus.WithFields(logrus.Fields{
			"function": "Tracker.Observe",
			"seq":      seq,
			"prev_seq": t.prev,
		}).Warn("Out of order packet")
		return 0
	case seq-t.prev != 1:
		gap = seq - t.prev - 1
		t.lost += uint64(gap)
		logrus.WithFields(logrus.Fields{
			"function":   "Tracker.Observe",
			"seq":        seq,
			"prev_seq":   t.prev,
			"total_lost": t.lost,
		}).Warn("A packet is missing")
	}

	if seq%32 == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Tracker.Observe",
			"seq":      seq,
		}).Debug("Packet counter")
	}

	t.prev = seq
	return gap
}

// Lost returns the number of counters skipped on the wire so far.
func (t *Tracker) Lost() uint64 { return t.lost }

// Reordered returns the number of packets that arrived behind a newer one.
func (t *Tracker) Reordered() uint64 { return t.reordered }
