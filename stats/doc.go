// Package stats provides the small numeric helpers used to observe the
// playback pipeline: a fixed-capacity rolling average over durations and an
// inter-arrival interval tracker.
//
// Neither type is safe for concurrent use; callers serialize access the same
// way they serialize access to the structure that owns them.
package stats
