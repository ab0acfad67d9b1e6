// Package metrics exports receiver counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/opd-ai/streamaudio/jitter"
)

const namespace = "streamaudio"

var (
	initialized atomic.Bool

	datagrams     prometheus.Counter
	datagramBytes prometheus.Counter
	parseErrors   prometheus.Counter
	wireLost      prometheus.Counter
	missingFrames prometheus.Counter
	underruns     prometheus.Counter

	avgDelay    prometheus.Gauge
	queueLength prometheus.Gauge
	holdFrames  prometheus.Gauge
)

// Init registers the collectors with the default registry. Later calls are
// no-ops.
func Init(streamID string) {
	if initialized.Swap(true) {
		return
	}
	register(prometheus.DefaultRegisterer, prometheus.Labels{"stream_id": streamID})
}

func register(reg prometheus.Registerer, labels prometheus.Labels) {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	datagrams = counter("net", "datagrams_total", "Datagrams received.")
	datagramBytes = counter("net", "bytes_total", "Datagram bytes received.")
	parseErrors = counter("net", "parse_errors_total", "Datagrams that could not be parsed.")
	wireLost = counter("net", "lost_packets_total", "Sequence numbers skipped on the wire.")
	missingFrames = counter("buffer", "missing_frames_total", "Placeholder frames played.")
	underruns = counter("buffer", "underruns_total", "Reads that found the jitter buffer empty.")
	avgDelay = gauge("buffer", "avg_delay_ms", "Reported queueing delay in milliseconds.")
	queueLength = gauge("buffer", "queue_length", "Frames waiting in the jitter buffer.")
	holdFrames = gauge("buffer", "hold_frames", "Arrivals still awaited before playback resumes.")

	reg.MustRegister(
		datagrams, datagramBytes, parseErrors, wireLost,
		missingFrames, underruns,
		avgDelay, queueLength, holdFrames,
	)
}

// Listener feeds buffer and transport events into the collectors. It is a
// no-op until Init has been called.
type Listener struct{}

var _ jitter.Listener = Listener{}

// OnFrameMissing implements jitter.Listener.
func (Listener) OnFrameMissing(uint32, uint64) {
	if initialized.Load() {
		missingFrames.Inc()
	}
}

// OnUnderrun implements jitter.Listener.
func (Listener) OnUnderrun(uint64) {
	if initialized.Load() {
		underruns.Inc()
	}
}

// OnDelayChanged implements jitter.Listener.
func (Listener) OnDelayChanged(d time.Duration) {
	if initialized.Load() {
		avgDelay.Set(float64(d) / float64(time.Millisecond))
	}
}

// OnDatagram counts one received datagram.
func (Listener) OnDatagram(size int) {
	if initialized.Load() {
		datagrams.Inc()
		datagramBytes.Add(float64(size))
	}
}

// OnParseError counts one malformed datagram.
func (Listener) OnParseError() {
	if initialized.Load() {
		parseErrors.Inc()
	}
}

// OnWireLost counts sequence numbers skipped on the wire.
func (Listener) OnWireLost(n uint32) {
	if initialized.Load() {
		wireLost.Add(float64(n))
	}
}

// ObserveBuffer records a jitter buffer snapshot.
func ObserveBuffer(s jitter.Stats) {
	if !initialized.Load() {
		return
	}
	queueLength.Set(float64(s.Len))
	holdFrames.Set(float64(s.Hold))
	avgDelay.Set(float64(s.AvgDelay) / float64(time.Millisecond))
}
