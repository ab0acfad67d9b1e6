// Package notify delivers delay updates to the host application on a
// dedicated goroutine, at most once per interval.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/sirupsen/logrus"
)

// DefaultMinInterval is the shortest gap between two deliveries.
const DefaultMinInterval = 500 * time.Millisecond

const queueSize = 64

// Callback is the host object receiving notifications.
type Callback interface {
	OnDelayChangedMs(delayMs int64)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(delayMs int64)

// OnDelayChangedMs implements Callback.
func (f CallbackFunc) OnDelayChangedMs(delayMs int64) { f(delayMs) }

type message struct {
	stop  bool
	delay time.Duration
}

// Notifier rate-limits delay updates. Updates arriving faster than
// MinInterval are coalesced and the newest one is delivered when the
// interval expires.
type Notifier struct {
	cb          Callback
	minInterval time.Duration
	ch          chan message
	closeOnce   sync.Once
	done        core.Fuse
}

// New starts the delivery goroutine. A non-positive interval uses
// DefaultMinInterval.
func New(cb Callback, minInterval time.Duration) *Notifier {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	n := &Notifier{
		cb:          cb,
		minInterval: minInterval,
		ch:          make(chan message, queueSize),
		done:        core.NewFuse(),
	}
	go n.run()
	return n
}

// DelayChanged queues d for delivery. It never blocks; updates are dropped
// when the queue is full.
func (n *Notifier) DelayChanged(d time.Duration) {
	select {
	case n.ch <- message{delay: d}:
	default:
	}
}

// OnDelayChanged lets a Notifier observe a jitter buffer directly.
func (n *Notifier) OnDelayChanged(d time.Duration) { n.DelayChanged(d) }

// OnFrameMissing is ignored.
func (n *Notifier) OnFrameMissing(uint32, uint64) {}

// OnUnderrun is ignored.
func (n *Notifier) OnUnderrun(uint64) {}

// Close sends the final stop message and waits for the goroutine to exit.
// Pending updates that have not been delivered are discarded.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.ch <- message{stop: true}
	})
	<-n.done.Watch()
}

func (n *Notifier) run() {
	defer n.done.Break()

	var (
		last    time.Time
		pending *time.Duration
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	for {
		select {
		case m := <-n.ch:
			if m.stop {
				if timer != nil {
					timer.Stop()
				}
				logrus.WithFields(logrus.Fields{
					"function": "Notifier.run",
				}).Debug("Notifier stopped")
				return
			}

			now := time.Now()
			if last.IsZero() || now.Sub(last) >= n.minInterval {
				n.deliver(m.delay)
				last = now
				pending = nil
				continue
			}

			d := m.delay
			pending = &d
			if timerC == nil {
				timer = time.NewTimer(n.minInterval - now.Sub(last))
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			if pending != nil {
				n.deliver(*pending)
				last = time.Now()
				pending = nil
			}
		}
	}
}

func (n *Notifier) deliver(d time.Duration) {
	if n.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Notifier.deliver",
				"panic":    fmt.Sprint(r),
			}).Error("Delay callback panicked")
		}
	}()
	n.cb.OnDelayChangedMs(d.Milliseconds())
}
