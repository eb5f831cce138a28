// Package timer provides the countdown primitive used for the test clock and
// the live section clock. Both are wall-clock countdowns: network latency
// never pauses them.
package timer

import (
	"sync"
	"time"
)

// Countdown ticks once per second toward zero, clamps at zero and fires its
// completion callback exactly once. A stopped countdown never fires.
type Countdown struct {
	mu        sync.Mutex
	remaining time.Duration
	interval  time.Duration
	onTick    func(remaining time.Duration)
	onComplete func()
	stopCh    chan struct{}
	started   bool
	stopped   bool
	completed bool
}

// New creates a countdown for the given duration. onTick (optional) receives
// the clamped remaining time after every tick; onComplete (optional) fires
// exactly once when the countdown reaches zero. Call Start to begin.
func New(d time.Duration, onTick func(time.Duration), onComplete func()) *Countdown {
	return NewWithInterval(d, time.Second, onTick, onComplete)
}

// NewWithInterval creates a countdown with a custom tick interval. Production
// clocks tick once per second; tests shrink the interval to keep runs fast.
func NewWithInterval(d, interval time.Duration, onTick func(time.Duration), onComplete func()) *Countdown {
	return &Countdown{
		remaining:  d,
		interval:   interval,
		onTick:     onTick,
		onComplete: onComplete,
		stopCh:     make(chan struct{}),
	}
}

// Start begins ticking. A countdown constructed with duration zero (or less)
// completes immediately. Start is a no-op after the first call.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true

	if c.remaining <= 0 {
		c.remaining = 0
		c.mu.Unlock()
		c.complete()
		return
	}
	c.mu.Unlock()

	go c.run()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining -= c.interval
			if c.remaining < 0 {
				c.remaining = 0
			}
			rem := c.remaining
			tick := c.onTick
			c.mu.Unlock()

			if tick != nil {
				tick(rem)
			}
			if rem == 0 {
				c.complete()
				return
			}
		}
	}
}

// complete fires onComplete at most once per countdown instance.
func (c *Countdown) complete() {
	c.mu.Lock()
	if c.completed || c.stopped {
		c.mu.Unlock()
		return
	}
	c.completed = true
	done := c.onComplete
	c.mu.Unlock()

	if done != nil {
		done()
	}
}

// Stop cancels the countdown. Idempotent; a stopped countdown will not fire
// onComplete, so a leaked instance from a previous section can never fire
// into the wrong section's expiry handler.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()
}

// Remaining returns the clamped remaining time. Safe for concurrent use.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown has fired its completion callback.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}
