package loom

import (
	"time"
)

// resizeCoalescer collapses resize bursts (window drags) into one applied
// size. It tracks the most recent pending size and a steady/burst regime
// derived from a sliding window of inter-arrival intervals. The decision is
// deterministic given the event schedule, so tests drive it with a fixed
// clock.
type resizeCoalescer struct {
	steadyDelay  time.Duration
	burstDelay   time.Duration
	hardDeadline time.Duration

	burstEnterRate float64 // events/sec to enter burst
	burstExitRate  float64 // events/sec to leave burst
	cooldownFrames int     // consecutive calm decisions to leave burst

	pending        bool
	width, height  int
	firstPendingAt time.Time
	lastEventAt    time.Time

	window []time.Time // recent event times, newest last
	burst  bool
	calm   int
}

const resizeWindowSize = 8

func newResizeCoalescer(cfg Config) *resizeCoalescer {
	return &resizeCoalescer{
		steadyDelay:    cfg.ResizeSteadyDelay,
		burstDelay:     cfg.ResizeBurstDelay,
		hardDeadline:   cfg.ResizeHardDeadline,
		burstEnterRate: 25,
		burstExitRate:  10,
		cooldownFrames: 3,
	}
}

// Note records a resize event. Zero or negative dimensions are transient
// (DimensionsInvalid): the last valid size is retained and no new pending
// state is created.
func (c *resizeCoalescer) Note(width, height int, now time.Time) {
	if width <= 0 || height <= 0 {
		return
	}
	if !c.pending {
		c.firstPendingAt = now
	}
	c.pending = true
	c.width, c.height = width, height
	c.lastEventAt = now

	c.window = append(c.window, now)
	if len(c.window) > resizeWindowSize {
		c.window = c.window[1:]
	}
}

// rate returns the windowed event rate in events per second.
func (c *resizeCoalescer) rate(now time.Time) float64 {
	n := len(c.window)
	if n < 2 {
		return 0
	}
	span := c.window[n-1].Sub(c.window[0])
	if span <= 0 {
		return float64(c.burstEnterRate) // instantaneous burst
	}
	return float64(n-1) / span.Seconds()
}

// Decide returns the size to apply, if any. Apply happens when the stream
// has been quiet for the regime's delay, or when the hard deadline since
// the first pending event has elapsed.
func (c *resizeCoalescer) Decide(now time.Time) (width, height int, apply bool) {
	if !c.pending {
		return 0, 0, false
	}

	r := c.rate(now)
	if r >= c.burstEnterRate {
		c.burst = true
		c.calm = 0
	} else if c.burst && r < c.burstExitRate {
		c.calm++
		if c.calm >= c.cooldownFrames {
			c.burst = false
			c.calm = 0
		}
	}

	delay := c.steadyDelay
	if c.burst {
		delay = c.burstDelay
	}

	if now.Sub(c.lastEventAt) >= delay || now.Sub(c.firstPendingAt) >= c.hardDeadline {
		c.pending = false
		c.window = c.window[:0]
		return c.width, c.height, true
	}
	return 0, 0, false
}

// Pending reports whether a resize awaits application.
func (c *resizeCoalescer) Pending() bool {
	return c.pending
}
