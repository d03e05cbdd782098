// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
)

// TickInterval is the display granularity of the countdown.
const TickInterval = time.Second

// =============================================================================
// WARNING COUNTDOWN
// =============================================================================

// Countdown is a fixed-duration countdown that either expires or is cancelled.
// Each Start begins an independent cycle; expiry is reported at most once per
// cycle and never after Cancel.
type Countdown struct {
	clock     clockwork.Clock
	window    time.Duration
	main      *clock.Timer
	tick      *clock.Timer
	onExpired func()
	onTick    func(remaining time.Duration)

	mu        sync.Mutex
	cycle     uint64
	running   bool
	deadline  time.Time
	remaining time.Duration
}

// NewCountdown creates an idle countdown. onExpired runs on a timer goroutine.
func NewCountdown(c clockwork.Clock, window time.Duration, onExpired func()) *Countdown {
	c = clock.OrReal(c)
	return &Countdown{
		clock:     c,
		window:    window,
		main:      clock.NewNamedTimer(c, "warning-countdown"),
		tick:      clock.NewNamedTimer(c, "warning-countdown-tick"),
		onExpired: onExpired,
	}
}

// OnTick registers a callback that receives the remaining time after every
// whole-second decrement. It must be set before Start.
func (c *Countdown) OnTick(fn func(remaining time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// Start arms a fresh cycle for the full window, replacing any running one.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycle++
	cycle := c.cycle
	c.running = true
	c.deadline = c.clock.Now().Add(c.window)
	c.remaining = ceilSeconds(c.window)

	c.main.Arm(c.window, func() { c.expire(cycle) })
	c.tick.Arm(nextTick(c.window), func() { c.onTickFired(cycle) })
}

// Cancel stops the running cycle. Cancel is idempotent.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycle++
	c.running = false
	c.main.Cancel()
	c.tick.Cancel()
}

// Running reports whether a cycle is armed.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Remaining returns the whole seconds left in the current cycle. It never
// increases within a cycle and is zero once the cycle has ended.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return c.remaining
}

// Window returns the configured countdown length.
func (c *Countdown) Window() time.Duration {
	return c.window
}

func (c *Countdown) expire(cycle uint64) {
	c.mu.Lock()
	if cycle != c.cycle || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.remaining = 0
	c.tick.Cancel()
	fn := c.onExpired
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Countdown) onTickFired(cycle uint64) {
	c.mu.Lock()
	if cycle != c.cycle || !c.running {
		c.mu.Unlock()
		return
	}
	left := c.clock.Until(c.deadline)
	if left < 0 {
		left = 0
	}
	if secs := ceilSeconds(left); secs < c.remaining {
		c.remaining = secs
	}
	if left > 0 {
		c.tick.Arm(nextTick(left), func() { c.onTickFired(cycle) })
	}
	remaining := c.remaining
	fn := c.onTick
	c.mu.Unlock()

	if fn != nil {
		fn(remaining)
	}
}

// nextTick returns the delay until the remaining time crosses the next
// whole-second boundary.
func nextTick(left time.Duration) time.Duration {
	next := left % TickInterval
	if next == 0 {
		next = TickInterval
	}
	return next
}

func ceilSeconds(d time.Duration) time.Duration {
	secs := d / TickInterval
	if d%TickInterval != 0 {
		secs++
	}
	return secs * TickInterval
}
