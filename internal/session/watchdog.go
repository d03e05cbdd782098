// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gatelog/internal/clock"
)

// rearmEvery bounds how often activity re-arms the idle timer. Activity in
// between only moves the timestamp; the timer re-arms itself for the rest of
// the quiet period when it fires early.
const rearmEvery = time.Second

// =============================================================================
// IDLE WATCHDOG
// =============================================================================

// Watchdog reports an idle transition once a quiet period passes without
// activity. It only does timer bookkeeping.
type Watchdog struct {
	clock  clockwork.Clock
	quiet  time.Duration
	onIdle func()
	timer  *clock.Timer
	rearm  *rate.Limiter

	mu           sync.Mutex
	lastActivity time.Time
	idle         bool
	running      bool
}

// NewWatchdog creates a stopped watchdog. onIdle runs on a timer goroutine
// once per quiet period.
func NewWatchdog(c clockwork.Clock, quiet time.Duration, onIdle func()) *Watchdog {
	c = clock.OrReal(c)
	return &Watchdog{
		clock:  c,
		quiet:  quiet,
		onIdle: onIdle,
		timer:  clock.NewNamedTimer(c, "idle-watchdog"),
		rearm:  rate.NewLimiter(rate.Every(rearmEvery), 1),
	}
}

// Start begins a quiet period from now.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = true
	w.resetLocked()
}

// OnActivity records user input. Activity while idle returns the watchdog to
// active and starts a fresh quiet period.
func (w *Watchdog) OnActivity() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	now := w.clock.Now()
	w.lastActivity = now
	if w.idle {
		w.idle = false
		w.timer.Arm(w.quiet, w.check)
		return
	}
	if w.rearm.AllowN(now, 1) {
		w.timer.Arm(w.quiet, w.check)
	}
}

// Reset forces a fresh quiet period, bypassing the re-arm throttle.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.resetLocked()
}

// Stop cancels the pending quiet period. Stop is idempotent.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = false
	w.idle = false
	w.timer.Cancel()
}

// Idle reports whether the last quiet period elapsed without activity.
func (w *Watchdog) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

// LastActivity returns the time of the most recent activity.
func (w *Watchdog) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

func (w *Watchdog) resetLocked() {
	w.lastActivity = w.clock.Now()
	w.idle = false
	w.timer.Arm(w.quiet, w.check)
}

func (w *Watchdog) check() {
	w.mu.Lock()
	if !w.running || w.idle {
		w.mu.Unlock()
		return
	}
	elapsed := w.clock.Since(w.lastActivity)
	if elapsed < w.quiet {
		w.timer.Arm(w.quiet-elapsed, w.check)
		w.mu.Unlock()
		return
	}
	w.idle = true
	onIdle := w.onIdle
	w.mu.Unlock()

	if onIdle != nil {
		onIdle()
	}
}
