// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package clock

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// New returns the real wall clock.
func New() clockwork.Clock {
	return clockwork.NewRealClock()
}

// OrReal returns c, or the real clock when c is nil.
func OrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return New()
	}
	return c
}

// Timer is a single-shot timer that can be re-armed and cancelled any number
// of times. Each Arm starts a new cycle; a callback belonging to an older
// cycle is dropped even if the underlying timer already fired.
type Timer struct {
	clock clockwork.Clock
	name  string

	mu    sync.Mutex
	gen   uint64
	armed bool
	t     clockwork.Timer
}

// NewTimer creates an unarmed timer on the given clock.
func NewTimer(c clockwork.Clock) *Timer {
	return &Timer{clock: OrReal(c)}
}

// NewNamedTimer creates an unarmed timer whose name is attached to panic logs.
func NewNamedTimer(c clockwork.Clock, name string) *Timer {
	return &Timer{clock: OrReal(c), name: name}
}

// Arm schedules fn to run after d, replacing any pending cycle.
// A non-positive d fires on the next clock tick.
func (t *Timer) Arm(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.t = t.clock.AfterFunc(d, func() { t.fire(gen, fn) })
}

// Cancel stops the pending cycle, if any. Calling Cancel on an unarmed or
// already cancelled timer is a no-op.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
}

// Armed reports whether a cycle is pending.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.armed = false
}

func (t *Timer) fire(gen uint64, fn func()) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	// Consume the cycle before running fn so it can fire at most once and
	// fn may re-arm the same timer.
	t.armed = false
	t.t = nil
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("timer callback panicked",
				"timer", t.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
