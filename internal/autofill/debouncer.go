// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package autofill debounces autocomplete searches and guards programmatic
// field updates from re-triggering the search that produced them.
package autofill

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
)

// Debouncer runs only the most recently scheduled call, once no new call has
// been scheduled for the delay.
type Debouncer struct {
	delay time.Duration
	timer *clock.Timer
}

// NewDebouncer creates a debouncer on the given clock.
func NewDebouncer(c clockwork.Clock, name string, delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		timer: clock.NewNamedTimer(c, name),
	}
}

// Call cancels any pending call and schedules fn after the delay.
func (d *Debouncer) Call(fn func()) {
	d.timer.Arm(d.delay, fn)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.timer.Cancel()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	return d.timer.Armed()
}

// Delay returns the debounce delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}
