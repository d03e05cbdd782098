// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the lifecycle state of a kiosk session.
type State int

const (
	// StateActive is the initial state after a successful login.
	StateActive State = iota

	// StateWarning means the user went idle and the logout countdown is running.
	StateWarning

	// StateLoggedOut is terminal for a controller instance.
	StateLoggedOut
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateWarning:
		return "Warning"
	case StateLoggedOut:
		return "LoggedOut"
	default:
		return "Unknown"
	}
}

// =============================================================================
// TIMEOUTS
// =============================================================================

// MinWarningWindow is the shortest warning window that still gives the user
// time to react.
const MinWarningWindow = 10 * time.Second

var (
	// ErrNotInWarning is returned by Extend outside the warning window.
	ErrNotInWarning = errors.New("session is not in the warning window")

	// ErrSessionClosed is returned by operations on a logged out controller.
	ErrSessionClosed = errors.New("session is closed")
)

// Timeouts configures the idle and warning durations of a session.
type Timeouts struct {
	// Inactivity is the total idle time before a forced logout.
	Inactivity time.Duration

	// Warning is the tail of Inactivity shown as a countdown.
	Warning time.Duration
}

// DefaultTimeouts returns the kiosk defaults: 3 hours with a 5 minute warning.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Inactivity: 3 * time.Hour,
		Warning:    5 * time.Minute,
	}
}

// Quiet returns the period without activity after which the warning starts.
func (t Timeouts) Quiet() time.Duration {
	return t.Inactivity - t.Warning
}

// Validate checks that the warning window fits inside the inactivity timeout.
func (t Timeouts) Validate() error {
	if t.Warning < MinWarningWindow {
		return fmt.Errorf("warning window %v is below minimum %v", t.Warning, MinWarningWindow)
	}
	if t.Inactivity <= t.Warning {
		return fmt.Errorf("inactivity timeout %v must exceed warning window %v", t.Inactivity, t.Warning)
	}
	return nil
}

// FormatDuration formats a duration for the countdown display.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		secs := int(d.Seconds())
		return util.IntToString(secs) + "s"
	}
	if d >= time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return util.IntToString(hours) + "h"
		}
		return util.IntToString(hours) + "h " + util.IntToString(mins) + "m"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
