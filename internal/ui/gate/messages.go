// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"time"

	"github.com/jeranaias/gatelog/internal/auth"
	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/visitors"
)

// =============================================================================
// SESSION MESSAGES (sent through the Bridge)
// =============================================================================

// SessionStateMsg reports a session state transition.
type SessionStateMsg struct {
	State session.State
}

// SessionTickMsg carries the warning countdown.
type SessionTickMsg struct {
	Remaining time.Duration
}

// NavigateLoginMsg reports a forced logout.
type NavigateLoginMsg struct{}

// =============================================================================
// AUTOCOMPLETE MESSAGES (sent through the Bridge)
// =============================================================================

// SuggestionsMsg delivers plate search results. Gen identifies the field
// that produced them; results from a closed field are dropped.
type SuggestionsMsg struct {
	Gen   int
	Items []visitors.Visitor
}

// PlateValueMsg is the debounced plate value.
type PlateValueMsg struct {
	Gen   int
	Value string
}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// NotificationMsg is a toast from the notify queue.
type NotificationMsg struct {
	Notification notify.Notification
}

// LoginResultMsg is the outcome of a sign-in attempt.
type LoginResultMsg struct {
	Session *auth.Session
	Err     error
}

// BackupResultMsg is the outcome of a manual backup.
type BackupResultMsg struct {
	Result backup.Result
	Err    error
}

// CheckInResultMsg is the outcome of a check-in.
type CheckInResultMsg struct {
	Visit visitors.Visit
	Err   error
}

// RecentMsg carries the latest check-ins.
type RecentMsg struct {
	Visits []visitors.Visit
}
