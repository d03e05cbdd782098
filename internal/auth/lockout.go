// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultMaxAttempts is the number of failed attempts before lockout.
	DefaultMaxAttempts = 5

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// attemptRecord tracks failed sign-ins for one user name.
type attemptRecord struct {
	count       int
	first       time.Time
	lockedUntil time.Time
}

// Lockout counts consecutive failures per identifier and locks it out for
// a fixed period once the limit is reached. Failures older than the lockout
// period no longer count.
type Lockout struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	maxAttempts int
	duration    time.Duration
	attempts    map[string]*attemptRecord
}

// NewLockout creates a lockout tracker. Non-positive values use defaults.
func NewLockout(c clockwork.Clock, maxAttempts int, duration time.Duration) *Lockout {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &Lockout{
		clock:       c,
		maxAttempts: maxAttempts,
		duration:    duration,
		attempts:    make(map[string]*attemptRecord),
	}
}

// Remaining returns how long id stays locked, or 0.
func (l *Lockout) Remaining(id string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[id]
	if !ok || rec.lockedUntil.IsZero() {
		return 0
	}
	left := rec.lockedUntil.Sub(l.clock.Now())
	if left <= 0 {
		delete(l.attempts, id)
		return 0
	}
	return left
}

// Locked reports whether id is currently locked out.
func (l *Lockout) Locked(id string) bool {
	return l.Remaining(id) > 0
}

// RecordFailure counts a failed attempt and reports whether it triggered a
// lockout.
func (l *Lockout) RecordFailure(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	rec, ok := l.attempts[id]
	if !ok || now.Sub(rec.first) > l.duration {
		rec = &attemptRecord{first: now}
		l.attempts[id] = rec
	}
	rec.count++
	if rec.count >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.duration)
		return true
	}
	return false
}

// RecordSuccess clears the failure history of id.
func (l *Lockout) RecordSuccess(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, id)
}
