// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Authenticator is the part of the auth store the controller depends on.
type Authenticator interface {
	IsAuthenticated() bool
	// Logout terminates the session. It must be idempotent.
	Logout()
}

// Navigator redirects the kiosk to the login surface.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToLogin calls f.
func (f NavigatorFunc) ToLogin() { f() }

// Recorder receives session metrics. A nil Recorder is allowed.
type Recorder interface {
	IncSessionTransition(to string)
	IncForcedLogout()
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Auth      Authenticator
	Navigator Navigator
	Recorder  Recorder
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used by the watchdog and the countdown.
func WithClock(c clockwork.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

// WithLogger sets the logger for session events.
func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) {
		ctrl.logger = l
	}
}

// WithStateListener registers fn to receive every state change.
func WithStateListener(fn func(State)) Option {
	return func(ctrl *Controller) {
		ctrl.onState = fn
	}
}

// WithTickListener registers fn to receive the remaining warning time once
// per second while the warning is shown.
func WithTickListener(fn func(remaining time.Duration)) Option {
	return func(ctrl *Controller) {
		ctrl.onTick = fn
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the session state machine:
//
//	Active --idle--> Warning --expired--> LoggedOut
//	   ^                |
//	   +----Extend()----+
//
// LoggedOut is terminal; a new Controller is created for the next login.
type Controller struct {
	id       string
	timeouts Timeouts
	auth     Authenticator
	nav      Navigator
	recorder Recorder
	clock    clockwork.Clock
	logger   *slog.Logger
	onState  func(State)
	onTick   func(time.Duration)

	watchdog  *Watchdog
	countdown *Countdown

	mu        sync.Mutex
	state     State
	closed    bool
	startedAt time.Time
}

// NewController creates a controller in the Active state. Timers are not
// armed until Start.
func NewController(t Timeouts, deps Deps, opts ...Option) (*Controller, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session timeouts: %w", err)
	}
	if deps.Auth == nil {
		return nil, errors.New("session controller requires an authenticator")
	}
	if deps.Navigator == nil {
		return nil, errors.New("session controller requires a navigator")
	}

	c := &Controller{
		id:       "sess_" + uuid.NewString(),
		timeouts: t,
		auth:     deps.Auth,
		nav:      deps.Navigator,
		recorder: deps.Recorder,
		state:    StateActive,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = clock.OrReal(c.clock)
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session_id", c.id)

	c.watchdog = NewWatchdog(c.clock, t.Quiet(), c.handleIdle)
	c.countdown = NewCountdown(c.clock, t.Warning, c.handleExpired)
	if c.onTick != nil {
		c.countdown.OnTick(c.onTick)
	}
	return c, nil
}

// ID returns the session identifier used in logs.
func (c *Controller) ID() string {
	return c.id
}

// Timeouts returns the configured timeouts.
func (c *Controller) Timeouts() Timeouts {
	return c.timeouts
}

// Start arms the idle watchdog.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.startedAt = c.clock.Now()
	c.watchdog.Start()
	c.mu.Unlock()

	c.logEvent("SESSION_CREATED",
		"inactivity", c.timeouts.Inactivity,
		"warning", c.timeouts.Warning)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the time left in the warning window, or zero outside it.
func (c *Controller) Remaining() time.Duration {
	return c.countdown.Remaining()
}

// ResetTimer records user activity. It does nothing unless the session is
// Active and authenticated.
func (c *Controller) ResetTimer() {
	if !c.auth.IsAuthenticated() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != StateActive {
		return
	}
	c.watchdog.OnActivity()
}

// Extend keeps the session alive from the warning window. Outside the warning
// window it returns ErrNotInWarning, counting the call as activity when Active.
func (c *Controller) Extend() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.state != StateWarning {
		c.watchdog.OnActivity()
		c.mu.Unlock()
		return ErrNotInWarning
	}
	c.state = StateActive
	c.countdown.Cancel()
	c.watchdog.Reset()
	c.mu.Unlock()

	c.logEvent("SESSION_EXTENDED", "quiet", c.timeouts.Quiet())
	c.transitioned(StateActive)
	return nil
}

// Cleanup cancels every owned timer and moves the controller to LoggedOut
// without calling Logout. It is called when the session ends elsewhere and on
// teardown, and is idempotent.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateLoggedOut
	c.stopTimersLocked()
	c.mu.Unlock()

	c.logEvent("SESSION_TERMINATED", "duration", c.clock.Since(c.startedAt))
	c.transitioned(StateLoggedOut)
}

func (c *Controller) handleIdle() {
	if !c.auth.IsAuthenticated() {
		c.Cleanup()
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateWarning
	c.countdown.Start()
	c.mu.Unlock()

	c.logEvent("SESSION_WARNING", "expires_in", c.timeouts.Warning)
	c.transitioned(StateWarning)
}

func (c *Controller) handleExpired() {
	// Logged out elsewhere while the warning was up.
	if !c.auth.IsAuthenticated() {
		c.Cleanup()
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateWarning {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateLoggedOut
	c.stopTimersLocked()
	c.mu.Unlock()

	c.logEvent("SESSION_EXPIRED", "duration", c.clock.Since(c.startedAt))
	if c.recorder != nil {
		c.recorder.IncForcedLogout()
	}
	c.auth.Logout()
	c.nav.ToLogin()
	c.transitioned(StateLoggedOut)
}

func (c *Controller) stopTimersLocked() {
	c.watchdog.Stop()
	c.countdown.Cancel()
}

func (c *Controller) transitioned(to State) {
	if c.recorder != nil {
		c.recorder.IncSessionTransition(to.String())
	}
	if c.onState != nil {
		c.onState(to)
	}
}

func (c *Controller) logEvent(event string, args ...any) {
	c.logger.Info("session event", append([]any{"session_event", event}, args...)...)
}
