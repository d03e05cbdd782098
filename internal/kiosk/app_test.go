// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kiosk

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/config"
	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/visitors"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recordingListener struct {
	mu        sync.Mutex
	states    []session.State
	ticks     int
	navigated int
}

func (l *recordingListener) SessionState(s session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *recordingListener) SessionTick(time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
}

func (l *recordingListener) NavigateLogin() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.navigated++
}

func (l *recordingListener) sawState(s session.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.states {
		if got == s {
			return true
		}
	}
	return false
}

func (l *recordingListener) navigations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.navigated
}

type harness struct {
	app      *App
	clock    *clockwork.FakeClock
	store    *config.Store
	listener *recordingListener
}

func newHarness(t *testing.T, modify func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Session.InactivityTimeout = config.Duration(time.Minute)
	cfg.Session.WarningWindow = config.Duration(20 * time.Second)
	cfg.Backup.Interval = config.Duration(time.Hour)
	if modify != nil {
		modify(cfg)
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	store := config.NewStore(cfg, filepath.Join(dir, "config.toml"))
	fc := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	app, err := New(Options{Clock: fc, Store: store, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	l := &recordingListener{}
	app.SetListener(l)
	require.NoError(t, app.Start())

	_, err = app.Auth().AddUser("guard1", "Dana", "4821", false)
	require.NoError(t, err)
	return &harness{app: app, clock: fc, store: store, listener: l}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.app.Login(context.Background(), "guard1", "4821", "")
	require.NoError(t, err)
}

func TestApp_LoginStartsSessionAndRunsDueBackup(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, session.StateLoggedOut, h.app.SessionState())

	h.login(t)
	assert.Equal(t, session.StateActive, h.app.SessionState())
	assert.True(t, h.listener.sawState(session.StateActive))

	// Never backed up, so the login due-check takes one.
	var n notify.Notification
	select {
	case n = <-h.app.Notifications():
	case <-time.After(5 * time.Second):
		t.Fatal("no backup notification")
	}
	assert.Equal(t, notify.LevelInfo, n.Level)
	assert.True(t, strings.HasPrefix(n.Message, "Backup created"))

	backups, err := h.app.Engine().ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, backup.KindAuto, backups[0].Kind)
	assert.False(t, h.store.Snapshot().Backup.LastBackupAt.IsZero())
}

func TestApp_InactivityForcesLogout(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })
	h.login(t)

	h.clock.Advance(40 * time.Second)
	require.Eventually(t, func() bool { return h.app.SessionState() == session.StateWarning }, waitFor, tick)
	assert.True(t, h.listener.sawState(session.StateWarning))

	h.clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool { return h.listener.navigations() == 1 }, waitFor, tick)
	assert.False(t, h.app.Auth().IsAuthenticated())
	assert.Equal(t, session.StateLoggedOut, h.app.SessionState())
}

func TestApp_ExtendKeepsOperatorSignedIn(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })
	h.login(t)

	h.clock.Advance(40 * time.Second)
	require.Eventually(t, func() bool { return h.app.SessionState() == session.StateWarning }, waitFor, tick)

	require.NoError(t, h.app.Extend())
	assert.Equal(t, session.StateActive, h.app.SessionState())

	h.clock.Advance(20 * time.Second)
	require.Never(t, func() bool { return h.listener.navigations() > 0 }, 100*time.Millisecond, tick)
	assert.True(t, h.app.Auth().IsAuthenticated())
}

func TestApp_LogoutCleansUpSession(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })
	h.login(t)

	h.app.Logout()
	assert.Equal(t, session.StateLoggedOut, h.app.SessionState())
	require.ErrorIs(t, h.app.Extend(), ErrNoSession)
	assert.Zero(t, h.app.Remaining())

	h.clock.Advance(2 * time.Minute)
	require.Never(t, func() bool { return h.listener.navigations() > 0 }, 100*time.Millisecond, tick)
}

func TestApp_BackupNow(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })

	_, err := h.app.BackupNow(context.Background())
	require.ErrorIs(t, err, backup.ErrNotAuthenticated)

	h.login(t)
	res, err := h.app.BackupNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backup.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, backup.KindManual, res.Backup.Kind)
	require.NoError(t, h.app.Engine().Verify(res.Backup.ID))
}

func TestApp_CheckIn(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })
	ctx := context.Background()

	_, err := h.app.CheckIn(ctx, visitors.CheckIn{Plate: "AB12", Name: "Driver"})
	require.Error(t, err)

	h.login(t)
	v, err := h.app.CheckIn(ctx, visitors.CheckIn{Plate: "AB12", Name: "Driver", Purpose: "Delivery"})
	require.NoError(t, err)
	assert.Equal(t, "guard1", v.Operator)

	recent, err := h.app.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, v.ID, recent[0].ID)
}

func TestApp_ConfigChangeReachesScheduler(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, backup.MaxPollInterval, h.app.BackupStatus().PollEvery)

	require.NoError(t, h.store.Update(func(c *config.Config) { c.Backup.Enabled = false }))
	assert.Zero(t, h.app.BackupStatus().PollEvery)
	assert.False(t, h.app.BackupStatus().Enabled)

	require.NoError(t, h.store.Update(func(c *config.Config) {
		c.Backup.Enabled = true
		c.Backup.Interval = config.Duration(5 * time.Minute)
	}))
	assert.Equal(t, 30*time.Second, h.app.BackupStatus().PollEvery)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Backup.Enabled = false })
	h.login(t)

	require.NoError(t, h.app.Close())
	require.NoError(t, h.app.Close())
	assert.False(t, h.app.Auth().IsAuthenticated())
	assert.Equal(t, session.StateLoggedOut, h.app.SessionState())
}

func TestApp_CloseWaitsForLoginBackupCheck(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	require.NoError(t, h.app.Close())
	assert.False(t, h.app.BackupStatus().InFlight)
	assert.NoError(t, h.app.BackupStatus().LastError)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
