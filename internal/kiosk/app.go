// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kiosk wires the gatelog components into one application: the
// operator session lifecycle, the backup scheduler, the visitor log and
// the plate autocomplete.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/auth"
	"github.com/jeranaias/gatelog/internal/autofill"
	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/clock"
	"github.com/jeranaias/gatelog/internal/config"
	"github.com/jeranaias/gatelog/internal/metrics"
	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/seal"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/visitors"
)

// DefaultNotifyBuffer is the toast queue size.
const DefaultNotifyBuffer = 16

// ErrNoSession is returned by session operations while nobody is signed in.
var ErrNoSession = errors.New("no active session")

// Listener receives session events for the presentation layer. Methods
// are called from timer goroutines and must not block.
type Listener interface {
	SessionState(state session.State)
	SessionTick(remaining time.Duration)
	NavigateLogin()
}

// Options configures New.
type Options struct {
	Clock  clockwork.Clock
	Logger *slog.Logger

	// Store is the runtime config holder. Its path is watched when Watch
	// is set.
	Store *config.Store
	Watch bool

	// NotifyBuffer sizes the toast queue.
	NotifyBuffer int

	// Registry-backed metrics; nil disables them.
	Metrics *metrics.Recorder

	// BcryptCost overrides the PIN hashing cost (tests).
	BcryptCost int
}

// App is the composition root.
type App struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	store   *config.Store
	metrics *metrics.Recorder

	auth      *auth.Store
	visitors  *visitors.Store
	engine    *backup.Engine
	scheduler *backup.Scheduler
	toasts    *notify.Queue
	notifier  notify.Sink
	watcher   *config.Watcher
	metricSrv *metrics.Server

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
	polls  sync.WaitGroup

	mu       sync.Mutex
	session  *session.Controller
	listener Listener
	closed   bool
}

// New opens the stores and builds every component. Nothing runs until Start.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("kiosk requires a config store")
	}
	a := &App{
		clock:   clock.OrReal(opts.Clock),
		logger:  opts.Logger,
		store:   opts.Store,
		metrics: opts.Metrics,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	cfg := a.store.Snapshot()
	if err := a.open(cfg, opts); err != nil {
		a.closeStores()
		return nil, err
	}

	if opts.Watch && a.store.Path() != "" {
		w, err := config.NewWatcher(a.store, config.WithWatcherClock(a.clock))
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.watcher = w
	}
	return a, nil
}

func (a *App) open(cfg *config.Config, opts Options) error {
	authOpts := []auth.Option{
		auth.WithClock(a.clock),
		auth.WithLogger(a.logger),
		auth.WithLockout(cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration.D()),
		auth.WithRequireTOTP(cfg.Auth.RequireTOTP),
		auth.WithRecorder(a.metrics),
	}
	if opts.BcryptCost > 0 {
		authOpts = append(authOpts, auth.WithBcryptCost(opts.BcryptCost))
	}
	users, err := auth.NewStore(cfg.Auth.UsersFile, authOpts...)
	if err != nil {
		return fmt.Errorf("failed to open users: %w", err)
	}
	a.auth = users

	db, err := visitors.Open(filepath.Join(cfg.DataDir, "visitors.db"),
		visitors.WithClock(a.clock),
		visitors.WithSearchLimit(cfg.Search.MaxResults))
	if err != nil {
		return err
	}
	a.visitors = db

	sealer, err := seal.LoadOrCreate(cfg.DataDir, cfg.Backup.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to load backup key: %w", err)
	}
	engine, err := backup.NewEngine(cfg.Backup.Dir, db, sealer,
		backup.WithEngineClock(a.clock),
		backup.WithEngineLogger(a.logger))
	if err != nil {
		return err
	}
	a.engine = engine

	size := opts.NotifyBuffer
	if size <= 0 {
		size = DefaultNotifyBuffer
	}
	a.toasts = notify.NewQueue(size, a.clock)
	a.notifier = notify.Multi{a.toasts, notify.LogSink{Logger: a.logger}}

	schedOpts := []backup.Option{backup.WithClock(a.clock), backup.WithLogger(a.logger)}
	if p := cfg.Backup.PollInterval.D(); p > 0 {
		schedOpts = append(schedOpts, backup.WithPollInterval(p))
	}
	sched, err := backup.NewScheduler(backup.Deps{
		Engine:   engine,
		Settings: a.store,
		Auth:     users,
		Notifier: a.notifier,
		Recorder: a.metrics,
	}, schedOpts...)
	if err != nil {
		return err
	}
	a.scheduler = sched

	if a.metrics != nil {
		if err := a.metrics.RegisterGauge("notifications_dropped", "Toasts dropped because the queue was full",
			func() float64 { return float64(a.toasts.Dropped()) }); err != nil {
			a.logger.Warn("failed to register notification gauge", "error", err)
		}
	}
	return nil
}

// Start subscribes to auth and config changes and starts the scheduler,
// the config watcher and the metrics listener.
func (a *App) Start() error {
	a.unsubs = append(a.unsubs,
		a.auth.Subscribe(a.onAuthChange),
		a.store.Subscribe(a.onConfigChange),
	)

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	if a.watcher != nil {
		if err := a.watcher.Start(a.ctx); err != nil {
			a.logger.Warn("config hot reload disabled", "error", err)
			a.watcher = nil
		}
	}

	cfg := a.store.Snapshot()
	if a.metrics != nil && cfg.Metrics.Enabled {
		srv, err := a.metrics.Listen(cfg.Metrics.ListenAddr)
		if err != nil {
			return err
		}
		a.metricSrv = srv
	}
	return nil
}

// SetListener installs the presentation listener.
func (a *App) SetListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = l
}

func (a *App) currentListener() Listener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener
}

// =============================================================================
// SESSION
// =============================================================================

// Login signs an operator in. The session controller is created by the
// resulting auth change.
func (a *App) Login(ctx context.Context, user, pin, code string) (*auth.Session, error) {
	return a.auth.Login(ctx, user, pin, code)
}

// Logout signs the operator out; the controller is cleaned up by the
// resulting auth change.
func (a *App) Logout() {
	a.auth.Logout()
}

func (a *App) onAuthChange(authenticated bool) {
	if authenticated {
		a.startSession()
		return
	}
	a.endSession()
}

func (a *App) startSession() {
	cfg := a.store.Snapshot()
	ctrl, err := session.NewController(cfg.SessionTimeouts(), session.Deps{
		Auth:      a.auth,
		Navigator: session.NavigatorFunc(a.navigateLogin),
		Recorder:  a.metrics,
	},
		session.WithClock(a.clock),
		session.WithLogger(a.logger),
		session.WithStateListener(a.emitState),
		session.WithTickListener(a.emitTick),
	)
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	prev := a.session
	a.session = ctrl
	a.polls.Add(1)
	a.mu.Unlock()

	if prev != nil {
		prev.Cleanup()
	}
	ctrl.Start()
	a.emitState(session.StateActive)

	// A backup may have come due while nobody was signed in.
	go func() {
		defer a.polls.Done()
		a.scheduler.Poll(a.ctx)
	}()
}

func (a *App) endSession() {
	a.mu.Lock()
	ctrl := a.session
	a.session = nil
	a.mu.Unlock()

	if ctrl != nil {
		ctrl.Cleanup()
	}
}

func (a *App) currentSession() *session.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Activity reports operator input to the idle watchdog.
func (a *App) Activity() {
	if ctrl := a.currentSession(); ctrl != nil {
		ctrl.ResetTimer()
	}
}

// Extend dismisses the inactivity warning.
func (a *App) Extend() error {
	ctrl := a.currentSession()
	if ctrl == nil {
		return ErrNoSession
	}
	return ctrl.Extend()
}

// SessionState returns the current session state.
func (a *App) SessionState() session.State {
	ctrl := a.currentSession()
	if ctrl == nil {
		return session.StateLoggedOut
	}
	return ctrl.State()
}

// Remaining returns the warning countdown, or zero.
func (a *App) Remaining() time.Duration {
	ctrl := a.currentSession()
	if ctrl == nil {
		return 0
	}
	return ctrl.Remaining()
}

// CurrentUser returns the signed-in operator.
func (a *App) CurrentUser() (auth.Session, bool) {
	return a.auth.Current()
}

func (a *App) emitState(s session.State) {
	if l := a.currentListener(); l != nil {
		l.SessionState(s)
	}
}

func (a *App) emitTick(d time.Duration) {
	if l := a.currentListener(); l != nil {
		l.SessionTick(d)
	}
}

func (a *App) navigateLogin() {
	if l := a.currentListener(); l != nil {
		l.NavigateLogin()
	}
}

// =============================================================================
// BACKUPS
// =============================================================================

// BackupNow runs a manual backup.
func (a *App) BackupNow(ctx context.Context) (backup.Result, error) {
	return a.scheduler.TriggerManual(ctx)
}

// BackupStatus returns the scheduler status.
func (a *App) BackupStatus() backup.Status {
	return a.scheduler.Status()
}

func (a *App) onConfigChange(cfg *config.Config) {
	if err := a.scheduler.Apply(cfg.BackupSettings()); err != nil {
		a.logger.Error("failed to apply backup settings", "error", err)
	}
}

// =============================================================================
// VISITORS
// =============================================================================

// NewPlateField creates an autocomplete field backed by the visitor log.
func (a *App) NewPlateField(hooks autofill.Hooks[visitors.Visitor]) *autofill.Field[visitors.Visitor] {
	cfg := a.store.Snapshot()
	return autofill.NewField[visitors.Visitor](a.visitors, cfg.AutofillConfig(), hooks,
		autofill.WithClock(a.clock),
		autofill.WithLogger(a.logger),
		autofill.WithRecorder(a.metrics))
}

// CheckIn records a visit for the signed-in operator.
func (a *App) CheckIn(ctx context.Context, in visitors.CheckIn) (visitors.Visit, error) {
	sess, ok := a.auth.Current()
	if !ok {
		return visitors.Visit{}, auth.ErrInvalidCredentials
	}
	in.Operator = sess.User
	v, err := a.visitors.RecordVisit(ctx, in)
	if err != nil {
		return v, err
	}
	a.logger.Info("visit recorded", "visit_id", v.ID, "operator", sess.User)
	return v, nil
}

// Recent returns the latest check-ins.
func (a *App) Recent(ctx context.Context, n int) ([]visitors.Visit, error) {
	return a.visitors.Recent(ctx, n)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Notifications is the toast stream.
func (a *App) Notifications() <-chan notify.Notification {
	return a.toasts.C()
}

// Config returns a snapshot of the active configuration.
func (a *App) Config() *config.Config {
	return a.store.Snapshot()
}

// Auth returns the user store.
func (a *App) Auth() *auth.Store {
	return a.auth
}

// Engine returns the backup engine.
func (a *App) Engine() *backup.Engine {
	return a.engine
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close signs out, stops every timer and closes the stores. Safe to call
// more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	ctrl := a.session
	a.session = nil
	a.mu.Unlock()

	for _, u := range a.unsubs {
		u()
	}
	if ctrl != nil {
		ctrl.Cleanup()
	}
	a.auth.Logout()

	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	a.polls.Wait()
	errs = append(errs, a.scheduler.Stop())
	if a.metricSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.metricSrv.Shutdown(ctx))
		cancel()
	}
	a.cancel()
	errs = append(errs, a.closeStores())
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	if a.visitors != nil {
		return a.visitors.Close()
	}
	return nil
}
