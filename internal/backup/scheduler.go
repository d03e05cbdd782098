// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
	"github.com/jeranaias/gatelog/internal/notify"
)

const (
	// MinPollInterval and MaxPollInterval bound the derived poll period.
	MinPollInterval = time.Second
	MaxPollInterval = time.Minute

	// pollDivisor sets the poll period to a fraction of the backup interval
	// so that a due backup is at most interval/pollDivisor late.
	pollDivisor = 10

	jobName = "backup-due-check"
)

var (
	// ErrBackupInProgress rejects a manual backup while another one runs.
	ErrBackupInProgress = errors.New("backup in progress")

	// ErrNotAuthenticated rejects backups without an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrBackupPanicked wraps a panic raised by the engine.
	ErrBackupPanicked = errors.New("backup panicked")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Creator is the part of the engine the scheduler drives.
type Creator interface {
	CreateBackup(ctx context.Context, kind Kind) (*Backup, error)
	CleanOldBackups(ctx context.Context, retain int) (CleanupResult, error)
}

// Authenticator reports whether a user is logged in.
type Authenticator interface {
	IsAuthenticated() bool
}

// Settings is an immutable snapshot of the backup configuration.
type Settings struct {
	Enabled      bool
	Interval     time.Duration
	Retention    int
	LastBackupAt time.Time // persisted wall-clock time of the last success
}

// SettingsSource provides the configuration snapshot and records successes.
type SettingsSource interface {
	BackupSettings() Settings
	MarkBackupCompleted(at time.Time) error
}

// Recorder receives backup metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveBackup(trigger, result string, duration time.Duration)
	AddBackupsDeleted(n int)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Engine   Creator
	Settings SettingsSource
	Auth     Authenticator
	Notifier notify.Sink
	Recorder Recorder
}

// =============================================================================
// RESULT
// =============================================================================

// Trigger records why a backup attempt happened.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

func (t Trigger) kind() Kind {
	if t == TriggerManual {
		return KindManual
	}
	return KindAuto
}

// Outcome is the result of a poll or a manual trigger.
type Outcome int

const (
	// OutcomeSkipped means no backup was attempted.
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "success"
	case OutcomeFailed:
		return "failure"
	default:
		return "unknown"
	}
}

// Result describes one poll or manual trigger.
type Result struct {
	Trigger    Trigger
	Outcome    Outcome
	SkipReason string
	Backup     *Backup
	Deleted    int
	Err        error
}

func skipped(reason string) Result {
	return Result{Trigger: TriggerScheduled, Outcome: OutcomeSkipped, SkipReason: reason}
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Enabled      bool
	Interval     time.Duration
	Retention    int
	InFlight     bool
	LastBackupAt time.Time
	LastBackupID string
	LastError    error
	NextDue      time.Time
	PollEvery    time.Duration
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock for due checks and the poll job.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithPollInterval overrides the derived poll period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollOverride = d }
}

// Scheduler periodically checks whether a backup is due and takes it, with
// at most one backup in flight. The poll runs as a gocron duration job that
// is (re)created whenever the backup settings change.
type Scheduler struct {
	engine       Creator
	settings     SettingsSource
	auth         Authenticator
	notifier     notify.Sink
	recorder     Recorder
	clock        clockwork.Clock
	logger       *slog.Logger
	pollOverride time.Duration
	cron         gocron.Scheduler

	// ctx is shared by every poll job and cancelled only by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	// inFlight is held strictly between the start and the end of a backup.
	inFlight atomic.Bool

	mu        sync.Mutex
	started   bool
	stopped   bool
	applied   Settings
	jobID     uuid.UUID
	hasJob    bool
	pollEvery time.Duration
	lastMono  time.Time // clock reading of the last success in this process
	lastWall  time.Time
	lastID    string
	lastErr   error
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(deps Deps, opts ...Option) (*Scheduler, error) {
	if deps.Engine == nil || deps.Settings == nil || deps.Auth == nil {
		return nil, errors.New("backup scheduler requires engine, settings and auth")
	}

	s := &Scheduler{
		engine:   deps.Engine,
		settings: deps.Settings,
		auth:     deps.Auth,
		notifier: deps.Notifier,
		recorder: deps.Recorder,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.Discard
	}

	cron, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create backup scheduler: %w", err)
	}
	s.cron = cron
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start starts the job runner and applies the current settings.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.cron.Start()
	s.mu.Unlock()

	return s.Apply(s.settings.BackupSettings())
}

// Stop removes the poll job, waits for a running poll to finish and then
// cancels the context backups run under.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.hasJob = false
	s.mu.Unlock()

	err := s.cron.Shutdown()
	s.cancel()
	if err != nil {
		return fmt.Errorf("failed to stop backup scheduler: %w", err)
	}
	return nil
}

// Apply reacts to a settings change. Enabling starts the poll job with an
// immediate due check; disabling removes it; a new interval while enabled
// replaces the job.
func (s *Scheduler) Apply(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.applied
	s.applied = st
	if !s.started || s.stopped {
		return nil
	}

	switch {
	case !st.Enabled:
		if s.hasJob {
			s.removeJobLocked()
			s.logger.Info("backup event", "backup_event", "BACKUP_SCHEDULE_STOPPED")
		}
		return nil
	case s.hasJob && st.Interval == prev.Interval && s.pollEvery == s.pollPeriod(st.Interval):
		return nil
	}

	s.removeJobLocked()
	every := s.pollPeriod(st.Interval)
	job, err := s.cron.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { s.Poll(s.ctx) }),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule backup poll: %w", err)
	}
	s.jobID = job.ID()
	s.hasJob = true
	s.pollEvery = every

	s.logger.Info("backup event",
		"backup_event", "BACKUP_SCHEDULED",
		"interval", st.Interval.String(),
		"poll_every", every.String())
	return nil
}

func (s *Scheduler) removeJobLocked() {
	if !s.hasJob {
		return
	}
	if err := s.cron.RemoveJob(s.jobID); err != nil {
		s.logger.Debug("backup poll job already removed", "error", err)
	}
	s.hasJob = false
	s.pollEvery = 0
}

func (s *Scheduler) pollPeriod(interval time.Duration) time.Duration {
	if s.pollOverride > 0 {
		return s.pollOverride
	}
	every := interval / pollDivisor
	if every < MinPollInterval {
		every = MinPollInterval
	}
	if every > MaxPollInterval {
		every = MaxPollInterval
	}
	return every
}

// Poll runs one due check: authentication, enabled, due and in-flight checks
// in that order, then a backup, retention cleanup and one notification.
func (s *Scheduler) Poll(ctx context.Context) Result {
	if !s.auth.IsAuthenticated() {
		return skipped("unauthenticated")
	}
	st := s.settings.BackupSettings()
	if !st.Enabled {
		return skipped("disabled")
	}
	if !s.due(st) {
		return skipped("not due")
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return skipped("in progress")
	}
	// A concurrent poll may have finished a backup between the due check
	// and the guard.
	if !s.due(st) {
		s.inFlight.Store(false)
		return skipped("not due")
	}
	return s.run(ctx, TriggerScheduled, st)
}

// TriggerManual takes a backup now, regardless of the enabled flag and the
// interval. It fails with ErrBackupInProgress while another backup runs.
func (s *Scheduler) TriggerManual(ctx context.Context) (Result, error) {
	if !s.auth.IsAuthenticated() {
		return Result{Trigger: TriggerManual, Outcome: OutcomeSkipped, SkipReason: "unauthenticated"}, ErrNotAuthenticated
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{Trigger: TriggerManual, Outcome: OutcomeSkipped, SkipReason: "in progress"}, ErrBackupInProgress
	}
	res := s.run(ctx, TriggerManual, s.settings.BackupSettings())
	return res, res.Err
}

// InFlight reports whether a backup is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Status returns the scheduler state.
func (s *Scheduler) Status() Status {
	st := s.settings.BackupSettings()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Enabled:      st.Enabled,
		Interval:     st.Interval,
		Retention:    st.Retention,
		InFlight:     s.inFlight.Load(),
		LastBackupAt: s.lastWall,
		LastBackupID: s.lastID,
		LastError:    s.lastErr,
		PollEvery:    s.pollEvery,
	}
	if status.LastBackupAt.IsZero() || st.LastBackupAt.After(status.LastBackupAt) {
		status.LastBackupAt = st.LastBackupAt
	}
	if st.Enabled {
		if status.LastBackupAt.IsZero() {
			status.NextDue = s.clock.Now()
		} else {
			status.NextDue = status.LastBackupAt.Add(st.Interval)
		}
	}
	return status
}

// due reports whether the interval has passed since the last success. A
// success in this process is measured on the clock's monotonic reading; the
// persisted wall-clock time is used until then, or when another process
// recorded a newer backup.
func (s *Scheduler) due(st Settings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastMono
	if last.IsZero() || st.LastBackupAt.After(s.lastWall) {
		last = st.LastBackupAt
	}
	if last.IsZero() {
		return true
	}
	return s.clock.Since(last) >= st.Interval
}

// run performs a backup while holding inFlight. inFlight is released on every
// exit path, including a panic in the engine.
func (s *Scheduler) run(ctx context.Context, trigger Trigger, st Settings) (res Result) {
	start := s.clock.Now()
	res.Trigger = trigger
	reported := false

	defer s.inFlight.Store(false)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.logger.Error("backup panicked", "trigger", string(trigger), "panic", r)
		res.Outcome = OutcomeFailed
		res.Backup = nil
		res.Err = fmt.Errorf("%w: %v", ErrBackupPanicked, r)
		if !reported {
			s.report(res, start)
		}
	}()

	b, err := s.engine.CreateBackup(ctx, trigger.kind())
	if err == nil && b == nil {
		err = errors.New("engine returned no backup")
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		reported = true
		s.report(res, start)
		return res
	}

	s.mu.Lock()
	s.lastMono = s.clock.Now()
	s.lastWall = b.CreatedAt
	s.lastID = b.ID
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.settings.MarkBackupCompleted(b.CreatedAt); err != nil {
		s.logger.Warn("failed to persist last backup time", "backup_id", b.ID, "error", err)
	}

	if st.Retention > 0 {
		cleanup, err := s.engine.CleanOldBackups(ctx, st.Retention)
		if err != nil {
			s.logger.Warn("retention cleanup failed", "retain", st.Retention, "error", err)
		}
		res.Deleted = cleanup.Deleted
	}

	res.Outcome = OutcomeSucceeded
	res.Backup = b
	reported = true
	s.report(res, start)
	return res
}

// report emits exactly one notification and the metrics for an attempt.
func (s *Scheduler) report(res Result, start time.Time) {
	elapsed := s.clock.Since(start)
	if s.recorder != nil {
		s.recorder.ObserveBackup(string(res.Trigger), res.Outcome.String(), elapsed)
		if res.Deleted > 0 {
			s.recorder.AddBackupsDeleted(res.Deleted)
		}
	}

	if res.Outcome == OutcomeSucceeded {
		s.logger.Info("backup event",
			"backup_event", "BACKUP_COMPLETED",
			"trigger", string(res.Trigger),
			"backup_id", res.Backup.ID,
			"deleted", res.Deleted,
			"duration", elapsed)
		s.notifier.Notify("Backup created ("+res.Backup.ID+")", notify.LevelInfo)
		return
	}

	s.mu.Lock()
	s.lastErr = res.Err
	s.mu.Unlock()

	s.logger.Error("backup event",
		"backup_event", "BACKUP_FAILED",
		"trigger", string(res.Trigger),
		"error", res.Err)
	s.notifier.Notify("Backup failed: "+res.Err.Error(), notify.LevelError)
}
