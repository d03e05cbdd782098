// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package autofill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
	"github.com/jeranaias/gatelog/internal/util"
)

const (
	// DefaultSearchDelay is the debounce before a query is executed.
	DefaultSearchDelay = 300 * time.Millisecond

	// DefaultPropagateDelay is the debounce before the typed value is pushed
	// upstream.
	DefaultPropagateDelay = 150 * time.Millisecond

	// DefaultGrace is how long suppression outlives an auto-fill.
	DefaultGrace = 350 * time.Millisecond

	// DefaultSearchTimeout bounds a single query.
	DefaultSearchTimeout = 2 * time.Second
)

// ErrClosed is returned by operations on a closed Field.
var ErrClosed = errors.New("autofill: field closed")

// Searcher returns candidates for a partial key.
type Searcher[T any] interface {
	Search(ctx context.Context, partial string) ([]T, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc[T any] func(ctx context.Context, partial string) ([]T, error)

// Search calls f.
func (f SearchFunc[T]) Search(ctx context.Context, partial string) ([]T, error) {
	return f(ctx, partial)
}

// Recorder receives search metrics. A nil Recorder is allowed.
type Recorder interface {
	IncSearchQuery(outcome string)
}

// Config holds the timing of a Field. Zero values take the defaults.
type Config struct {
	SearchDelay    time.Duration
	PropagateDelay time.Duration
	Grace          time.Duration
	SearchTimeout  time.Duration

	// MinQueryLen is the shortest trimmed input that is searched.
	MinQueryLen int
}

// DefaultConfig returns the kiosk timings.
func DefaultConfig() Config {
	return Config{
		SearchDelay:    DefaultSearchDelay,
		PropagateDelay: DefaultPropagateDelay,
		Grace:          DefaultGrace,
		SearchTimeout:  DefaultSearchTimeout,
		MinQueryLen:    1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SearchDelay <= 0 {
		c.SearchDelay = d.SearchDelay
	}
	if c.PropagateDelay <= 0 {
		c.PropagateDelay = d.PropagateDelay
	}
	if c.Grace <= 0 {
		c.Grace = d.Grace
	}
	// The guard must still be up when a fill-triggered search would run.
	if c.Grace < c.SearchDelay {
		c.Grace = c.SearchDelay
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.MinQueryLen <= 0 {
		c.MinQueryLen = d.MinQueryLen
	}
	return c
}

// Hooks receive Field output. Every hook runs outside the Field lock, on a
// timer goroutine unless stated otherwise.
type Hooks[T any] struct {
	// Propagate receives the debounced input value.
	Propagate func(value string)

	// Suggestions receives new search results, or nil when they are cleared.
	// Clearing on input or selection runs on the caller's goroutine.
	Suggestions func(items []T)
}

// Option configures a Field.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder Recorder
}

// WithClock sets the clock for all debounce and grace timers.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger for search failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// =============================================================================
// FIELD
// =============================================================================

// Field is an autocomplete input. Typing schedules a debounced search and a
// separately debounced value propagation. Selecting a suggestion auto-fills
// the form with suppression raised, so the programmatic value change that
// follows does not search again.
type Field[T any] struct {
	cfg      Config
	searcher Searcher[T]
	hooks    Hooks[T]
	logger   *slog.Logger
	recorder Recorder

	search    *Debouncer
	propagate *Debouncer
	grace     *clock.Timer

	mu          sync.Mutex
	text        string
	suggestions []T
	suppressed  bool
	seq         uint64
	cancelQuery context.CancelFunc
	closed      bool
}

// NewField creates an autocomplete field backed by searcher.
func NewField[T any](searcher Searcher[T], cfg Config, hooks Hooks[T], opts ...Option) *Field[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	c := clock.OrReal(o.clock)
	if o.logger == nil {
		o.logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Field[T]{
		cfg:       cfg,
		searcher:  searcher,
		hooks:     hooks,
		logger:    o.logger,
		recorder:  o.recorder,
		search:    NewDebouncer(c, "autofill-search", cfg.SearchDelay),
		propagate: NewDebouncer(c, "autofill-propagate", cfg.PropagateDelay),
		grace:     clock.NewNamedTimer(c, "autofill-grace"),
	}
}

// OnInputChange records new input. The value is always propagated; the
// search is skipped while suppression is raised.
func (f *Field[T]) OnInputChange(text string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.text = text
	f.propagate.Call(func() { f.emitValue(text) })

	if f.suppressed {
		f.mu.Unlock()
		return
	}
	f.cancelQueryLocked()
	if util.RuneLen(strings.TrimSpace(text)) >= f.cfg.MinQueryLen {
		f.search.Call(func() { f.runSearch(text) })
		f.mu.Unlock()
		return
	}

	// Too short to search: drop pending work and clear the list.
	f.search.Cancel()
	f.seq++
	hadSuggestions := f.suggestions != nil
	f.suggestions = nil
	f.mu.Unlock()

	if hadSuggestions {
		f.emitSuggestions(nil)
	}
}

// OnSelect auto-fills from item. Suppression is raised before fill runs and
// cleared after the grace delay, even if fill panics.
func (f *Field[T]) OnSelect(item T, fill func(T)) (err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.suppressed = true
	f.search.Cancel()
	f.cancelQueryLocked()
	f.seq++
	f.suggestions = nil
	f.mu.Unlock()

	defer f.armGrace()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autofill: fill panicked: %v", r)
			f.logger.Error("autofill fill panicked", "panic", r)
		}
	}()

	f.emitSuggestions(nil)
	if fill != nil {
		fill(item)
	}
	return nil
}

// Suppressed reports whether search suppression is raised.
func (f *Field[T]) Suppressed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

// Text returns the latest input.
func (f *Field[T]) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

// Suggestions returns the current suggestions.
func (f *Field[T]) Suggestions() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]T, len(f.suggestions))
	copy(out, f.suggestions)
	return out
}

// Close cancels every pending timer and in-flight query.
func (f *Field[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.suppressed = false
	f.search.Cancel()
	f.propagate.Cancel()
	f.grace.Cancel()
	f.cancelQueryLocked()
	f.seq++
}

// armGrace schedules the suppression release unless the field was closed
// while fill ran.
func (f *Field[T]) armGrace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.grace.Arm(f.cfg.Grace, f.release)
}

func (f *Field[T]) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = false
}

func (f *Field[T]) cancelQueryLocked() {
	if f.cancelQuery != nil {
		f.cancelQuery()
		f.cancelQuery = nil
	}
}

func (f *Field[T]) runSearch(text string) {
	f.mu.Lock()
	if f.closed || f.suppressed {
		f.mu.Unlock()
		return
	}
	f.seq++
	seq := f.seq
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.SearchTimeout)
	f.cancelQuery = cancel
	f.mu.Unlock()
	defer cancel()

	items, err := f.searcher.Search(ctx, strings.TrimSpace(text))

	f.mu.Lock()
	if seq != f.seq || f.closed || f.suppressed {
		f.mu.Unlock()
		f.record("stale")
		return
	}
	f.cancelQuery = nil
	if err != nil {
		f.mu.Unlock()
		f.record("error")
		if !errors.Is(err, context.Canceled) {
			f.logger.Warn("autocomplete search failed", "query", text, "error", err)
		}
		return
	}
	f.suggestions = items
	f.mu.Unlock()

	f.record("ok")
	f.emitSuggestions(items)
}

func (f *Field[T]) emitValue(text string) {
	if f.hooks.Propagate != nil {
		f.hooks.Propagate(text)
	}
}

func (f *Field[T]) emitSuggestions(items []T) {
	if f.hooks.Suggestions != nil {
		f.hooks.Suggestions(items)
	}
}

func (f *Field[T]) record(outcome string) {
	if f.recorder != nil {
		f.recorder.IncSearchQuery(outcome)
	}
}
