// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a single user-visible message.
type Notification struct {
	ID      string
	Message string
	Level   Level
	At      time.Time
}

// Sink accepts notifications. Notify must not block.
type Sink interface {
	Notify(message string, level Level)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, level Level)

// Notify calls f.
func (f SinkFunc) Notify(message string, level Level) { f(message, level) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(string, Level) {})

// =============================================================================
// QUEUE
// =============================================================================

// DefaultQueueSize is the buffer of a Queue created with size <= 0.
const DefaultQueueSize = 32

// Queue buffers notifications for a consumer such as the terminal UI.
// When the buffer is full new notifications are dropped and counted.
type Queue struct {
	ch      chan Notification
	clock   clockwork.Clock
	dropped atomic.Uint64
}

// NewQueue creates a queue. A nil clock uses the real clock.
func NewQueue(size int, c clockwork.Clock) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Queue{ch: make(chan Notification, size), clock: c}
}

// Notify enqueues a notification without blocking.
func (q *Queue) Notify(message string, level Level) {
	n := Notification{
		ID:      uuid.NewString(),
		Message: message,
		Level:   level,
		At:      q.clock.Now(),
	}
	select {
	case q.ch <- n:
	default:
		q.dropped.Add(1)
		slog.Warn("notification dropped, queue full", "message", message, "level", level.String())
	}
}

// C returns the receive side of the queue.
func (q *Queue) C() <-chan Notification {
	return q.ch
}

// Dropped returns how many notifications were dropped.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// =============================================================================
// LOG SINK / FAN-OUT
// =============================================================================

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs the message at info or error level.
func (s LogSink) Notify(message string, level Level) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if level == LevelError {
		logger.Error("notification", "message", message)
		return
	}
	logger.Info("notification", "message", message)
}

// Multi fans a notification out to every sink.
type Multi []Sink

// Notify forwards to each non-nil sink.
func (m Multi) Notify(message string, level Level) {
	for _, s := range m {
		if s != nil {
			s.Notify(message, level)
		}
	}
}
