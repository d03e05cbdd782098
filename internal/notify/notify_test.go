// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrder(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := NewQueue(4, fc)

	q.Notify("Backup created", LevelInfo)
	q.Notify("Backup failed: disk full", LevelError)

	first := <-q.C()
	second := <-q.C()
	assert.Equal(t, "Backup created", first.Message)
	assert.Equal(t, LevelInfo, first.Level)
	assert.Equal(t, fc.Now(), first.At)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, LevelError, second.Level)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(1, nil)

	q.Notify("one", LevelInfo)
	q.Notify("two", LevelInfo)
	q.Notify("three", LevelInfo)

	require.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, "one", (<-q.C()).Message)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	sink.Notify("Backup created", LevelInfo)
	sink.Notify("Backup failed", LevelError)

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `message="Backup failed"`)
}

func TestMulti(t *testing.T) {
	var got []string
	record := SinkFunc(func(msg string, _ Level) { got = append(got, msg) })

	Multi{record, nil, Discard, record}.Notify("hello", LevelInfo)
	assert.Equal(t, []string{"hello", "hello"}, got)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(9).String())
}
