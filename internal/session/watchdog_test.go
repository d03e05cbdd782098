// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	settle  = 50 * time.Millisecond
)

// blockUntil waits for the fake clock to hold exactly n pending timers.
func blockUntil(t *testing.T, fc *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, n))
}

func TestWatchdog_FiresAfterQuietPeriod(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var idle atomic.Int32
	w := NewWatchdog(fc, 10*time.Second, func() { idle.Add(1) })
	w.Start()

	fc.Advance(9 * time.Second)
	require.Never(t, func() bool { return idle.Load() > 0 }, settle, tick)
	require.False(t, w.Idle())

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return idle.Load() == 1 }, waitFor, tick)
	require.True(t, w.Idle())

	// Fires once per quiet period.
	fc.Advance(time.Minute)
	require.Never(t, func() bool { return idle.Load() > 1 }, settle, tick)
}

func TestWatchdog_ActivityPostponesIdle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var idle atomic.Int32
	w := NewWatchdog(fc, 10*time.Second, func() { idle.Add(1) })
	w.Start()

	for i := 0; i < 20; i++ {
		fc.Advance(9 * time.Second)
		w.OnActivity()
	}
	require.Never(t, func() bool { return idle.Load() > 0 }, settle, tick)
	require.Equal(t, fc.Now(), w.LastActivity())
}

func TestWatchdog_ThrottledActivityStillCounts(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var idle atomic.Int32
	w := NewWatchdog(fc, 10*time.Second, func() { idle.Add(1) })
	w.Start()

	fc.Advance(5 * time.Second)
	w.OnActivity() // re-arms for t=15s
	fc.Advance(500 * time.Millisecond)
	w.OnActivity() // throttled: timestamp only

	fc.Advance(9500 * time.Millisecond)
	// The timer fires early and re-arms for the remaining 500ms.
	blockUntil(t, fc, 1)
	require.Zero(t, idle.Load())

	fc.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return idle.Load() == 1 }, waitFor, tick)
}

func TestWatchdog_ActivityWhileIdleStartsFreshPeriod(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var idle atomic.Int32
	w := NewWatchdog(fc, 10*time.Second, func() { idle.Add(1) })
	w.Start()

	fc.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return idle.Load() == 1 }, waitFor, tick)

	w.OnActivity()
	require.False(t, w.Idle())

	fc.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return idle.Load() == 2 }, waitFor, tick)
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var idle atomic.Int32
	w := NewWatchdog(fc, 10*time.Second, func() { idle.Add(1) })
	w.Start()
	w.Stop()
	w.Stop()

	w.OnActivity() // ignored once stopped
	fc.Advance(time.Minute)
	require.Never(t, func() bool { return idle.Load() > 0 }, settle, tick)
}
