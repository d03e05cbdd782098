// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	quiet   = 50 * time.Millisecond
)

func TestTimer_FiresOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := NewTimer(fc)

	var fired atomic.Int32
	tm.Arm(time.Minute, func() { fired.Add(1) })
	require.True(t, tm.Armed())

	fc.Advance(59 * time.Second)
	require.Never(t, func() bool { return fired.Load() > 0 }, quiet, tick)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)

	fc.Advance(time.Hour)
	require.Never(t, func() bool { return fired.Load() > 1 }, quiet, tick)
	require.False(t, tm.Armed())
}

func TestTimer_CancelBeforeExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := NewTimer(fc)

	var fired atomic.Int32
	tm.Arm(time.Second, func() { fired.Add(1) })
	tm.Cancel()
	tm.Cancel() // double cancel is a no-op

	fc.Advance(time.Minute)
	require.Never(t, func() bool { return fired.Load() > 0 }, quiet, tick)
	require.False(t, tm.Armed())
}

func TestTimer_RearmReplacesPendingCycle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := NewTimer(fc)

	var first, second atomic.Int32
	tm.Arm(time.Second, func() { first.Add(1) })
	tm.Arm(2*time.Second, func() { second.Add(1) })

	fc.Advance(time.Second)
	require.Never(t, func() bool { return first.Load() > 0 }, quiet, tick)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, tick)
	require.Zero(t, first.Load())
}

func TestTimer_CallbackMayRearm(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := NewTimer(fc)

	var count atomic.Int32
	var step func()
	step = func() {
		if count.Add(1) < 3 {
			tm.Arm(time.Second, step)
		}
	}
	tm.Arm(time.Second, step)

	for i := int32(1); i <= 3; i++ {
		want := i
		fc.Advance(time.Second)
		require.Eventually(t, func() bool { return count.Load() == want }, waitFor, tick)
	}
	require.False(t, tm.Armed())
}

func TestTimer_PanicIsRecovered(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := NewNamedTimer(fc, "panicky")

	var after atomic.Bool
	tm.Arm(time.Second, func() { panic("boom") })
	fc.Advance(time.Second)

	// The timer stays usable after a panicking callback.
	require.Eventually(t, func() bool { return !tm.Armed() }, waitFor, tick)
	tm.Arm(time.Second, func() { after.Store(true) })
	fc.Advance(time.Second)
	require.Eventually(t, after.Load, waitFor, tick)
}
