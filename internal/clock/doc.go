// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clock provides the cancellable timer primitive used by the kiosk's
// session and backup subsystems.
//
// All scheduling goes through a clockwork.Clock so production code runs on
// the wall clock while tests drive a clockwork.FakeClock deterministically.
//
// # Key Types
//
//   - Timer: single-shot, re-armable, idempotently cancellable timer
//
// # Usage
//
//	t := clock.NewTimer(clock.New())
//	t.Arm(5*time.Minute, func() { ... })
//	defer t.Cancel()
//
// Repeating schedules are built by re-arming from inside the callback.
package clock
