// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the kiosk session lifecycle: idle detection,
// a cancellable warning countdown and forced logout.
//
// # Key Types
//
//   - Watchdog: reports an idle transition after a quiet period with no activity
//   - Countdown: fixed warning window with a whole-second remaining value
//   - Controller: the Active/Warning/LoggedOut state machine of record
//
// # Usage
//
// Create one controller per authenticated session:
//
//	ctrl, err := session.NewController(session.Timeouts{
//		Inactivity: 3 * time.Hour,
//		Warning:    5 * time.Minute,
//	}, session.Deps{Auth: store, Navigator: nav})
//	ctrl.Start()
//	defer ctrl.Cleanup()
//
// Forward user input:
//
//	ctrl.ResetTimer()
//
// Keep the session alive from the warning overlay:
//
//	if err := ctrl.Extend(); err != nil { ... }
//
// All timers run on an injectable clockwork.Clock; tests use a fake clock.
package session
