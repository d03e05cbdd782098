// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the reusable pieces of the kiosk screens.
//
//   - SessionWarning: inactivity countdown and signed-out notice
//   - ToastManager: transient notifications fed from the notify queue
//   - SuggestionList: plate autocomplete dropdown
//   - StatusBar: operator, backup state and shortcuts
//
// Components hold no references to the application; the screen model feeds
// them state and reads their output.
package components
