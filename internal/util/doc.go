// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across gatelog.
//
//   - AtomicWriteFile: crash-safe writes for config, users and key files
//   - StringWidth, TruncateWidth, PadRight: terminal column arithmetic
//   - FormatClock: M:SS countdown text
package util
