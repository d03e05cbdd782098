// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strconv"
	"time"
)

// IntToString converts an int to string.
func IntToString(i int) string {
	return strconv.Itoa(i)
}

// FormatClock formats a countdown as M:SS, rounding partial seconds up so
// the display never shows 0:00 while time is left.
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	secs := int((d + time.Second - 1) / time.Second)
	s := secs % 60
	pad := ""
	if s < 10 {
		pad = "0"
	}
	return IntToString(secs/60) + ":" + pad + IntToString(s)
}
