// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// BackupState is the backup indicator shown in the status bar.
type BackupState int

const (
	BackupIdle BackupState = iota
	BackupRunning
	BackupFailed
	BackupDisabled
)

// String returns the display string for the state.
func (s BackupState) String() string {
	switch s {
	case BackupIdle:
		return "Backup OK"
	case BackupRunning:
		return "Backing up..."
	case BackupFailed:
		return "Backup failed"
	case BackupDisabled:
		return "Backups off"
	default:
		return "Unknown"
	}
}

// Icon returns the ASCII indicator for the state.
func (s BackupState) Icon() string {
	switch s {
	case BackupIdle:
		return styles.StatusIndicators.Success
	case BackupRunning:
		return styles.StatusIndicators.Active
	case BackupFailed:
		return styles.StatusIndicators.Error
	default:
		return styles.StatusIndicators.Info
	}
}

// StatusBar is the bottom line of the kiosk screen.
type StatusBar struct {
	Operator   string
	Backup     BackupState
	LastBackup time.Time
	Now        time.Time
	Width      int
	Shortcuts  [][2]string
	theme      *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{Width: 80, theme: theme}
}

// View renders the status bar. Narrow terminals drop the shortcuts.
func (s *StatusBar) View() string {
	left := []string{s.backupText()}
	if s.Operator != "" {
		left = append([]string{s.theme.HeaderUser.Render(styles.StatusIndicators.Active + " " + s.Operator)}, left...)
	}
	leftText := strings.Join(left, "  ")

	var right string
	if s.Width >= 60 {
		parts := make([]string, 0, len(s.Shortcuts))
		for _, sc := range s.Shortcuts {
			parts = append(parts, s.theme.Shortcut(sc[0], sc[1]))
		}
		right = strings.Join(parts, "  ")
	}

	gap := s.Width - lipgloss.Width(leftText) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = 1
	}
	return s.theme.StatusBar.
		Width(s.Width).
		Render(leftText + strings.Repeat(" ", gap) + right)
}

func (s *StatusBar) backupText() string {
	style := s.theme.SuccessStyle
	switch s.Backup {
	case BackupRunning:
		style = s.theme.WarningStyle
	case BackupFailed:
		style = s.theme.ErrorStyle
	case BackupDisabled:
		style = s.theme.ShortcutDesc
	}
	text := style.Render(s.Backup.Icon() + " " + s.Backup.String())
	if s.Backup == BackupIdle && !s.LastBackup.IsZero() && !s.Now.IsZero() {
		text += s.theme.ShortcutDesc.Render(" " + Ago(s.Now.Sub(s.LastBackup)))
	}
	return text
}

// Ago formats an elapsed time for the status bar.
func Ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return util.IntToString(int(d.Minutes())) + "m ago"
	case d < 48*time.Hour:
		return util.IntToString(int(d.Hours())) + "h ago"
	default:
		return util.IntToString(int(d.Hours()/24)) + "d ago"
	}
}
