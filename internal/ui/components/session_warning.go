// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// SESSION WARNING OVERLAY
// =============================================================================

// SessionWarning is the modal countdown shown while an idle operator is
// about to be signed out. After a forced logout it switches to a "signed
// out" notice until dismissed.
type SessionWarning struct {
	visible   bool
	remaining time.Duration
	expired   bool

	width  int
	height int
}

// NewSessionWarning creates a hidden overlay.
func NewSessionWarning() SessionWarning {
	return SessionWarning{}
}

// SetSize sets the overlay dimensions.
func (o *SessionWarning) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// Show displays the countdown.
func (o *SessionWarning) Show(remaining time.Duration) {
	o.visible = true
	o.expired = false
	o.remaining = remaining
}

// ShowExpired displays the signed-out notice.
func (o *SessionWarning) ShowExpired() {
	o.visible = true
	o.expired = true
	o.remaining = 0
}

// Hide hides the overlay.
func (o *SessionWarning) Hide() {
	o.visible = false
	o.expired = false
}

// UpdateTime updates the countdown. Ignored while hidden.
func (o *SessionWarning) UpdateTime(remaining time.Duration) {
	if !o.visible || o.expired {
		return
	}
	o.remaining = remaining
}

// IsVisible returns whether the overlay is showing.
func (o *SessionWarning) IsVisible() bool {
	return o.visible
}

// IsExpired returns whether the signed-out notice is showing.
func (o *SessionWarning) IsExpired() bool {
	return o.visible && o.expired
}

// Remaining returns the displayed countdown.
func (o *SessionWarning) Remaining() time.Duration {
	return o.remaining
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// ExtendRequestMsg asks the session owner to extend the session.
type ExtendRequestMsg struct{}

// Update handles resize and key input. Any key while the countdown is
// showing requests an extension; any key dismisses the signed-out notice.
func (o SessionWarning) Update(msg tea.Msg) (SessionWarning, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height

	case tea.KeyMsg:
		if !o.visible {
			return o, nil
		}
		if o.expired {
			o.Hide()
			return o, nil
		}
		return o, func() tea.Msg { return ExtendRequestMsg{} }
	}
	return o, nil
}

// View renders the overlay, or "" while hidden.
func (o SessionWarning) View() string {
	if !o.visible {
		return ""
	}
	if o.expired {
		return o.render(styles.Rose,
			styles.StatusIndicators.Error+" Signed Out",
			"You were signed out after a period of inactivity.",
			"Press any key to sign in again")
	}

	timeStyle := lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true)
	return o.render(styles.Amber,
		styles.StatusIndicators.Warning+" Are you still there?",
		"You will be signed out in "+timeStyle.Render(util.FormatClock(o.remaining)),
		"Press any key to stay signed in")
}

func (o SessionWarning) render(accent lipgloss.AdaptiveColor, title, message, hint string) string {
	width := o.width
	if width == 0 {
		width = 60
	}
	height := o.height
	if height == 0 {
		height = 24
	}
	maxWidth := min(max(width-8, 40), 60)

	titleStyle := lipgloss.NewStyle().
		Foreground(accent).
		Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	hintStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Italic(true)

	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(title),
		"",
		msgStyle.Render(message),
		"",
		hintStyle.Render(hint),
	)

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center).
		Render(content)

	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		box,
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim),
	)
}
