// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds the styled components of the kiosk screens.
type Theme struct {
	Name         string
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header and status bar
	Header       lipgloss.Style
	HeaderTitle  lipgloss.Style
	HeaderUser   lipgloss.Style
	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// Forms
	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	Label      lipgloss.Style
	LabelFocus lipgloss.Style
	Hint       lipgloss.Style
	Notice     lipgloss.Style

	// Suggestions
	SuggestionBox      lipgloss.Style
	SuggestionItem     lipgloss.Style
	SuggestionSelected lipgloss.Style
	SuggestionMeta     lipgloss.Style

	// State
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
}

// NewTheme creates a theme. name is "dark" or "light"; anything else
// follows the terminal background.
func NewTheme(name string) *Theme {
	colorProfile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch name {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Name:         name,
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.HeaderUser = lipgloss.NewStyle().
		Foreground(Emerald)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Panel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 2)
	t.PanelTitle = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Bold(true).
		MarginBottom(1)
	t.Label = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(10)
	t.LabelFocus = t.Label.
		Foreground(Cyan).
		Bold(true)
	t.Hint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)
	t.Notice = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.SuggestionBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Overlay).
		MarginLeft(10)
	t.SuggestionItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)
	t.SuggestionSelected = t.SuggestionItem.
		Background(SelectionBg).
		Bold(true)
	t.SuggestionMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.SuccessStyle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.InfoStyle = lipgloss.NewStyle().Foreground(Cyan)
}

// Shortcut renders a "key desc" pair for the status bar.
func (t *Theme) Shortcut(key, desc string) string {
	return t.ShortcutKey.Render(key) + " " + t.ShortcutDesc.Render(desc)
}
