// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	// LabelStyle is used for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16)

	// ValueStyle is used for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	// DimStyle is used for secondary columns.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// printField writes an aligned "label value" line.
func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render(label+":"), ValueStyle.Render(fmt.Sprint(value)))
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, SuccessStyle.Render("[OK] "+fmt.Sprintf(format, args...)))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, WarningStyle.Render("[!] "+fmt.Sprintf(format, args...)))
}
