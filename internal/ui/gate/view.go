// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gatelog/internal/ui/components"
	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/util"
)

// View renders the active screen with its overlays.
func (m *Model) View() string {
	if m.warning.IsVisible() {
		return m.warning.View()
	}

	var body string
	if m.screen == ScreenLogin {
		body = m.viewLogin()
	} else {
		body = m.viewVisit()
	}

	parts := []string{m.viewHeader(), body}
	if toasts := components.RenderToastStack(m.toasts.Toasts(), m.width); toasts != "" {
		parts = append(parts, toasts)
	}
	if m.screen == ScreenVisit {
		parts = append(parts, m.status.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) viewHeader() string {
	title := m.theme.HeaderTitle.Render(m.siteName)
	header := m.theme.Header
	if m.width > 0 {
		header = header.Width(m.width)
	}
	return header.Render(title + m.theme.ShortcutDesc.Render("  visitor log"))
}

func (m *Model) viewLogin() string {
	labels := [loginFieldCount]string{"Operator", "PIN", "Code"}
	rows := []string{m.theme.PanelTitle.Render("Sign in")}
	for i := range m.login {
		rows = append(rows, m.fieldRow(labels[i], m.login[i].View(), i == m.loginFocus))
	}
	if m.loginErr != "" {
		rows = append(rows, "", m.theme.ErrorStyle.Render(styles.StatusIndicators.Error+" "+m.loginErr))
	}
	if m.signingIn {
		rows = append(rows, "", m.theme.Hint.Render("Signing in..."))
	}

	panel := m.theme.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	if m.notice == "" {
		return panel
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.theme.Notice.Render(strings.TrimRight(m.notice, "\n")), panel)
}

func (m *Model) viewVisit() string {
	rows := []string{m.theme.PanelTitle.Render("Check in")}
	for i := range m.visit {
		rows = append(rows, m.fieldRow(visitLabels[i], m.visit[i].View(), i == m.visitFocus))
		if i == visitPlate {
			if list := m.list.View(); list != "" {
				rows = append(rows, list)
			}
		}
	}
	if m.visitErr != "" {
		rows = append(rows, "", m.theme.ErrorStyle.Render(styles.StatusIndicators.Error+" "+m.visitErr))
	}
	form := m.theme.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	if len(m.recent) == 0 {
		return form
	}
	recent := []string{m.theme.PanelTitle.Render("Recent")}
	for _, v := range m.recent {
		line := v.CheckedInAt.Local().Format("15:04") + "  " + util.PadRight(v.Plate, 10) + " " + v.Purpose
		recent = append(recent, util.TruncateWidth(line, 40))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, form, m.theme.Panel.Render(strings.Join(recent, "\n")))
}

func (m *Model) fieldRow(label, input string, focused bool) string {
	style := m.theme.Label
	if focused {
		style = m.theme.LabelFocus
	}
	return style.Render(label) + input
}
