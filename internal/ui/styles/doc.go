// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and lipgloss styles of the gatelog
kiosk screens.

Colors are lipgloss AdaptiveColor values. The theme in ui.theme picks the
light or dark variant; terminal detection through termenv is used when the
setting is neither.

	theme := styles.NewTheme(cfg.UI.Theme)
	header := theme.Header.Render(theme.HeaderTitle.Render(cfg.UI.SiteName))

State is always shown with an ASCII indicator next to the color, see
StatusIndicators.
*/
package styles
