// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the kiosk key bindings.
type KeyMap struct {
	NextField key.Binding
	PrevField key.Binding
	Up        key.Binding
	Down      key.Binding
	Submit    key.Binding
	Save      key.Binding
	Backup    key.Binding
	Extend    key.Binding
	Logout    key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextField: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-Tab", "previous field"),
		),
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("Up", "previous match"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("Down", "next match"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "select / submit"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("^S", "check in"),
		),
		Backup: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("^B", "backup"),
		),
		Extend: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("^E", "stay signed in"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("^L", "sign out"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("^X", "dismiss"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("^Q", "quit"),
		),
	}
}

// shortcuts returns the status bar hints for the visit screen.
func (k KeyMap) shortcuts() [][2]string {
	out := make([][2]string, 0, 4)
	for _, b := range []key.Binding{k.Save, k.Backup, k.Logout, k.Quit} {
		h := b.Help()
		out = append(out, [2]string{h.Key, h.Desc})
	}
	return out
}
