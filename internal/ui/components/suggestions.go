// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// SUGGESTION LIST
// =============================================================================

// Suggestion is one row of the autocomplete dropdown.
type Suggestion struct {
	Title  string
	Detail string
}

// SuggestionList is the dropdown under an autocomplete field.
type SuggestionList struct {
	items      []Suggestion
	selected   int
	maxVisible int
	width      int
	theme      *styles.Theme
}

// NewSuggestionList creates an empty list.
func NewSuggestionList(theme *styles.Theme) *SuggestionList {
	return &SuggestionList{
		maxVisible: 8,
		width:      50,
		theme:      theme,
	}
}

// Set replaces the items and selects the first one.
func (l *SuggestionList) Set(items []Suggestion) {
	l.items = items
	l.selected = 0
}

// Clear removes all items.
func (l *SuggestionList) Clear() {
	l.items = nil
	l.selected = 0
}

// Len returns the number of items.
func (l *SuggestionList) Len() int {
	return len(l.items)
}

// Next selects the next item, wrapping around.
func (l *SuggestionList) Next() {
	if len(l.items) == 0 {
		return
	}
	l.selected = (l.selected + 1) % len(l.items)
}

// Prev selects the previous item, wrapping around.
func (l *SuggestionList) Prev() {
	if len(l.items) == 0 {
		return
	}
	l.selected--
	if l.selected < 0 {
		l.selected = len(l.items) - 1
	}
}

// Selected returns the index of the highlighted item.
func (l *SuggestionList) Selected() (int, bool) {
	if len(l.items) == 0 {
		return 0, false
	}
	return l.selected, true
}

// SetWidth sets the dropdown width.
func (l *SuggestionList) SetWidth(width int) {
	l.width = width
}

// View renders the dropdown, or "" when empty.
func (l *SuggestionList) View() string {
	if len(l.items) == 0 {
		return ""
	}

	// Keep the selection in the visible window.
	start := 0
	if l.selected >= l.maxVisible {
		start = l.selected - l.maxVisible + 1
	}
	end := min(start+l.maxVisible, len(l.items))

	inner := max(l.width-4, 10)
	var rows []string
	for i := start; i < end; i++ {
		item := l.items[i]
		line := item.Title
		if item.Detail != "" {
			line += "  " + l.theme.SuggestionMeta.Render(item.Detail)
		}
		line = util.TruncateWidth(line, inner)
		if i == l.selected {
			rows = append(rows, l.theme.SuggestionSelected.Render(util.PadRight(line, inner)))
		} else {
			rows = append(rows, l.theme.SuggestionItem.Render(line))
		}
	}
	if len(l.items) > l.maxVisible {
		rows = append(rows, l.theme.Hint.Render("  "+util.IntToString(len(l.items))+" matches"))
	}
	return l.theme.SuggestionBox.Render(strings.Join(rows, "\n"))
}
