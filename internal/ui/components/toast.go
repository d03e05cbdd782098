// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/util"
)

// Toast display durations. Errors stay longer so they can be read.
const (
	InfoToastDuration  = 4 * time.Second
	ErrorToastDuration = 8 * time.Second
)

// DefaultMaxToasts is the number of toasts shown at once.
const DefaultMaxToasts = 3

// =============================================================================
// TOAST
// =============================================================================

// Toast is a notification on screen.
type Toast struct {
	ID        string
	Message   string
	Level     notify.Level
	CreatedAt time.Time
	Duration  time.Duration
}

// ToastFromNotification converts a queued notification. The display timer
// starts at now, not at the notification time.
func ToastFromNotification(n notify.Notification, now time.Time) Toast {
	d := InfoToastDuration
	if n.Level == notify.LevelError {
		d = ErrorToastDuration
	}
	return Toast{
		ID:        n.ID,
		Message:   n.Message,
		Level:     n.Level,
		CreatedAt: now,
		Duration:  d,
	}
}

// Expired reports whether the toast should be dismissed at now.
func (t Toast) Expired(now time.Time) bool {
	return now.Sub(t.CreatedAt) >= t.Duration
}

// =============================================================================
// TOAST MANAGER
// =============================================================================

// ToastManager holds the visible toasts, newest first.
type ToastManager struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	toasts    []Toast
	maxToasts int
}

// NewToastManager creates a manager. A nil clock uses the real clock.
func NewToastManager(c clockwork.Clock) *ToastManager {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &ToastManager{clock: c, maxToasts: DefaultMaxToasts}
}

// Push shows a notification.
func (m *ToastManager) Push(n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.toasts = append([]Toast{ToastFromNotification(n, m.clock.Now())}, m.toasts...)
	if len(m.toasts) > m.maxToasts {
		m.toasts = m.toasts[:m.maxToasts]
	}
}

// Tick drops expired toasts and returns the rest.
func (m *ToastManager) Tick() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	active := m.toasts[:0]
	for _, t := range m.toasts {
		if !t.Expired(now) {
			active = append(active, t)
		}
	}
	m.toasts = active
	return append([]Toast(nil), m.toasts...)
}

// DismissNewest removes the most recent toast.
func (m *ToastManager) DismissNewest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.toasts) > 0 {
		m.toasts = m.toasts[1:]
	}
}

// Toasts returns a copy of the visible toasts.
func (m *ToastManager) Toasts() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Toast(nil), m.toasts...)
}

// =============================================================================
// TOAST MESSAGES
// =============================================================================

// ToastTickMsg is sent periodically to expire toasts.
type ToastTickMsg struct {
	Time time.Time
}

// ToastTickCmd ticks toasts every 250ms.
func ToastTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return ToastTickMsg{Time: t}
	})
}

// =============================================================================
// TOAST RENDERING
// =============================================================================

// RenderToast renders a single toast.
func RenderToast(t Toast, width int) string {
	maxWidth := 60
	if width > 0 && width-4 < maxWidth {
		maxWidth = width - 4
	}
	if maxWidth < 24 {
		maxWidth = 24
	}

	accent := styles.Cyan
	icon := styles.StatusIndicators.Info
	if t.Level == notify.LevelError {
		accent = styles.Rose
		icon = styles.StatusIndicators.Error
	}

	iconStyle := lipgloss.NewStyle().
		Foreground(accent).
		Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	content := iconStyle.Render(icon+" ") + msgStyle.Render(util.TruncateWidth(t.Message, maxWidth-8))

	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(content)
}

// RenderToastStack renders toasts right-aligned, newest at the bottom.
func RenderToastStack(toasts []Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for i := len(toasts) - 1; i >= 0; i-- {
		rendered = append(rendered, RenderToast(toasts[i], width))
	}
	stack := lipgloss.JoinVertical(lipgloss.Right, rendered...)
	if width > 0 {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, stack)
	}
	return stack
}
