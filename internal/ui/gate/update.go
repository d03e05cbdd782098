// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gatelog/internal/auth"
	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/ui/components"
	"github.com/jeranaias/gatelog/internal/visitors"
)

// Update handles all messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.warning.SetSize(msg.Width, msg.Height)
		m.status.Width = msg.Width
		m.list.SetWidth(min(msg.Width-12, 60))
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	// Session events
	case SessionStateMsg:
		switch msg.State {
		case session.StateWarning:
			m.warning.Show(m.app.Remaining())
		case session.StateActive:
			if !m.warning.IsExpired() {
				m.warning.Hide()
			}
		}
		return m, nil

	case SessionTickMsg:
		m.warning.UpdateTime(msg.Remaining)
		return m, nil

	case NavigateLoginMsg:
		m.warning.ShowExpired()
		return m, m.enterLogin()

	case components.ExtendRequestMsg:
		m.extend()
		return m, nil

	// Autocomplete
	case SuggestionsMsg:
		if msg.Gen != m.fieldGen || m.screen != ScreenVisit || m.visitFocus != visitPlate {
			return m, nil
		}
		m.setMatches(msg.Items)
		return m, nil

	case PlateValueMsg:
		if msg.Gen == m.fieldGen {
			m.draftPlate = msg.Value
		}
		return m, nil

	// Toasts
	case NotificationMsg:
		m.toasts.Push(msg.Notification)
		return m, waitForNotification(m.app.Notifications())

	case components.ToastTickMsg:
		m.toasts.Tick()
		m.refreshStatus()
		return m, components.ToastTickCmd()

	// Command results
	case LoginResultMsg:
		m.signingIn = false
		if msg.Err != nil {
			m.loginErr = loginErrorText(msg.Err)
			m.login[loginPIN].SetValue("")
			m.login[loginCode].SetValue("")
			return m, m.focusLogin(loginPIN)
		}
		m.status.Operator = msg.Session.DisplayName
		if m.status.Operator == "" {
			m.status.Operator = msg.Session.User
		}
		return m, m.enterVisit()

	case BackupResultMsg:
		m.backing = false
		// Failures of an attempted backup arrive through the notify queue.
		if msg.Err != nil && msg.Result.Outcome == backup.OutcomeSkipped {
			m.toasts.Push(notify.Notification{Message: backupErrorText(msg.Err), Level: notify.LevelError})
		}
		m.refreshStatus()
		return m, nil

	case CheckInResultMsg:
		if msg.Err != nil {
			m.visitErr = checkInErrorText(msg.Err)
			return m, nil
		}
		m.toasts.Push(notify.Notification{Message: "Checked in " + msg.Visit.Plate, Level: notify.LevelInfo})
		m.resetVisitForm()
		return m, tea.Batch(m.focusVisit(visitPlate), m.recentCmd())

	case RecentMsg:
		m.recent = msg.Visits
		return m, nil
	}

	return m, m.updateFocused(msg)
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Quit) {
		return tea.Quit
	}

	// The warning overlay swallows every key.
	if m.warning.IsVisible() {
		var cmd tea.Cmd
		m.warning, cmd = m.warning.Update(msg)
		return cmd
	}

	if m.screen == ScreenLogin {
		return m.handleLoginKey(msg)
	}

	m.app.Activity()
	return m.handleVisitKey(msg)
}

func (m *Model) handleLoginKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.NextField), key.Matches(msg, m.keys.Down):
		return m.focusLogin(m.loginFocus + 1)
	case key.Matches(msg, m.keys.PrevField), key.Matches(msg, m.keys.Up):
		return m.focusLogin(m.loginFocus - 1)
	case key.Matches(msg, m.keys.Submit):
		if m.loginFocus == loginUser {
			return m.focusLogin(loginPIN)
		}
		return m.signIn()
	}
	return m.updateFocused(msg)
}

func (m *Model) handleVisitKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Backup):
		if m.backing {
			return nil
		}
		m.backing = true
		m.status.Backup = components.BackupRunning
		return m.backupCmd()

	case key.Matches(msg, m.keys.Extend):
		m.extend()
		return nil

	case key.Matches(msg, m.keys.Logout):
		m.app.Logout()
		return m.enterLogin()

	case key.Matches(msg, m.keys.Dismiss):
		m.toasts.DismissNewest()
		return nil

	case key.Matches(msg, m.keys.Save):
		return m.submitVisit()

	case msg.Type == tea.KeyEsc:
		m.matches = nil
		m.list.Clear()
		return nil

	case key.Matches(msg, m.keys.Up) && m.list.Len() > 0:
		m.list.Prev()
		return nil

	case key.Matches(msg, m.keys.Down) && m.list.Len() > 0:
		m.list.Next()
		return nil

	case key.Matches(msg, m.keys.Submit):
		if i, ok := m.list.Selected(); ok && m.visitFocus == visitPlate {
			return m.selectMatch(i)
		}
		if m.visitFocus == visitPurpose {
			return m.submitVisit()
		}
		return m.focusVisit(m.visitFocus + 1)

	case key.Matches(msg, m.keys.NextField):
		return m.focusVisit(m.visitFocus + 1)

	case key.Matches(msg, m.keys.PrevField):
		return m.focusVisit(m.visitFocus - 1)
	}
	return m.updateFocused(msg)
}

// updateFocused forwards msg to the focused input and reports plate edits
// to the autocomplete field.
func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if m.screen == ScreenLogin {
		m.login[m.loginFocus], cmd = m.login[m.loginFocus].Update(msg)
		return cmd
	}

	before := m.visit[m.visitFocus].Value()
	m.visit[m.visitFocus], cmd = m.visit[m.visitFocus].Update(msg)
	if m.visitFocus == visitPlate && m.field != nil {
		if after := m.visit[visitPlate].Value(); after != before {
			m.field.OnInputChange(after)
		}
	}
	return cmd
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m *Model) signIn() tea.Cmd {
	if m.signingIn {
		return nil
	}
	user := strings.TrimSpace(m.login[loginUser].Value())
	if user == "" {
		m.loginErr = "Enter your operator ID"
		return m.focusLogin(loginUser)
	}
	m.signingIn = true
	m.loginErr = ""
	return m.loginCmd(user, m.login[loginPIN].Value(), strings.TrimSpace(m.login[loginCode].Value()))
}

func (m *Model) extend() {
	err := m.app.Extend()
	switch {
	case err == nil:
		m.warning.Hide()
	case errors.Is(err, session.ErrNotInWarning):
		// Counted as activity.
	default:
		m.logger.Debug("extend rejected", "error", err)
	}
}

func (m *Model) setMatches(items []visitors.Visitor) {
	m.matches = items
	rows := make([]components.Suggestion, 0, len(items))
	for _, v := range items {
		detail := v.Name
		if v.Company != "" {
			detail += " · " + v.Company
		}
		rows = append(rows, components.Suggestion{Title: v.Plate, Detail: detail})
	}
	m.list.Set(rows)
}

// selectMatch auto-fills the form from a suggestion. The plate change that
// follows is reported to the field while its search suppression is up.
func (m *Model) selectMatch(i int) tea.Cmd {
	if m.field == nil || i >= len(m.matches) {
		return nil
	}
	item := m.matches[i]
	m.matches = nil
	m.list.Clear()

	field := m.field
	err := field.OnSelect(item, func(v visitors.Visitor) {
		m.fill(v)
		field.OnInputChange(v.Plate)
	})
	if err != nil {
		m.logger.Warn("autofill failed", "error", err)
		return nil
	}
	return m.focusVisit(visitPurpose)
}

func (m *Model) submitVisit() tea.Cmd {
	in := visitors.CheckIn{
		Plate:   strings.TrimSpace(m.visit[visitPlate].Value()),
		Name:    strings.TrimSpace(m.visit[visitName].Value()),
		Company: strings.TrimSpace(m.visit[visitCompany].Value()),
		Host:    strings.TrimSpace(m.visit[visitHost].Value()),
		Purpose: strings.TrimSpace(m.visit[visitPurpose].Value()),
	}
	switch {
	case visitors.PlateKey(in.Plate) == "":
		m.visitErr = "Plate is required"
		return m.focusVisit(visitPlate)
	case in.Name == "":
		m.visitErr = "Name is required"
		return m.focusVisit(visitName)
	}
	m.visitErr = ""
	return m.checkInCmd(in)
}

func (m *Model) refreshStatus() {
	st := m.app.BackupStatus()
	m.status.Now = m.clock.Now()
	m.status.LastBackup = st.LastBackupAt
	switch {
	case !st.Enabled && !m.backing:
		m.status.Backup = components.BackupDisabled
	case m.backing || st.InFlight:
		m.status.Backup = components.BackupRunning
	case st.LastError != nil:
		m.status.Backup = components.BackupFailed
	default:
		m.status.Backup = components.BackupIdle
	}
}

// =============================================================================
// ERROR TEXT
// =============================================================================

func loginErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrLockedOut):
		return "Too many attempts. Try again later."
	case errors.Is(err, auth.ErrTOTPRequired):
		return "Authenticator code required"
	case errors.Is(err, auth.ErrInvalidTOTP):
		return "Invalid authenticator code"
	default:
		return "Invalid operator ID or PIN"
	}
}

func backupErrorText(err error) string {
	switch {
	case errors.Is(err, backup.ErrBackupInProgress):
		return "A backup is already running"
	case errors.Is(err, backup.ErrNotAuthenticated):
		return "Sign in to run a backup"
	default:
		return "Backup failed: " + err.Error()
	}
}

func checkInErrorText(err error) string {
	switch {
	case errors.Is(err, visitors.ErrInvalidPlate):
		return "Plate is required"
	case errors.Is(err, visitors.ErrInvalidName):
		return "Name is required"
	default:
		return "Check-in failed: " + err.Error()
	}
}
