// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gate is the kiosk terminal UI: the sign-in screen, the visitor
// check-in form with plate autocomplete, the inactivity warning and the
// notification toasts.
//
// Session events arrive through a Bridge installed as the kiosk listener;
// the model never touches timers itself.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/auth"
	"github.com/jeranaias/gatelog/internal/autofill"
	"github.com/jeranaias/gatelog/internal/backup"
	"github.com/jeranaias/gatelog/internal/notify"
	"github.com/jeranaias/gatelog/internal/session"
	"github.com/jeranaias/gatelog/internal/ui/components"
	"github.com/jeranaias/gatelog/internal/ui/styles"
	"github.com/jeranaias/gatelog/internal/visitors"
)

// RecentCount is the number of check-ins listed under the form.
const RecentCount = 5

// App is the part of the kiosk application the screens drive.
type App interface {
	Login(ctx context.Context, user, pin, code string) (*auth.Session, error)
	Logout()
	Activity()
	Extend() error
	SessionState() session.State
	Remaining() time.Duration
	CurrentUser() (auth.Session, bool)

	BackupNow(ctx context.Context) (backup.Result, error)
	BackupStatus() backup.Status

	NewPlateField(hooks autofill.Hooks[visitors.Visitor]) *autofill.Field[visitors.Visitor]
	CheckIn(ctx context.Context, in visitors.CheckIn) (visitors.Visit, error)
	Recent(ctx context.Context, n int) ([]visitors.Visit, error)

	Notifications() <-chan notify.Notification
}

// Options configures the screens.
type Options struct {
	SiteName string
	Notice   string // markdown
	Theme    string
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Screen is the active screen.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenVisit
)

// Login form fields.
const (
	loginUser = iota
	loginPIN
	loginCode
	loginFieldCount
)

// Visit form fields.
const (
	visitPlate = iota
	visitName
	visitCompany
	visitHost
	visitPurpose
	visitFieldCount
)

var visitLabels = [visitFieldCount]string{"Plate", "Name", "Company", "Host", "Purpose"}

// Model is the root Bubble Tea model.
type Model struct {
	app    App
	bridge *Bridge
	clock  clockwork.Clock
	logger *slog.Logger
	theme  *styles.Theme
	keys   KeyMap

	siteName string
	notice   string

	screen Screen
	width  int
	height int

	// Sign-in
	login      [loginFieldCount]textinput.Model
	loginFocus int
	loginErr   string
	signingIn  bool

	// Check-in
	visit      [visitFieldCount]textinput.Model
	visitFocus int
	visitErr   string
	field      *autofill.Field[visitors.Visitor]
	fieldGen   int
	matches    []visitors.Visitor
	list       *components.SuggestionList
	draftPlate string
	recent     []visitors.Visit

	// Overlays
	warning components.SessionWarning
	toasts  *components.ToastManager
	status  *components.StatusBar
	backing bool
}

// NewModel creates the root model on the sign-in screen.
func NewModel(app App, bridge *Bridge, opts Options) *Model {
	c := opts.Clock
	if c == nil {
		c = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	theme := styles.NewTheme(opts.Theme)

	m := &Model{
		app:      app,
		bridge:   bridge,
		clock:    c,
		logger:   logger,
		theme:    theme,
		keys:     DefaultKeyMap(),
		siteName: opts.SiteName,
		notice:   renderNotice(opts.Notice, theme),
		list:     components.NewSuggestionList(theme),
		warning:  components.NewSessionWarning(),
		toasts:   components.NewToastManager(c),
		status:   components.NewStatusBar(theme),
	}
	m.status.Shortcuts = m.keys.shortcuts()

	m.login[loginUser] = newInput("operator id", 32)
	m.login[loginPIN] = newInput("PIN", 12)
	m.login[loginPIN].EchoMode = textinput.EchoPassword
	m.login[loginPIN].EchoCharacter = '*'
	m.login[loginCode] = newInput("authenticator code, if enrolled", 6)

	for i := range m.visit {
		m.visit[i] = newInput(visitLabels[i], 64)
	}
	m.visit[visitPlate].CharLimit = 16

	m.login[loginUser].Focus()
	return m
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Prompt = ""
	in.Width = 32
	return in
}

// renderNotice renders the login notice markdown. Plain text is used when
// rendering fails.
func renderNotice(md string, theme *styles.Theme) string {
	if md == "" {
		return ""
	}
	style := styles.ThemeLight
	if theme.IsDark {
		style = styles.ThemeDark
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(60),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Screen returns the active screen.
func (m *Model) Screen() Screen {
	return m.screen
}

// Init starts the toast pump and the cursor blink.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		components.ToastTickCmd(),
		waitForNotification(m.app.Notifications()),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

func waitForNotification(ch <-chan notify.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return NotificationMsg{Notification: n}
	}
}

func (m *Model) loginCmd(user, pin, code string) tea.Cmd {
	app := m.app
	return func() tea.Msg {
		sess, err := app.Login(context.Background(), user, pin, code)
		return LoginResultMsg{Session: sess, Err: err}
	}
}

func (m *Model) backupCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		res, err := app.BackupNow(context.Background())
		return BackupResultMsg{Result: res, Err: err}
	}
}

func (m *Model) checkInCmd(in visitors.CheckIn) tea.Cmd {
	app := m.app
	return func() tea.Msg {
		v, err := app.CheckIn(context.Background(), in)
		return CheckInResultMsg{Visit: v, Err: err}
	}
}

func (m *Model) recentCmd() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		visits, err := app.Recent(context.Background(), RecentCount)
		if err != nil {
			return nil
		}
		return RecentMsg{Visits: visits}
	}
}

// =============================================================================
// SCREEN TRANSITIONS
// =============================================================================

// enterVisit opens the check-in form with a fresh autocomplete field.
func (m *Model) enterVisit() tea.Cmd {
	m.screen = ScreenVisit
	m.loginErr = ""
	for i := range m.login {
		m.login[i].SetValue("")
	}
	m.resetVisitForm()
	m.openField()
	return tea.Batch(m.focusVisit(visitPlate), m.recentCmd())
}

// enterLogin returns to the sign-in screen and releases the field.
func (m *Model) enterLogin() tea.Cmd {
	m.screen = ScreenLogin
	m.closeField()
	m.resetVisitForm()
	m.recent = nil
	m.status.Operator = ""
	m.signingIn = false
	for i := range m.login {
		m.login[i].SetValue("")
	}
	return m.focusLogin(loginUser)
}

func (m *Model) openField() {
	m.closeField()
	m.fieldGen++
	gen := m.fieldGen
	bridge := m.bridge
	m.field = m.app.NewPlateField(autofill.Hooks[visitors.Visitor]{
		Propagate: func(value string) {
			bridge.Send(PlateValueMsg{Gen: gen, Value: value})
		},
		Suggestions: func(items []visitors.Visitor) {
			bridge.Send(SuggestionsMsg{Gen: gen, Items: items})
		},
	})
}

func (m *Model) closeField() {
	if m.field != nil {
		m.field.Close()
		m.field = nil
	}
	m.matches = nil
	m.list.Clear()
}

func (m *Model) resetVisitForm() {
	for i := range m.visit {
		m.visit[i].SetValue("")
	}
	m.visitErr = ""
	m.draftPlate = ""
	m.matches = nil
	m.list.Clear()
}

func (m *Model) focusLogin(i int) tea.Cmd {
	m.loginFocus = (i + loginFieldCount) % loginFieldCount
	for j := range m.login {
		m.login[j].Blur()
	}
	return m.login[m.loginFocus].Focus()
}

func (m *Model) focusVisit(i int) tea.Cmd {
	m.visitFocus = (i + visitFieldCount) % visitFieldCount
	for j := range m.visit {
		m.visit[j].Blur()
	}
	if m.visitFocus != visitPlate {
		m.matches = nil
		m.list.Clear()
	}
	return m.visit[m.visitFocus].Focus()
}

// fill copies a known visitor into the form.
func (m *Model) fill(v visitors.Visitor) {
	m.visit[visitPlate].SetValue(v.Plate)
	m.visit[visitName].SetValue(v.Name)
	m.visit[visitCompany].SetValue(v.Company)
	m.visit[visitHost].SetValue(v.Host)
}
