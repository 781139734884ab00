package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/keys"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/stream"
	"github.com/nhle/gigbell/internal/theme"
	"github.com/nhle/gigbell/internal/ui"
	"github.com/nhle/gigbell/internal/ui/bell"
	"github.com/nhle/gigbell/internal/ui/command"
	"github.com/nhle/gigbell/internal/ui/detail"
	helpview "github.com/nhle/gigbell/internal/ui/help"
	"github.com/nhle/gigbell/internal/ui/signin"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewDashboard ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
	ViewSignIn
)

// Options wires the dashboard to its collaborators.
type Options struct {
	Config model.AppConfig

	// Provider supplies the initial token. Defaults to the environment
	// and then the keyring.
	Provider credential.Provider

	// Forget removes the stored token on sign-out.
	Forget func() error

	// SignIn configures the sign-in form.
	SignIn signin.Options

	// StreamOptions are passed to every connection manager.
	StreamOptions []stream.Option

	Logger *log.Logger
}

// Model is the root Bubble Tea model that manages view routing, layout
// and the lifetime of the signed-in session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	opts         Options

	session       *session
	lastSessionID int
	bell          bell.Model

	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	signinView  signin.Model

	lastEvent string
	connErr   error
	ready     bool
}

// New creates the root model. Nothing connects until Init resolves a
// token.
func New(opts Options) Model {
	if opts.Provider == nil {
		opts.Provider = credential.DefaultProvider()
	}
	if opts.Forget == nil {
		opts.Forget = func() error { return credential.Delete(credential.TokenKey) }
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewDashboard,
		layout:      ui.NewLayout(80, 24),
		keys:        k,
		opts:        opts,
		detail:      detail.New(k, opts.Config.Display.DateLayout, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		signinView:  signin.New(80, 24, opts.SignIn),
	}
}

// Init resolves the token; the session starts once it arrives.
func (m Model) Init() tea.Cmd {
	return resolveToken(m.opts.Provider)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case tokenResolvedMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, credential.ErrNoToken) {
				m.opts.Logger.Printf("reading API token: %v", msg.err)
			}
			return m.showSignIn()
		}
		return m.startSession(msg.token)

	case connectedMsg:
		if m.session == nil || msg.id != m.session.id {
			return m, nil
		}
		if errors.Is(msg.err, stream.ErrSuperseded) {
			// A later reconnect reports for this session.
			return m, nil
		}
		m.connErr = msg.err
		return m, nil

	case sessionEventMsg:
		if m.session == nil || msg.id != m.session.id {
			return m, nil
		}
		m.lastEvent = describeEvent(msg.event)
		return m, m.session.waitForEvent()

	case openDetailMsg:
		m.previousView = ViewDashboard
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.notification)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewDashboard
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case signin.SignedInMsg:
		m.currentView = ViewDashboard
		return m.startSession(msg.Token)

	case signin.CancelledMsg:
		m.currentView = ViewDashboard
		return m, nil

	case signedOutMsg:
		if msg.err != nil {
			m.opts.Logger.Printf("removing API token: %v", msg.err)
		}
		return m.showSignIn()

	case tea.MouseMsg:
		if m.session != nil && (m.currentView == ViewDashboard || m.currentView == ViewDetail) {
			var cmd tea.Cmd
			m.bell, cmd = m.bell.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Store signals and snapshots for the bell.
	if m.session != nil {
		var bellCmd tea.Cmd
		m.bell, bellCmd = m.bell.Update(msg)
		next, cmd := m.updateActiveView(msg)
		return next, tea.Batch(bellCmd, cmd)
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleKey processes global keys, then hands the rest to the active view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	switch m.currentView {
	case ViewSignIn, ViewCommand:
		return m.updateActiveView(msg)

	case ViewHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
		}
		return m, nil

	case ViewDashboard:
		if m.session != nil && m.bell.IsOpen() {
			var cmd tea.Cmd
			m.bell, cmd = m.bell.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case key.Matches(msg, m.keys.Bell):
			if m.session != nil {
				m.bell.Toggle()
			}
			return m, nil
		case key.Matches(msg, m.keys.Reconnect):
			return m.executeCommand("reconnect")
		case key.Matches(msg, m.keys.SignIn):
			return m.showSignIn()
		}
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus()
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSignIn:
		m.signinView, cmd = m.signinView.Update(msg)
	}

	return m, cmd
}

// startSession tears down the current session, if any, and connects with
// token. The new session starts with an empty store and viewed set.
func (m Model) startSession(token string) (tea.Model, tea.Cmd) {
	m.endSession()

	m.lastSessionID++
	s, err := newSession(m.lastSessionID, token, m.opts.Config, m.opts.Logger, m.opts.StreamOptions...)
	if err != nil {
		m.opts.Logger.Printf("starting session: %v", err)
		m.connErr = err
		return m, nil
	}

	m.session = s
	m.bell = bell.New(s.store, m.keys, bell.Options{
		DateLayout: m.opts.Config.Display.DateLayout,
		OnSelect:   openDetail,
		Logger:     m.opts.Logger,
	})
	m.resize()

	return m, tea.Batch(
		m.bell.Init(),
		s.waitForEvent(),
		s.connect(),
	)
}

// endSession disconnects and discards the current session.
func (m *Model) endSession() {
	if m.session == nil {
		return
	}
	m.bell.Release()
	m.session.close(m.opts.Logger)
	m.session = nil
	m.bell = bell.Model{}
	m.connErr = nil
	m.lastEvent = ""
	if m.currentView == ViewDetail {
		m.currentView = ViewDashboard
	}
}

// Close tears down the session left behind when the program exits by
// any route other than the quit key.
func (m Model) Close() {
	m.endSession()
}

func (m Model) showSignIn() (tea.Model, tea.Cmd) {
	m.signinView = signin.New(m.layout.ContentWidth(), m.layout.ContentHeight(), m.opts.SignIn)
	m.previousView = ViewDashboard
	m.currentView = ViewSignIn
	return m, m.signinView.Init()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.endSession()
	return m, tea.Quit
}

func openDetail(n model.Notification) tea.Cmd {
	return func() tea.Msg {
		return openDetailMsg{notification: n}
	}
}

func (m *Model) resize() {
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.detail.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
	m.signinView.SetSize(w, h)
	if m.session != nil {
		m.bell.SetFrame(m.layout.Width, m.layout.HeaderHeight, h)
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var bellView string
	if m.session != nil {
		bellView = m.bell.BellView()
	}
	header := m.layout.RenderHeader("gigbell", m.connectionStatus(), bellView)

	content := m.layout.FitContent(m.renderContent())
	if m.session != nil && (m.currentView == ViewDashboard || m.currentView == ViewDetail) {
		content = m.bell.Overlay(content)
	}

	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSignIn:
		return m.signinView.View()
	default:
		return m.dashboardView()
	}
}

func (m Model) dashboardView() string {
	label := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(14)
	value := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	if m.session == nil {
		return theme.DetailPanelStyle.Render(
			value.Render("Not signed in.") + "\n\n" +
				theme.HelpStyle.Render("Press s to sign in with an API token."),
		)
	}

	who := m.session.identity.Subject
	switch {
	case m.session.identity.Opaque:
		who = "API token"
	case who == "":
		who = "(unknown)"
	}

	unread := m.bell.Unread()
	rows := []string{
		label.Render("Signed in as") + value.Render(who),
		label.Render("Connection") + value.Render(m.session.manager.State().String()),
		label.Render("Received") + value.Render(fmt.Sprint(len(m.bell.Items()))),
		label.Render("Unread") + value.Render(fmt.Sprint(unread)),
	}
	if m.lastEvent != "" {
		rows = append(rows, label.Render("Last event")+value.Render(m.lastEvent))
	}
	if m.connErr != nil {
		rows = append(rows, label.Render("Error")+lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.connErr.Error()))
	}

	return theme.DetailPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// connectionStatus returns the header label for the stream state.
func (m Model) connectionStatus() string {
	if m.session == nil {
		return theme.ConnectionStyle("").Render("signed out")
	}
	state := m.session.manager.State().String()
	if m.connErr != nil {
		return theme.ConnectionStyle("closed").Render("offline")
	}
	return theme.ConnectionStyle(state).Render(state)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewSignIn:
		return "enter submit | esc cancel"
	default:
		if m.session != nil && m.bell.IsOpen() {
			return "j/k move | enter open | esc close"
		}
		return "n notifications | r reconnect | s sign in | : command | ? help | q quit"
	}
}

// describeEvent renders a stream event for the dashboard.
func describeEvent(ev stream.Event) string {
	switch ev.Kind {
	case stream.EventOpen:
		return "connected"
	case stream.EventNotification:
		return "received " + ev.Notification.DisplayTitle()
	case stream.EventDropped:
		return "ignored a frame: " + ev.Err.Error()
	case stream.EventError:
		return "error: " + ev.Err.Error()
	case stream.EventClosed:
		if ev.Local {
			return "disconnected"
		}
		if ev.Reason != "" {
			return fmt.Sprintf("closed by server (%d %s)", ev.Code, ev.Reason)
		}
		return fmt.Sprintf("closed by server (%d)", ev.Code)
	default:
		return ev.Kind.String()
	}
}
