package app

import (
	tea "github.com/charmbracelet/bubbletea"
)

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "open":
		if m.session != nil && !m.bell.IsOpen() {
			m.currentView = ViewDashboard
			m.bell.Toggle()
		}
		return m, nil

	case "close":
		if m.session != nil {
			m.bell.Close()
		}
		return m, nil

	case "reconnect":
		if m.session == nil {
			return m.showSignIn()
		}
		m.connErr = nil
		return m, m.session.reconnect()

	case "signin", "login":
		return m.showSignIn()

	case "signout", "logout":
		m.endSession()
		return m, signOut(m.opts.Forget)

	case "help":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case "quit", "q":
		return m.quit()

	default:
		m.opts.Logger.Printf("unknown command %q", cmd)
		return m, nil
	}
}
