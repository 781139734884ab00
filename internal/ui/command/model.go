package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gigbell/internal/theme"
)

// CommandMsg is emitted when the user executes a command. Only the first
// word is the command; the rest is ignored.
type CommandMsg string

// CancelMsg is emitted when the palette is dismissed with esc.
type CancelMsg struct{}

// Command is an entry the palette completes and documents.
type Command struct {
	Name        string
	Description string
}

// Commands lists everything the dashboard understands.
var Commands = []Command{
	{"open", "open the notification panel"},
	{"close", "close the notification panel"},
	{"reconnect", "reopen the notification stream"},
	{"signin", "sign in with a new API token"},
	{"signout", "forget the token and disconnect"},
	{"help", "show keyboard shortcuts"},
	{"quit", "exit gigbell"},
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.Focus()
	ti.Width = width - 6

	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = c.Name
	}
	ti.SetSuggestions(names)

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			fields := strings.Fields(m.input.Value())
			m.input.Reset()
			if len(fields) > 0 {
				cmd := strings.ToLower(fields[0])
				return m, func() tea.Msg {
					return CommandMsg(cmd)
				}
			}
			return m, nil
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg {
				return CancelMsg{}
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	input := m.input.View()

	var hints []string
	for _, c := range Commands {
		hints = append(hints, theme.HelpStyle.Render(c.Name+"  "+c.Description))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		input,
		"",
		strings.Join(hints, "\n"),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
