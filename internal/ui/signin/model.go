// Package signin is the token entry form shown when the dashboard has no
// credentials or the user switches accounts.
package signin

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/theme"
)

// Mode is the current step of the sign-in view.
type Mode int

const (
	ModeForm   Mode = iota // Entering the token
	ModeSaving             // Writing the token to the keyring
	ModeFailed             // Saving failed
)

// SignedInMsg carries the accepted token to the host.
type SignedInMsg struct {
	Token    string
	Identity credential.Identity
}

// CancelledMsg signals the form was dismissed without a token.
type CancelledMsg struct{}

type savedMsg struct {
	err error
}

// values is shared by every copy of the Model so huh can bind to it.
type values struct {
	token    string
	remember bool
}

// Options configures a Model.
type Options struct {
	// Save persists the token when the user asks to be remembered.
	// Defaults to storing it in the system keyring.
	Save func(token string) error

	// Now is used to reject expired tokens.
	Now func() time.Time
}

// Model is the Bubble Tea model for the sign-in form.
type Model struct {
	mode    Mode
	form    *huh.Form
	values  *values
	opts    Options
	spinner spinner.Model
	err     error

	width, height int
}

// New creates a sign-in form.
func New(width, height int, opts Options) Model {
	if opts.Save == nil {
		opts.Save = func(token string) error {
			return credential.Set(credential.TokenKey, token)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		values:  &values{remember: true},
		opts:    opts,
		spinner: sp,
		width:   width,
		height:  height,
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Mode returns the current step.
func (m Model) Mode() Mode {
	return m.mode
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Token").
				Description("Bearer token for the notification stream").
				EchoMode(huh.EchoModePassword).
				Value(&m.values.token).
				Validate(m.validateToken),
			huh.NewConfirm().
				Title("Remember on this machine").
				Description("Store the token in the system keyring").
				Affirmative("Yes").
				Negative("No").
				Value(&m.values.remember),
		),
	).WithWidth(m.formWidth())
}

func (m Model) validateToken(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("token is required")
	}
	if id := credential.Inspect(s); id.Expired(m.opts.Now()) {
		return fmt.Errorf("token expired at %s", id.ExpiresAt.Local().Format(time.DateTime))
	}
	return nil
}

// Update handles messages for the sign-in view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedMsg:
		if msg.err != nil {
			m.mode = ModeFailed
			m.err = msg.err
			return m, nil
		}
		return m, m.done()

	case spinner.TickMsg:
		if m.mode == ModeSaving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeFailed {
			switch msg.String() {
			case "r":
				return m.save()
			case "c":
				// Use the token for this session only.
				return m, m.done()
			case "esc":
				return m, func() tea.Msg { return CancelledMsg{} }
			}
			return m, nil
		}
		if m.mode == ModeSaving {
			return m, nil
		}
	}

	if m.mode != ModeForm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if m.values.remember {
			return m.save()
		}
		return m, m.done()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelledMsg{} }
	}

	return m, cmd
}

func (m Model) save() (Model, tea.Cmd) {
	m.mode = ModeSaving
	m.err = nil

	token, save := m.token(), m.opts.Save
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return savedMsg{err: save(token)} },
	)
}

func (m Model) done() tea.Cmd {
	token := m.token()
	return func() tea.Msg {
		return SignedInMsg{Token: token, Identity: credential.Inspect(token)}
	}
}

func (m Model) token() string {
	return strings.TrimSpace(m.values.token)
}

// View renders the current step.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	switch m.mode {
	case ModeSaving:
		return style.Render(fmt.Sprintf("%s Saving token...", m.spinner.View()))

	case ModeFailed:
		errStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorRed)
		return style.Render(
			errStyle.Render("Could not save token") + "\n\n" +
				m.err.Error() + "\n\n" +
				theme.MutedStyle.Render("r retry | c continue without saving | esc cancel"),
		)

	default:
		title := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorWhite).
			MarginBottom(1).
			Render("Sign in")
		return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, m.form.View()))
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}
