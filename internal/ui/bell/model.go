// Package bell is the notification bell: an unread badge for the header
// and a dropdown panel listing the session's notifications.
package bell

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nhle/gigbell/internal/keys"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/readstate"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/theme"
)

const (
	// PanelWidth is the dropdown width including its border.
	PanelWidth = 52

	// itemHeight is the number of lines one record takes in the panel.
	itemHeight = 2

	// panelChrome is the top border plus the panel header line.
	panelChrome = 2

	bellGlyph  = "🔔"
	unreadDot  = "●"
	emptyState = "No notifications yet"
)

// lastID distinguishes messages of successive Model instances, so a
// snapshot from a torn-down session is never applied to its successor.
var lastID atomic.Int64

type changedMsg struct{ id int64 }

type snapshotMsg struct {
	id    int64
	items []model.Notification
	err   error
}

// Options configures a Model.
type Options struct {
	// DateLayout formats records older than a day.
	DateLayout string

	// OnSelect is called with the record the user picked. The panel closes
	// afterwards whatever the callback does.
	OnSelect func(model.Notification) tea.Cmd

	// Now replaces time.Now when computing relative times.
	Now func() time.Time

	Logger *log.Logger
}

// Rect is a screen region in cells.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether the cell (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Model is the bell and its dropdown. It reads from a store it does not
// own and keeps the viewed set for its own lifetime.
type Model struct {
	id      int64
	store   store.Store
	tracker *readstate.Tracker
	keys    *keys.KeyMap
	opts    Options

	changes     <-chan struct{}
	unsubscribe func()

	items  []model.Notification
	open   bool
	cursor int
	offset int

	// The bell sits at the right end of screen row 0; the panel hangs
	// right-aligned below it, starting at row top.
	width         int
	top           int
	contentHeight int
}

// New creates a closed bell over s and subscribes to its changes.
func New(s store.Store, k *keys.KeyMap, opts Options) Model {
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	changes, unsubscribe := s.Subscribe()
	return Model{
		id:          lastID.Add(1),
		store:       s,
		tracker:     readstate.New(),
		keys:        k,
		opts:        opts,
		changes:     changes,
		unsubscribe: unsubscribe,
	}
}

// Init loads the first snapshot and starts listening for changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange())
}

// Release stops listening to the store.
func (m Model) Release() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// SetFrame tells the bell where it is drawn: the terminal width, the row
// the panel starts on and the number of rows available below it.
func (m *Model) SetFrame(width, top, contentHeight int) {
	m.width = width
	m.top = top
	m.contentHeight = contentHeight
	m.clampCursor()
}

// IsOpen reports whether the dropdown is shown.
func (m Model) IsOpen() bool {
	return m.open
}

// Items returns the last loaded snapshot, most recent first.
func (m Model) Items() []model.Notification {
	return m.items
}

// Cursor returns the index of the highlighted record.
func (m Model) Cursor() int {
	return m.cursor
}

// Unread returns the number of records not yet viewed.
func (m Model) Unread() int {
	return m.tracker.Unread(m.items)
}

// IsViewed reports whether id has been seen in an opened panel.
func (m Model) IsViewed(id model.NotificationID) bool {
	return m.tracker.IsViewed(id)
}

// Toggle opens or closes the panel. Opening marks every record in the
// current snapshot as viewed.
func (m *Model) Toggle() {
	if m.open {
		m.Close()
		return
	}

	m.refresh()
	m.open = true
	m.cursor, m.offset = 0, 0
	m.tracker.MarkAllViewed(model.IDs(m.items)...)
}

// Close hides the panel.
func (m *Model) Close() {
	m.open = false
}

// Select hands n to OnSelect and closes the panel, also when the callback
// panics.
func (m *Model) Select(n model.Notification) (cmd tea.Cmd) {
	defer m.Close()

	if m.opts.OnSelect != nil {
		cmd = m.opts.OnSelect(n)
	}
	return cmd
}

// Update handles store signals, keys while open and mouse presses.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		if msg.id != m.id {
			return m, nil
		}
		return m, tea.Batch(m.load(), m.waitForChange())

	case snapshotMsg:
		if msg.id != m.id {
			return m, nil
		}
		if msg.err != nil {
			m.opts.Logger.Printf("notification panel: loading snapshot: %v", msg.err)
			return m, nil
		}
		m.items = msg.items
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if !m.open {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Select):
			if m.cursor < len(m.items) {
				cmd := m.Select(m.items[m.cursor])
				return m, cmd
			}
		case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Bell):
			m.Close()
		}
		return m, nil

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		return m.handlePress(msg.X, msg.Y)
	}

	return m, nil
}

func (m Model) handlePress(x, y int) (Model, tea.Cmd) {
	if m.BellRect().Contains(x, y) {
		m.Toggle()
		return m, nil
	}
	if !m.open {
		return m, nil
	}

	panel := m.PanelRect()
	if !panel.Contains(x, y) {
		m.Close()
		return m, nil
	}

	if i, ok := m.itemAt(y - panel.Y); ok {
		m.cursor = i
		cmd := m.Select(m.items[i])
		return m, cmd
	}
	return m, nil
}

// itemAt maps a row inside the panel to a record index.
func (m Model) itemAt(row int) (int, bool) {
	row -= panelChrome
	if row < 0 || row >= m.visibleItems()*itemHeight {
		return 0, false
	}
	i := m.offset + row/itemHeight
	if i >= len(m.items) {
		return 0, false
	}
	return i, true
}

// BellRect is the clickable bell region on row 0.
func (m Model) BellRect() Rect {
	w := lipgloss.Width(m.BellView())
	return Rect{X: m.width - w, Y: 0, W: w, H: 1}
}

// PanelRect is the region the open panel covers.
func (m Model) PanelRect() Rect {
	w := m.panelWidth()
	return Rect{X: m.width - w, Y: m.top, W: w, H: lipgloss.Height(m.View())}
}

// BellView renders the bell glyph with its unread badge.
func (m Model) BellView() string {
	bell := lipgloss.NewStyle().Padding(0, 1).Render(bellGlyph)
	if text, ok := BadgeText(m.Unread()); ok {
		return bell + theme.BadgeStyle.Render(text)
	}
	return bell
}

// View renders the panel, or nothing while it is closed.
func (m Model) View() string {
	if !m.open {
		return ""
	}

	inner := m.panelWidth() - 2
	lines := []string{m.renderHeader(inner)}

	if len(m.items) == 0 {
		lines = append(lines, fit(theme.MutedStyle.Render(emptyState), inner))
	} else {
		now := m.opts.Now()
		end := min(m.offset+m.visibleItems(), len(m.items))
		for i := m.offset; i < end; i++ {
			lines = append(lines, m.renderItem(m.items[i], i == m.cursor, now, inner)...)
		}
	}

	return theme.PanelStyle.Render(strings.Join(lines, "\n"))
}

// Overlay draws the open panel over content, which starts at row top.
func (m Model) Overlay(content string) string {
	panel := m.View()
	if panel == "" {
		return content
	}

	rows := strings.Split(content, "\n")
	x := m.width - m.panelWidth()
	for i, line := range strings.Split(panel, "\n") {
		if i >= len(rows) {
			rows = append(rows, "")
		}
		left := ansi.Truncate(rows[i], x, "")
		if pad := x - lipgloss.Width(left); pad > 0 {
			left += strings.Repeat(" ", pad)
		}
		rows[i] = left + line
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHeader(width int) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("Notifications")
	var count string
	if n := m.Unread(); n > 0 {
		count = theme.MutedStyle.Render(badgeLabel(n) + " unread")
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(count), 1)
	return fit(title+strings.Repeat(" ", gap)+count, width)
}

func badgeLabel(n int) string {
	text, _ := BadgeText(n)
	return text
}

func (m Model) renderItem(n model.Notification, selected bool, now time.Time, width int) []string {
	marker := "  "
	titleStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	if selected {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("› ")
		titleStyle = titleStyle.Bold(true).Foreground(theme.ColorBlue)
	}

	dot := " "
	if !m.tracker.IsViewed(n.ID) {
		dot = lipgloss.NewStyle().Foreground(theme.ColorRed).Render(unreadDot)
	}

	first := marker + dot + " " + titleStyle.Render(n.DisplayTitle())

	meta := []string{theme.MutedStyle.Render(RelativeTime(n.CreatedAt, now, m.opts.DateLayout))}
	if n.Client != "" {
		meta = append(meta, theme.StatusStyle("").Render(n.Client))
	}
	if n.Status != "" {
		meta = append(meta, theme.StatusStyle(n.Status).Render(string(n.Status)))
	}
	second := "    " + strings.Join(meta, " ")

	return []string{fit(first, width), fit(second, width)}
}

// fit truncates or pads s to exactly width cells.
func fit(s string, width int) string {
	s = ansi.Truncate(s, width, "…")
	if pad := width - lipgloss.Width(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func (m Model) panelWidth() int {
	if m.width > 0 && m.width < PanelWidth {
		return m.width
	}
	return PanelWidth
}

// visibleItems is how many records fit below the panel header.
func (m Model) visibleItems() int {
	if m.contentHeight <= 0 {
		return max(len(m.items), 1)
	}
	return max((m.contentHeight-panelChrome-1)/itemHeight, 1)
}

func (m *Model) moveCursor(delta int) {
	if len(m.items) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.items)-1)
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
	visible := m.visibleItems()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// refresh reads the snapshot synchronously so an opening panel marks what
// the store holds right now.
func (m *Model) refresh() {
	items, err := m.store.Snapshot(context.Background())
	if err != nil {
		m.opts.Logger.Printf("notification panel: loading snapshot: %v", err)
		return
	}
	m.items = items
	m.clampCursor()
}

func (m Model) load() tea.Cmd {
	id, s := m.id, m.store
	return func() tea.Msg {
		items, err := s.Snapshot(context.Background())
		return snapshotMsg{id: id, items: items, err: err}
	}
}

// waitForChange blocks until the store signals. It returns nil once the
// subscription is closed, which ends the listen loop.
func (m Model) waitForChange() tea.Cmd {
	id, ch := m.id, m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{id: id}
	}
}
