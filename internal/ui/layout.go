package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/gigbell/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar: the title on the left, then the
// connection status, with the bell flush against the right edge.
func (l Layout) RenderHeader(title, status, bell string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(status) -
		lipgloss.Width(bell)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		status,
		bell,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// FitContent pads or clips content to exactly ContentHeight rows so the
// status bar stays on the last terminal line.
func (l Layout) FitContent(content string) string {
	h := l.ContentHeight()
	if h <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Height(h).
		MaxHeight(h).
		MaxWidth(l.ContentWidth()).
		Render(content)
}

// RenderWithFrame stacks the header, the fitted content area and the
// status bar into one terminal view.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		l.FitContent(content),
		statusBar,
	)
}
