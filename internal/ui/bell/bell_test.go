package bell

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/gigbell/internal/keys"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/store"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func stamp(ago time.Duration) string {
	return now.Add(-ago).Format(time.RFC3339)
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		name    string
		created string
		want    string
	}{
		{"seconds ago", stamp(30 * time.Second), "Just now"},
		{"in the future", stamp(-time.Minute), "Just now"},
		{"five minutes", stamp(5 * time.Minute), "5m ago"},
		{"just under an hour", stamp(59*time.Minute + 59*time.Second), "59m ago"},
		{"three hours", stamp(3 * time.Hour), "3h ago"},
		{"just under a day", stamp(23*time.Hour + 59*time.Minute), "23h ago"},
		{"three days", stamp(72 * time.Hour), now.Add(-72 * time.Hour).Local().Format(DefaultDateLayout)},
		{"naive timestamp", now.Add(-2 * time.Hour).Format("2006-01-02 15:04:05"), "2h ago"},
		{"empty", "", ""},
		{"garbage", "yesterday-ish", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTime(tt.created, now, DefaultDateLayout))
		})
	}
}

func TestRelativeTimeUsesLayout(t *testing.T) {
	created := stamp(30 * 24 * time.Hour)
	want := now.Add(-30 * 24 * time.Hour).Local().Format("2006-01-02")
	assert.Equal(t, want, RelativeTime(created, now, "2006-01-02"))
	assert.NotContains(t, RelativeTime(created, now, ""), "ago")
}

func TestBadgeText(t *testing.T) {
	tests := []struct {
		unread int
		want   string
		shown  bool
	}{
		{0, "", false},
		{1, "1", true},
		{42, "42", true},
		{99, "99", true},
		{100, "99+", true},
		{150, "99+", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.unread), func(t *testing.T) {
			got, shown := BadgeText(tt.unread)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.shown, shown)
		})
	}
}

type fixture struct {
	store    *store.MemoryStore
	bell     Model
	selected []model.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: store.NewMemoryStore(store.Options{})}
	f.bell = New(f.store, keys.DefaultKeyMap(), Options{
		Now: func() time.Time { return now },
		OnSelect: func(n model.Notification) tea.Cmd {
			f.selected = append(f.selected, n)
			return nil
		},
	})
	f.bell.SetFrame(120, 1, 40)

	t.Cleanup(func() {
		f.bell.Release()
		f.store.Close()
	})
	return f
}

func (f *fixture) push(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.store.Append(context.Background(), model.Notification{
			ID:        model.NotificationID(id),
			Title:     "Notification " + id,
			CreatedAt: stamp(5 * time.Minute),
		}))
	}
	f.bell, _ = f.bell.Update(f.bell.load()())
}

func (f *fixture) press(x, y int) tea.Cmd {
	var cmd tea.Cmd
	f.bell, cmd = f.bell.Update(tea.MouseMsg{
		X:      x,
		Y:      y,
		Action: tea.MouseActionPress,
		Button: tea.MouseButtonLeft,
	})
	return cmd
}

func (f *fixture) key(k tea.KeyType, runes ...rune) {
	f.bell, _ = f.bell.Update(tea.KeyMsg{Type: k, Runes: runes})
}

func TestToggleMarksSnapshotViewed(t *testing.T) {
	f := newFixture(t)
	f.push(t, "a", "b", "c")
	assert.Equal(t, 3, f.bell.Unread())

	f.bell.Toggle()
	assert.True(t, f.bell.IsOpen())
	assert.Zero(t, f.bell.Unread())

	// Arrivals while open stay unread until the next open.
	f.push(t, "d")
	assert.Equal(t, 1, f.bell.Unread())
	assert.False(t, f.bell.IsViewed("d"))

	f.bell.Toggle()
	assert.False(t, f.bell.IsOpen())
	assert.Equal(t, 1, f.bell.Unread())

	f.bell.Toggle()
	assert.Zero(t, f.bell.Unread())
}

func TestToggleReadsLatestSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Append(context.Background(), model.Notification{ID: "fresh"}))

	// The change signal has not been processed yet.
	assert.Empty(t, f.bell.Items())

	f.bell.Toggle()
	require.Len(t, f.bell.Items(), 1)
	assert.True(t, f.bell.IsViewed("fresh"))
}

func TestSelectInvokesCallbackAndCloses(t *testing.T) {
	f := newFixture(t)
	f.push(t, "a")
	f.bell.Toggle()

	f.bell.Select(f.bell.Items()[0])

	require.Len(t, f.selected, 1)
	assert.Equal(t, model.NotificationID("a"), f.selected[0].ID)
	assert.False(t, f.bell.IsOpen())
}

func TestSelectClosesWhenCallbackPanics(t *testing.T) {
	s := store.NewMemoryStore(store.Options{})
	defer s.Close()

	m := New(s, keys.DefaultKeyMap(), Options{
		OnSelect: func(model.Notification) tea.Cmd { panic("boom") },
	})
	defer m.Release()
	m.Toggle()

	assert.Panics(t, func() { m.Select(model.Notification{ID: "x"}) })
	assert.False(t, m.IsOpen())
}

func TestKeyboardNavigation(t *testing.T) {
	f := newFixture(t)
	f.push(t, "a", "b", "c")

	// Keys are ignored while closed.
	f.key(tea.KeyRunes, 'j')
	assert.Zero(t, f.bell.Cursor())

	f.bell.Toggle()
	f.key(tea.KeyRunes, 'j')
	f.key(tea.KeyRunes, 'j')
	f.key(tea.KeyRunes, 'j')
	assert.Equal(t, 2, f.bell.Cursor())
	f.key(tea.KeyRunes, 'k')
	assert.Equal(t, 1, f.bell.Cursor())

	f.key(tea.KeyEnter)
	require.Len(t, f.selected, 1)
	assert.Equal(t, model.NotificationID("b"), f.selected[0].ID)
	assert.False(t, f.bell.IsOpen())

	f.bell.Toggle()
	f.key(tea.KeyEsc)
	assert.False(t, f.bell.IsOpen())
	assert.Len(t, f.selected, 1)
}

func TestMousePresses(t *testing.T) {
	f := newFixture(t)
	f.push(t, "a", "b")

	bell := f.bell.BellRect()
	assert.Equal(t, 120, bell.X+bell.W)

	f.press(bell.X, 0)
	require.True(t, f.bell.IsOpen())

	panel := f.bell.PanelRect()
	assert.Equal(t, 1, panel.Y)
	assert.Equal(t, PanelWidth, panel.W)
	assert.Equal(t, 120-PanelWidth, panel.X)

	// Press on the panel header does nothing.
	f.press(panel.X+3, panel.Y+1)
	assert.True(t, f.bell.IsOpen())
	assert.Empty(t, f.selected)

	// Second line of the second item.
	f.press(panel.X+3, panel.Y+panelChrome+itemHeight+1)
	require.Len(t, f.selected, 1)
	assert.Equal(t, model.NotificationID("a"), f.selected[0].ID)
	assert.False(t, f.bell.IsOpen())

	// The badge is gone once everything is viewed, so the bell has moved.
	bell = f.bell.BellRect()
	assert.Equal(t, 120, bell.X+bell.W)
	f.press(bell.X+1, 0)
	require.True(t, f.bell.IsOpen())
	f.press(0, 10)
	assert.False(t, f.bell.IsOpen())

	// Outside presses while closed change nothing.
	f.press(0, 10)
	assert.False(t, f.bell.IsOpen())
	assert.Len(t, f.selected, 1)
}

func TestMouseReleaseIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.bell.Toggle()

	f.bell, _ = f.bell.Update(tea.MouseMsg{X: 0, Y: 10, Action: tea.MouseActionRelease})
	assert.True(t, f.bell.IsOpen())
}

func TestStoreChangeReloadsSnapshot(t *testing.T) {
	f := newFixture(t)

	wait := f.bell.waitForChange()
	require.NoError(t, f.store.Append(context.Background(), model.Notification{ID: "a"}))

	msg := wait()
	require.IsType(t, changedMsg{}, msg)

	var cmd tea.Cmd
	f.bell, cmd = f.bell.Update(msg)
	require.NotNil(t, cmd)

	f.bell, _ = f.bell.Update(f.bell.load()())
	require.Len(t, f.bell.Items(), 1)
	assert.Equal(t, 1, f.bell.Unread())
}

func TestMessagesFromOtherInstancesAreIgnored(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	other.push(t, "x", "y")

	f.bell, _ = f.bell.Update(other.bell.load()())
	assert.Empty(t, f.bell.Items())
}

func TestWaitForChangeEndsWhenStoreCloses(t *testing.T) {
	s := store.NewMemoryStore(store.Options{})
	m := New(s, keys.DefaultKeyMap(), Options{})

	wait := m.waitForChange()
	require.NoError(t, s.Close())
	assert.Nil(t, wait())
}

func TestView(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.bell.View())

	f.bell.Toggle()
	assert.Contains(t, f.bell.View(), emptyState)

	f.bell.Close()
	require.NoError(t, f.store.Append(context.Background(), model.Notification{
		ID:        "p-1",
		Text:      "Your proposal was accepted",
		Client:    "Acme",
		Status:    model.StatusCompleted,
		CreatedAt: stamp(3 * time.Hour),
	}))
	f.bell, _ = f.bell.Update(f.bell.load()())
	assert.Contains(t, f.bell.BellView(), "1")

	f.bell.Toggle()
	view := f.bell.View()
	assert.Contains(t, view, "Your proposal was accepted")
	assert.Contains(t, view, "Acme")
	assert.Contains(t, view, "completed")
	assert.Contains(t, view, "3h ago")
	assert.NotContains(t, view, unreadDot)
	assert.NotContains(t, f.bell.BellView(), "1")
}

func TestBellBadgeCapsAt99(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}
	f.push(t, ids...)

	assert.Equal(t, 150, f.bell.Unread())
	assert.Contains(t, f.bell.BellView(), "99+")
}

func TestOverlay(t *testing.T) {
	f := newFixture(t)
	f.push(t, "a")

	content := strings.Repeat(strings.Repeat(".", 120)+"\n", 9) + strings.Repeat(".", 120)
	assert.Equal(t, content, f.bell.Overlay(content))

	f.bell.Toggle()
	rows := strings.Split(f.bell.Overlay(content), "\n")
	require.Len(t, rows, 10)
	assert.True(t, strings.HasPrefix(rows[0], strings.Repeat(".", 120-PanelWidth)))
	assert.Contains(t, rows[1], "Notifications")
	assert.Equal(t, strings.Repeat(".", 120), rows[9])
}
