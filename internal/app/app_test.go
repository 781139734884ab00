package app

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/stream"
	"github.com/nhle/gigbell/internal/ui/command"
	"github.com/nhle/gigbell/internal/ui/detail"
	"github.com/nhle/gigbell/internal/ui/signin"
	"github.com/nhle/gigbell/tests/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	server  *testutil.NotificationServer
	forgets int
}

func newTestModel(t *testing.T) (Model, *fixture) {
	t.Helper()

	f := &fixture{server: testutil.NewNotificationServer(t, "")}

	cfg := model.DefaultAppConfig()
	cfg.Stream.BaseURL = f.server.BaseURL()

	m := New(Options{
		Config:   *cfg,
		Provider: credential.Static("tok"),
		Forget: func() error {
			f.forgets++
			return nil
		},
		SignIn: signin.Options{Save: func(string) error { return nil }},
		Logger: log.New(io.Discard, "", 0),
	})
	return m, f
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// connected starts a session for token and completes its initial dial.
func connected(t *testing.T, m Model, token string) Model {
	t.Helper()

	m, _ = update(t, m, tokenResolvedMsg{token: token})
	require.NotNil(t, m.session)
	t.Cleanup(func() { m.endSession() })

	msg := m.session.connect()()
	m, _ = update(t, m, msg)
	require.NoError(t, m.connErr)
	return m
}

func TestInitResolvesToken(t *testing.T) {
	m, _ := newTestModel(t)

	msg := m.Init()()
	assert.Equal(t, tokenResolvedMsg{token: "tok"}, msg)
}

func TestMissingTokenShowsSignIn(t *testing.T) {
	m, _ := newTestModel(t)

	m, cmd := update(t, m, tokenResolvedMsg{err: credential.ErrNoToken})
	assert.Equal(t, ViewSignIn, m.currentView)
	assert.Nil(t, m.session)
	assert.NotNil(t, cmd)
}

func TestSessionReceivesNotifications(t *testing.T) {
	m, f := newTestModel(t)
	m = connected(t, m, "tok")

	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)
	assert.Equal(t, stream.StateOpen, m.session.manager.State())

	f.server.SendNotification(t, model.Notification{ID: "n-1", Title: "Offer received"})
	require.Eventually(t, func() bool {
		n, err := m.session.store.Len(context.Background())
		return err == nil && n == 1
	}, waitFor, tick)

	m.bell.Toggle()
	require.Len(t, m.bell.Items(), 1)
	assert.Equal(t, "Offer received", m.bell.Items()[0].Title)
	assert.Zero(t, m.bell.Unread())
}

func TestSignInReplacesSession(t *testing.T) {
	m, f := newTestModel(t)
	m = connected(t, m, "first")
	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)

	f.server.SendNotification(t, model.Notification{ID: "old"})
	old := m.session
	require.Eventually(t, func() bool {
		n, _ := old.store.Len(context.Background())
		return n == 1
	}, waitFor, tick)

	m, _ = update(t, m, signin.SignedInMsg{Token: "second"})
	defer m.endSession()
	require.NotNil(t, m.session)
	require.NotSame(t, old, m.session)
	assert.Equal(t, ViewDashboard, m.currentView)

	assert.Equal(t, stream.StateClosed, old.manager.State())
	_, err := old.store.Snapshot(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)

	m, _ = update(t, m, m.session.connect()())
	require.Eventually(t, func() bool { return f.server.Accepted() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"first", "second"}, f.server.Tokens())

	n, err := m.session.store.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, m.bell.IsViewed("old"))
}

func TestDialOfEndedSessionDoesNotConnect(t *testing.T) {
	m, f := newTestModel(t)

	m, _ = update(t, m, tokenResolvedMsg{token: "a"})
	require.NotNil(t, m.session)
	staleConnect := m.session.connect()

	m, _ = update(t, m, signin.SignedInMsg{Token: "b"})
	defer m.endSession()
	m, _ = update(t, m, m.session.connect()())
	require.NoError(t, m.connErr)

	msg := staleConnect()
	stale, ok := msg.(connectedMsg)
	require.True(t, ok)
	assert.ErrorIs(t, stale.err, stream.ErrClosed)

	m, _ = update(t, m, msg)
	assert.NoError(t, m.connErr)

	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return f.server.Active() > 1 }, 200*time.Millisecond, tick)
	assert.Equal(t, []string{"b"}, f.server.Tokens())
}

func TestSignOutEndsSession(t *testing.T) {
	m, f := newTestModel(t)
	m = connected(t, m, "tok")
	old := m.session

	m, cmd := update(t, m, command.CommandMsg("signout"))
	assert.Nil(t, m.session)
	assert.Equal(t, stream.StateClosed, old.manager.State())
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, signedOutMsg{}, msg)
	assert.Equal(t, 1, f.forgets)

	m, _ = update(t, m, msg)
	assert.Equal(t, ViewSignIn, m.currentView)
	require.Eventually(t, func() bool { return f.server.Active() == 0 }, waitFor, tick)
}

func TestStaleSessionMessagesAreIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	m = connected(t, m, "tok")

	m, cmd := update(t, m, sessionEventMsg{id: m.session.id + 1, event: stream.Event{Kind: stream.EventOpen}})
	assert.Nil(t, cmd)
	assert.Empty(t, m.lastEvent)

	m, _ = update(t, m, connectedMsg{id: m.session.id + 1, err: errors.New("old dial failed")})
	assert.NoError(t, m.connErr)

	m, cmd = update(t, m, sessionEventMsg{id: m.session.id, event: stream.Event{Kind: stream.EventOpen}})
	assert.NotNil(t, cmd)
	assert.Equal(t, "connected", m.lastEvent)
}

func TestConnectFailureIsShownAsOffline(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, tokenResolvedMsg{token: "tok"})
	t.Cleanup(func() { m.endSession() })

	m, _ = update(t, m, connectedMsg{id: m.session.id, err: errors.New("connecting notification stream: refused")})
	assert.Contains(t, m.View(), "offline")
}

func TestOpenDetailAndBack(t *testing.T) {
	m, _ := newTestModel(t)
	n := model.Notification{ID: "n-1", Title: "Milestone paid"}

	m, _ = update(t, m, openDetailMsg{notification: n})
	assert.Equal(t, ViewDetail, m.currentView)
	got, ok := m.detail.Notification()
	require.True(t, ok)
	assert.Equal(t, n, got)

	m, _ = update(t, m, detail.BackMsg{})
	assert.Equal(t, ViewDashboard, m.currentView)
}

func TestBellSelectionOpensDetail(t *testing.T) {
	m, f := newTestModel(t)
	m = connected(t, m, "tok")
	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)

	f.server.SendNotification(t, model.Notification{ID: "n-1", Title: "Picked"})
	require.Eventually(t, func() bool {
		n, _ := m.session.store.Len(context.Background())
		return n == 1
	}, waitFor, tick)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	require.True(t, m.bell.IsOpen())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.False(t, m.bell.IsOpen())

	m, _ = update(t, m, cmd())
	assert.Equal(t, ViewDetail, m.currentView)
	got, ok := m.detail.Notification()
	require.True(t, ok)
	assert.Equal(t, model.NotificationID("n-1"), got.ID)
}

func TestPaletteOpensAndClosesPanel(t *testing.T) {
	m, _ := newTestModel(t)
	m = connected(t, m, "tok")

	m, _ = update(t, m, command.CommandMsg("open"))
	assert.True(t, m.bell.IsOpen())

	m, _ = update(t, m, command.CommandMsg("close"))
	assert.False(t, m.bell.IsOpen())

	m, _ = update(t, m, command.CommandMsg("help"))
	assert.Equal(t, ViewHelp, m.currentView)
}

func TestQuitDisconnects(t *testing.T) {
	m, f := newTestModel(t)
	m = connected(t, m, "tok")
	require.Eventually(t, func() bool { return f.server.Active() == 1 }, waitFor, tick)
	old := m.session

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Nil(t, m.session)
	assert.Equal(t, stream.StateClosed, old.manager.State())
	require.Eventually(t, func() bool { return f.server.Active() == 0 }, waitFor, tick)
}

func TestViewBeforeSignIn(t *testing.T) {
	m, _ := newTestModel(t)
	assert.Equal(t, "Loading...", m.View())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	view := m.View()
	assert.Contains(t, view, "gigbell")
	assert.Contains(t, view, "signed out")
	assert.Contains(t, view, "Not signed in")
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		ev   stream.Event
		want string
	}{
		{stream.Event{Kind: stream.EventOpen}, "connected"},
		{stream.Event{Kind: stream.EventNotification, Notification: model.Notification{Text: "hi"}}, "received hi"},
		{stream.Event{Kind: stream.EventDropped, Err: stream.ErrMissingNotification}, "ignored a frame: frame has no notification"},
		{stream.Event{Kind: stream.EventClosed, Local: true}, "disconnected"},
		{stream.Event{Kind: stream.EventClosed, Code: 4001, Reason: "revoked"}, "closed by server (4001 revoked)"},
		{stream.Event{Kind: stream.EventClosed, Code: 1006}, "closed by server (1006)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, describeEvent(tt.ev))
		})
	}
}
