package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/stream"
)

// session is one signed-in token generation: its own store, its own
// connection manager and, in the root model, its own bell. Nothing is
// carried over to the next session.
type session struct {
	id       int
	token    string
	identity credential.Identity
	store    store.Store
	manager  *stream.Manager
	done     chan struct{}
	closed   sync.Once
}

// tokenResolvedMsg carries the result of asking the credential provider.
type tokenResolvedMsg struct {
	token string
	err   error
}

// connectedMsg reports the outcome of a session's initial dial.
type connectedMsg struct {
	id  int
	err error
}

// sessionEventMsg wraps a stream event with the session it came from.
type sessionEventMsg struct {
	id    int
	event stream.Event
}

// openDetailMsg is emitted by the bell when a notification is picked.
type openDetailMsg struct {
	notification model.Notification
}

// signedOutMsg reports that the stored token was removed.
type signedOutMsg struct {
	err error
}

func newSession(id int, token string, cfg model.AppConfig, logger *log.Logger, opts ...stream.Option) (*session, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating notification store: %w", err)
	}

	opts = append([]stream.Option{stream.WithLogger(logger)}, opts...)
	return &session{
		id:       id,
		token:    token,
		identity: credential.Inspect(token),
		store:    st,
		manager:  stream.New(stream.ConfigFrom(cfg.Stream), st, opts...),
		done:     make(chan struct{}),
	}, nil
}

// connect dials the stream in the background.
func (s *session) connect() tea.Cmd {
	id, token, mgr := s.id, s.token, s.manager
	return func() tea.Msg {
		return connectedMsg{id: id, err: mgr.Connect(context.Background(), token)}
	}
}

// reconnect redials with the session's token.
func (s *session) reconnect() tea.Cmd {
	id, mgr := s.id, s.manager
	return func() tea.Msg {
		return connectedMsg{id: id, err: mgr.Reconnect(context.Background())}
	}
}

// waitForEvent listens for the next stream event of this session.
func (s *session) waitForEvent() tea.Cmd {
	id, wait := s.id, s.manager.WaitForEvent(s.done)
	return func() tea.Msg {
		ev, ok := wait().(stream.Event)
		if !ok {
			return nil
		}
		return sessionEventMsg{id: id, event: ev}
	}
}

// close disconnects the stream and discards the session's notifications.
func (s *session) close(logger *log.Logger) {
	s.closed.Do(func() {
		close(s.done)
		s.manager.Close()
		if err := s.store.Close(); err != nil {
			logger.Printf("closing notification store: %v", err)
		}
	})
}

// resolveToken asks the provider for a token without blocking the UI.
func resolveToken(p credential.Provider) tea.Cmd {
	return func() tea.Msg {
		token, err := p.Token()
		return tokenResolvedMsg{token: token, err: err}
	}
}

// signOut removes the stored token.
func signOut(forget func() error) tea.Cmd {
	return func() tea.Msg {
		err := forget()
		if errors.Is(err, credential.ErrNoToken) {
			err = nil
		}
		return signedOutMsg{err: err}
	}
}
