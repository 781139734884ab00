package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// session is one token generation: the connection, its reader goroutine
// and any reconnects the policy allows.
type session struct {
	m        *Manager
	gen      uint64
	endpoint string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	released bool

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(m *Manager, gen uint64, endpoint string, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		m:        m,
		gen:      gen,
		endpoint: endpoint,
		ctx:      ctx,
		cancel:   cancel,
		conn:     conn,
		done:     make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if s.read(conn) {
			return
		}
		if !s.reconnect() {
			s.m.setState(s.gen, StateClosed)
			return
		}
	}
}

// read consumes frames until the connection fails. It reports true when
// the failure was caused by local teardown.
func (s *session) read(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return true
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.m.logger.Printf("notification stream: closed by server: code %d %q", ce.Code, ce.Text)
				s.m.emit(Event{Kind: EventClosed, Generation: s.gen, Code: ce.Code, Reason: ce.Text})
			} else {
				s.m.logger.Printf("notification stream: read error: %v", err)
				s.m.emit(Event{Kind: EventError, Generation: s.gen, Err: err})
				s.m.emit(Event{Kind: EventClosed, Generation: s.gen, Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
			}
			s.release(conn, false)
			return false
		}

		s.m.handleFrame(s.ctx, s.gen, data)
	}
}

// reconnect redials under the manager's policy and reports whether a new
// connection is in place.
func (s *session) reconnect() bool {
	p := s.m.cfg.Reconnect
	if p.MaxAttempts <= 0 {
		return false
	}

	s.m.setState(s.gen, StateConnecting)

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	// Retry makes the first call immediately; the rest are retries.
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), s.ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := s.m.dial(s.ctx, s.endpoint)
		if err != nil {
			s.m.logger.Printf("notification stream: reconnect attempt %d/%d: %v", attempt, p.MaxAttempts, err)
			return err
		}
		if !s.swap(conn) {
			conn.Close()
			return backoff.Permanent(context.Canceled)
		}
		return nil
	}, b)
	if err != nil {
		if s.ctx.Err() == nil {
			s.m.logger.Printf("notification stream: giving up after %d attempts", attempt)
		}
		return false
	}

	s.m.setState(s.gen, StateOpen)
	s.m.logger.Printf("notification stream: reconnected (generation %d, attempt %d)", s.gen, attempt)
	s.m.emit(Event{Kind: EventOpen, Generation: s.gen})
	return true
}

// swap installs a redialed connection unless teardown has started.
func (s *session) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	s.conn = conn
	s.released = false
	return true
}

// release closes conn if it is still the session's live connection and
// has not been closed yet. A nil conn means the live connection.
func (s *session) release(conn *websocket.Conn, graceful bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conn == nil {
		conn = s.conn
	}
	if conn != s.conn || s.released {
		return
	}
	s.released = true

	if graceful {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	}
	conn.Close()
}

// close sends a normal close frame, closes the socket exactly once and
// waits for the reader goroutine to finish.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.release(nil, true)
	})
	<-s.done
}
