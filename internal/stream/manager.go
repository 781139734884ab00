// Package stream owns the WebSocket connection to the backend's
// notification endpoint and feeds decoded notifications into a Sink.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/nhle/gigbell/internal/model"
)

// Sink receives every decoded notification. store.Store satisfies it.
type Sink interface {
	Append(ctx context.Context, n model.Notification) error
}

// ReconnectPolicy bounds automatic reconnection after the server closes
// the stream or a read fails. The zero value never reconnects.
type ReconnectPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config describes the endpoint.
type Config struct {
	BaseURL          string
	Path             string
	HandshakeTimeout time.Duration
	Reconnect        ReconnectPolicy
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c model.StreamConfig) Config {
	return Config{
		BaseURL:          c.BaseURL,
		Path:             c.Path,
		HandshakeTimeout: c.HandshakeTimeout(),
		Reconnect: ReconnectPolicy{
			MaxAttempts:     c.Reconnect.MaxAttempts,
			InitialInterval: time.Duration(c.Reconnect.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(c.Reconnect.MaxIntervalSec) * time.Second,
		},
	}
}

// defaultEventBuffer is the capacity of the events channel.
const defaultEventBuffer = 64

var (
	// ErrClosed is returned by Connect and Reconnect after Close.
	ErrClosed = errors.New("notification stream closed")

	// ErrSuperseded is returned by a Connect whose dial was overtaken by
	// a later Connect, Reconnect or Disconnect.
	ErrSuperseded = errors.New("connection attempt superseded")
)

// closeGrace bounds how long the close frame write may take on teardown.
const closeGrace = time.Second

// Manager holds at most one live connection. Each Connect with a new
// token starts a new generation and tears the previous connection down
// first.
type Manager struct {
	cfg    Config
	sink   Sink
	dialer *websocket.Dialer
	logger *log.Logger
	events chan Event

	// mu serialises Connect/Disconnect. It is held across the teardown
	// wait but not across the dial, so reader goroutines must never take
	// it.
	mu      sync.Mutex
	token   string
	current *session
	pending *attempt
	closed  bool

	// stateMu guards gen and state, which reader goroutines update.
	stateMu sync.Mutex
	gen     uint64
	state   State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger replaces log.Default().
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithDialer replaces the gorilla default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) { m.events = make(chan Event, n) }
}

// New creates an idle manager that appends notifications to sink.
func New(cfg Config, sink Sink, opts ...Option) *Manager {
	d := *websocket.DefaultDialer
	m := &Manager{
		cfg:    cfg,
		sink:   sink,
		dialer: &d,
		logger: log.Default(),
		events: make(chan Event, defaultEventBuffer),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the stream for token. An empty token is ignored: nothing
// is dialed and no error is returned. Connecting with the token of the
// live connection is a no-op; any other token tears the live connection
// down before dialing.
func (m *Manager) Connect(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	m.mu.Lock()
	if !m.closed && m.current != nil && m.token == token {
		m.mu.Unlock()
		return nil
	}
	a, err := m.beginLocked(ctx, token)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.finish(a)
}

// Reconnect tears the live connection down and dials again with the same
// token. It does nothing when no token has been connected.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.token == "" && !m.closed {
		m.mu.Unlock()
		return nil
	}
	a, err := m.beginLocked(ctx, m.token)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.finish(a)
}

// SetToken switches the token generation: the live connection is closed
// and, if token is non-empty, a new one is opened.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	if token == "" {
		m.Disconnect()
		return nil
	}
	return m.Connect(ctx, token)
}

// Disconnect closes the live connection, if any, abandons a dial in
// flight and waits for the reader to exit. It is safe to call repeatedly
// and from deferred cleanup. The manager can connect again afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.token = ""
}

// Close disconnects for good: every later Connect or Reconnect returns
// ErrClosed without dialing, and a dial already in flight is discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.teardownLocked()
	m.token = ""
}

// State returns the state of the current generation.
func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// Generation returns the number of connection attempts started so far.
func (m *Manager) Generation() uint64 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.gen
}

// Events returns the diagnostic event stream. Sends never block; events
// are dropped when nobody reads.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// WaitForEvent returns a tea.Cmd that waits for the next event. Re-issue
// it after handling each Event to keep listening. The command yields nil
// once done is closed, so a discarded manager leaves no waiter behind.
func (m *Manager) WaitForEvent(done <-chan struct{}) tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		select {
		case ev := <-ch:
			return ev
		case <-done:
			return nil
		}
	}
}

// attempt is a dial in progress. It is discarded when it is no longer the
// manager's pending attempt by the time the handshake completes.
type attempt struct {
	gen      uint64
	endpoint string
	ctx      context.Context
	cancel   context.CancelFunc
}

// beginLocked tears the previous generation down and registers a new
// dial attempt for token.
func (m *Manager) beginLocked(ctx context.Context, token string) (*attempt, error) {
	if m.closed {
		return nil, ErrClosed
	}

	m.teardownLocked()
	m.token = token

	m.stateMu.Lock()
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.stateMu.Unlock()

	endpoint, err := BuildURL(m.cfg.BaseURL, m.cfg.Path, token)
	if err != nil {
		m.setState(gen, StateClosed)
		m.logger.Printf("notification stream: %v", err)
		m.emit(Event{Kind: EventError, Generation: gen, Err: err})
		return nil, err
	}

	dctx, cancel := context.WithCancel(ctx)
	a := &attempt{gen: gen, endpoint: endpoint, ctx: dctx, cancel: cancel}
	m.pending = a
	return a, nil
}

// finish dials for a and installs the connection if a is still the
// pending attempt.
func (m *Manager) finish(a *attempt) error {
	conn, err := m.dial(a.ctx, a.endpoint)
	a.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != a {
		if conn != nil {
			conn.Close()
		}
		m.logger.Printf("notification stream: dial for generation %d abandoned", a.gen)
		if m.closed {
			return ErrClosed
		}
		return ErrSuperseded
	}
	m.pending = nil

	if err != nil {
		m.setState(a.gen, StateClosed)
		m.logger.Printf("notification stream: connecting to %s: %v", redact(a.endpoint), err)
		m.emit(Event{Kind: EventError, Generation: a.gen, Err: err})
		return fmt.Errorf("connecting notification stream: %w", err)
	}

	s := newSession(m, a.gen, a.endpoint, conn)
	m.current = s
	m.setState(a.gen, StateOpen)
	m.logger.Printf("notification stream: connected to %s (generation %d)", redact(a.endpoint), a.gen)
	m.emit(Event{Kind: EventOpen, Generation: a.gen})

	go s.run()
	return nil
}

func (m *Manager) teardownLocked() {
	if a := m.pending; a != nil {
		m.pending = nil
		a.cancel()
		m.setState(a.gen, StateClosed)
	}

	s := m.current
	if s == nil {
		return
	}
	m.current = nil

	s.close()
	m.setState(s.gen, StateClosed)
	m.logger.Printf("notification stream: closed by client (generation %d)", s.gen)
	m.emit(Event{
		Kind:       EventClosed,
		Generation: s.gen,
		Code:       websocket.CloseNormalClosure,
		Reason:     "client closing",
		Local:      true,
	})
}

func (m *Manager) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	if t := m.cfg.HandshakeTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	conn, resp, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("%w: %s", err, http.StatusText(resp.StatusCode))
		}
		return nil, err
	}
	return conn, nil
}

// setState records st unless gen has been superseded.
func (m *Manager) setState(gen uint64, st State) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.gen == gen {
		m.state = st
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
	}
}

// handleFrame decodes one frame and forwards the notification to the sink.
func (m *Manager) handleFrame(ctx context.Context, gen uint64, data []byte) {
	n, err := DecodeFrame(data)
	if err != nil {
		if errors.Is(err, ErrMissingNotification) {
			m.logger.Printf("notification stream: warning: %v, frame ignored", err)
		} else {
			m.logger.Printf("notification stream: %v, frame dropped", err)
		}
		m.emit(Event{Kind: EventDropped, Generation: gen, Err: err})
		return
	}

	if err := m.sink.Append(ctx, n); err != nil {
		m.logger.Printf("notification stream: storing notification %s: %v", n.ID, err)
		m.emit(Event{Kind: EventError, Generation: gen, Err: err})
		return
	}

	m.emit(Event{Kind: EventNotification, Generation: gen, Notification: n})
}
