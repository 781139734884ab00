package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nhle/gigbell/internal/model"
)

// NotificationServer is a fake backend exposing /ws/notifications/. It
// accepts a connection when the token query parameter matches the
// server's token (or, when that is empty, any non-empty token) and lets tests push frames.
type NotificationServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	token    string
	conns    map[*websocket.Conn]*sync.Mutex
	accepted int
	rejected int
	tokens   []string
}

// NewNotificationServer starts the server; it is shut down with the test.
func NewNotificationServer(t *testing.T, token string) *NotificationServer {
	t.Helper()

	gin.SetMode(gin.TestMode)
	ns := &NotificationServer{
		token: token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}

	r := gin.New()
	r.GET("/ws/notifications/", ns.handleWebSocket)
	ns.srv = httptest.NewServer(r)

	t.Cleanup(ns.Close)
	return ns
}

func (ns *NotificationServer) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	ns.mu.Lock()
	want := ns.token
	ns.mu.Unlock()

	if token == "" || (want != "" && token != want) {
		ns.mu.Lock()
		ns.rejected++
		ns.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := ns.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ns.mu.Lock()
	ns.conns[conn] = &sync.Mutex{}
	ns.accepted++
	ns.tokens = append(ns.tokens, token)
	ns.mu.Unlock()

	defer func() {
		ns.mu.Lock()
		delete(ns.conns, conn)
		ns.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// SetToken changes the token future handshakes must present.
func (ns *NotificationServer) SetToken(token string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.token = token
}

// BaseURL returns the ws:// address of the server.
func (ns *NotificationServer) BaseURL() string {
	return "ws" + strings.TrimPrefix(ns.srv.URL, "http")
}

// Active returns the number of open connections.
func (ns *NotificationServer) Active() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.conns)
}

// Accepted returns how many connections were upgraded in total.
func (ns *NotificationServer) Accepted() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.accepted
}

// Rejected returns how many handshakes failed the token check.
func (ns *NotificationServer) Rejected() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.rejected
}

// Tokens returns the tokens of accepted connections in order.
func (ns *NotificationServer) Tokens() []string {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return append([]string(nil), ns.tokens...)
}

// Send writes a raw text frame to every open connection.
func (ns *NotificationServer) Send(t *testing.T, payload []byte) {
	t.Helper()

	ns.mu.Lock()
	defer ns.mu.Unlock()

	for conn, wmu := range ns.conns {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		wmu.Unlock()
		if err != nil {
			t.Errorf("writing frame: %v", err)
		}
	}
}

// SendNotification wraps n in the stream envelope and sends it.
func (ns *NotificationServer) SendNotification(t *testing.T, n model.Notification) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{"notification": n})
	if err != nil {
		t.Fatalf("marshaling notification: %v", err)
	}
	ns.Send(t, payload)
}

// CloseAll closes every open connection from the server side with the
// given close code.
func (ns *NotificationServer) CloseAll(code int, reason string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	for conn := range ns.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}

// Close stops the server.
func (ns *NotificationServer) Close() {
	ns.CloseAll(websocket.CloseGoingAway, "server shutting down")
	ns.srv.Close()
}
