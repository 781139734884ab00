package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/stream"
	"github.com/nhle/gigbell/tests/testutil"
)

var tailNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestFormatText(t *testing.T) {
	tests := []struct {
		name string
		n    model.Notification
		want string
	}{
		{
			name: "title only",
			n:    model.Notification{Title: "Offer received", CreatedAt: "2026-03-10T11:55:00Z"},
			want: "[5m ago] Offer received\n",
		},
		{
			name: "client and status",
			n: model.Notification{
				Title:     "Milestone paid",
				Text:      "Payment of $200 released",
				Client:    "Acme",
				Status:    model.StatusCompleted,
				CreatedAt: "2026-03-10T09:00:00Z",
			},
			want: "[3h ago] Milestone paid (Acme, completed)\n    Payment of $200 released\n",
		},
		{
			name: "text used as title is not repeated",
			n:    model.Notification{Text: "New message"},
			want: "[-] New message\n",
		},
		{
			name: "empty record",
			n:    model.Notification{},
			want: "[-] Notification\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatText(tt.n, tailNow, "Jan 2, 2006"))
		})
	}
}

func TestCheckFormat(t *testing.T) {
	for _, f := range []string{FormatText, FormatJSON, FormatYAML} {
		assert.NoError(t, checkFormat(f))
	}
	assert.Error(t, checkFormat("xml"))
}

func newTestTailer(format string) (*tailer, *bytes.Buffer) {
	var out bytes.Buffer
	t := newTailer(&out, format, "Jan 2, 2006")
	t.now = func() time.Time { return tailNow }
	t.logger = log.New(io.Discard, "", 0)
	return t, &out
}

func TestTailerAlertsOncePerID(t *testing.T) {
	tl, out := newTestTailer(FormatText)

	var alerted []model.NotificationID
	tl.alert = func(n model.Notification) error {
		alerted = append(alerted, n.ID)
		return nil
	}

	require.NoError(t, tl.handle(model.Notification{ID: "1", Title: "a"}))
	require.NoError(t, tl.handle(model.Notification{ID: "2", Title: "b"}))
	require.NoError(t, tl.handle(model.Notification{ID: "1", Title: "a again"}))

	assert.Equal(t, []model.NotificationID{"1", "2"}, alerted)
	assert.Equal(t, "[-] a\n[-] b\n[-] a again\n", out.String())
}

func TestTailerAlertFailureIsNotFatal(t *testing.T) {
	tl, out := newTestTailer(FormatText)
	tl.alert = func(model.Notification) error { return errors.New("no notification daemon") }

	require.NoError(t, tl.handle(model.Notification{ID: "1", Title: "a"}))
	assert.Equal(t, "[-] a\n", out.String())
}

func TestTailerJSON(t *testing.T) {
	tl, out := newTestTailer(FormatJSON)
	n := model.Notification{ID: "7", Title: "Offer", Client: "Acme"}

	require.NoError(t, tl.handle(n))

	var got model.Notification
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, n, got)
}

func TestTailerYAML(t *testing.T) {
	tl, out := newTestTailer(FormatYAML)

	require.NoError(t, tl.handle(model.Notification{ID: "1", Title: "first"}))
	require.NoError(t, tl.handle(model.Notification{ID: "2", Title: "second"}))
	tl.close()

	dec := yaml.NewDecoder(out)
	var titles []string
	for {
		var n model.Notification
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"first", "second"}, titles)
}

func TestTailerRun(t *testing.T) {
	t.Run("prints notifications until cancelled", func(t *testing.T) {
		tl, out := newTestTailer(FormatText)
		notifications := make(chan model.Notification, 2)
		notifications <- model.Notification{ID: "1", Title: "hello"}
		notifications <- model.Notification{ID: "2", Title: "again"}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- tl.run(ctx, notifications, func() stream.State { return stream.StateOpen })
		}()

		require.Eventually(t, func() bool { return len(notifications) == 0 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("run did not return after cancel")
		}
		// The second record may have been taken just before cancel.
		assert.True(t, strings.HasPrefix(out.String(), "[-] hello\n"))
	})

	t.Run("ends when the stream closes", func(t *testing.T) {
		tl, _ := newTestTailer(FormatText)

		err := tl.run(context.Background(), make(chan model.Notification), func() stream.State { return stream.StateClosed })
		assert.ErrorIs(t, err, errStreamEnded)
	})
}

// lockedBuffer is written by the tail loop and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailPrintsEveryNotificationOfABurst(t *testing.T) {
	const burst = 600

	server := testutil.NewNotificationServer(t, "")
	st := store.NewMemoryStore(store.Options{})
	f := newFeed(st)
	mgr := stream.New(stream.Config{
		BaseURL:          server.BaseURL(),
		Path:             stream.DefaultPath,
		HandshakeTimeout: 2 * time.Second,
	}, f,
		stream.WithLogger(log.New(io.Discard, "", 0)),
		stream.WithEventBuffer(8),
	)
	t.Cleanup(func() {
		mgr.Close()
		st.Close()
	})
	require.NoError(t, mgr.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return server.Active() == 1 }, 2*time.Second, 10*time.Millisecond)

	var out lockedBuffer
	tl := newTailer(&out, FormatText, "Jan 2, 2006")
	tl.logger = log.New(io.Discard, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.run(ctx, f.notifications(), mgr.State) }()

	for i := 0; i < burst; i++ {
		server.SendNotification(t, model.Notification{ID: model.NotificationID(strconv.Itoa(i)), Title: "n" + strconv.Itoa(i)})
	}

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == burst
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, "[-] n0", lines[0])
	assert.Equal(t, "[-] n"+strconv.Itoa(burst-1), lines[burst-1])

	n, err := st.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, burst, n)
}
