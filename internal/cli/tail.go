package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/model"
	"github.com/nhle/gigbell/internal/readstate"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/stream"
	"github.com/nhle/gigbell/internal/ui/bell"
)

// Output formats understood by tail.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// errStreamEnded is returned when the server closes the stream and no
// reconnection is configured or reconnection gave up.
var errStreamEnded = errors.New("notification stream ended")

// statePoll is how often tail checks whether the stream gave up.
const statePoll = 500 * time.Millisecond

var (
	tailFormat  string
	tailDesktop bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print notifications as they arrive",
	Long: `Connect to the notification stream and print each notification as
it arrives, until interrupted or the server closes the stream.

With --desktop, every notification with a new id also raises a desktop
notification.`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", FormatText, "output format: text, json or yaml")
	tailCmd.Flags().BoolVar(&tailDesktop, "desktop", false, "raise a desktop notification for each new notification")
}

func runTail(cmd *cobra.Command, args []string) error {
	if err := checkFormat(tailFormat); err != nil {
		return err
	}

	token, err := credential.DefaultProvider().Token()
	if err != nil {
		if errors.Is(err, credential.ErrNoToken) {
			return fmt.Errorf("%w: run `gigbell login` or set %s", err, credential.EnvToken)
		}
		return err
	}

	st, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("creating notification store: %w", err)
	}
	defer st.Close()

	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	f := newFeed(st)
	mgr := stream.New(stream.ConfigFrom(cfg.Stream), f, stream.WithLogger(logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Connect(ctx, token); err != nil {
		return err
	}
	defer mgr.Close()

	t := newTailer(cmd.OutOrStdout(), tailFormat, cfg.Display.DateLayout)
	t.logger = logger
	if tailDesktop {
		t.alert = desktopAlert
	}
	defer t.close()

	return t.run(ctx, f.notifications(), mgr.State)
}

func checkFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func desktopAlert(n model.Notification) error {
	body := n.Text
	if n.Client != "" {
		body = n.Client + ": " + body
	}
	return beeep.Notify(n.DisplayTitle(), body, "")
}

// feed is the sink tail hands the manager. Each notification is stored
// and then handed to the printer; the stream reader waits until it is
// taken, so bursts are never dropped.
type feed struct {
	store store.Store
	out   chan model.Notification
}

func newFeed(st store.Store) *feed {
	return &feed{store: st, out: make(chan model.Notification)}
}

func (f *feed) Append(ctx context.Context, n model.Notification) error {
	if err := f.store.Append(ctx, n); err != nil {
		return err
	}
	select {
	case f.out <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *feed) notifications() <-chan model.Notification {
	return f.out
}

// tailer prints notifications and tracks which ids it has already shown.
type tailer struct {
	out     io.Writer
	format  string
	layout  string
	now     func() time.Time
	alert   func(model.Notification) error
	logger  *log.Logger
	tracker *readstate.Tracker
	yaml    *yaml.Encoder
}

func newTailer(out io.Writer, format, layout string) *tailer {
	t := &tailer{
		out:     out,
		format:  format,
		layout:  layout,
		now:     time.Now,
		logger:  log.Default(),
		tracker: readstate.New(),
	}
	if format == FormatYAML {
		t.yaml = yaml.NewEncoder(out)
		t.yaml.SetIndent(2)
	}
	return t
}

// run prints notifications until ctx is done or the stream reaches
// StateClosed.
func (t *tailer) run(ctx context.Context, notifications <-chan model.Notification, state func() stream.State) error {
	ticker := time.NewTicker(statePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case n := <-notifications:
			if err := t.handle(n); err != nil {
				return err
			}

		case <-ticker.C:
			if state() == stream.StateClosed {
				return errStreamEnded
			}
		}
	}
}

func (t *tailer) handle(n model.Notification) error {
	fresh := t.tracker.MarkAllViewed(n.ID) > 0
	if err := t.write(n); err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}
	if fresh && t.alert != nil {
		if err := t.alert(n); err != nil {
			t.logger.Printf("desktop notification: %v", err)
		}
	}
	return nil
}

func (t *tailer) write(n model.Notification) error {
	switch t.format {
	case FormatJSON:
		return json.NewEncoder(t.out).Encode(n)
	case FormatYAML:
		return t.yaml.Encode(n)
	default:
		_, err := io.WriteString(t.out, formatText(n, t.now(), t.layout))
		return err
	}
}

func (t *tailer) close() {
	if t.yaml != nil {
		_ = t.yaml.Close()
	}
}

// formatText renders a notification as a headline and an optional
// indented body line.
func formatText(n model.Notification, now time.Time, layout string) string {
	var b strings.Builder

	when := bell.RelativeTime(n.CreatedAt, now, layout)
	if when == "" {
		when = "-"
	}
	fmt.Fprintf(&b, "[%s] %s", when, n.DisplayTitle())

	var tags []string
	if n.Client != "" {
		tags = append(tags, n.Client)
	}
	if n.Status != "" {
		tags = append(tags, string(n.Status))
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(tags, ", "))
	}
	b.WriteString("\n")

	if text := strings.TrimSpace(n.Text); text != "" && text != n.DisplayTitle() {
		fmt.Fprintf(&b, "    %s\n", text)
	}
	return b.String()
}
