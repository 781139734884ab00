package bell

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nhle/gigbell/internal/model"
)

// DefaultDateLayout formats records older than a day.
const DefaultDateLayout = "Jan 2, 2006"

// MaxBadgeCount is the largest unread count the badge shows as a number.
const MaxBadgeCount = 99

// RelativeTime renders created relative to now: "Just now" under a minute,
// whole minutes under an hour, whole hours under a day and the date in
// layout (local time) after that. An unparseable timestamp renders as "".
func RelativeTime(created string, now time.Time, layout string) string {
	t, ok := model.ParseTimestamp(created)
	if !ok {
		return ""
	}
	if layout == "" {
		layout = DefaultDateLayout
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format(layout)
	}
}

// BadgeText returns the unread badge label and whether the badge is shown
// at all.
func BadgeText(unread int) (string, bool) {
	switch {
	case unread <= 0:
		return "", false
	case unread > MaxBadgeCount:
		return strconv.Itoa(MaxBadgeCount) + "+", true
	default:
		return strconv.Itoa(unread), true
	}
}
