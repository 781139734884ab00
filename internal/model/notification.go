package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultNotificationTitle is shown when a notification carries neither a
// title nor a text.
const DefaultNotificationTitle = "Notification"

// NotificationID is the opaque identifier the backend assigns to a
// notification. The backend sends either a string or a number; both are
// kept in their textual form so ids compare consistently.
type NotificationID string

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (id *NotificationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding notification id: %w", err)
		}
		*id = NotificationID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding notification id: %w", err)
	}
	*id = NotificationID(n.String())
	return nil
}

// Status is the optional label a notification carries. It only selects the
// badge colour.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Canonical returns the lower-cased label the backend may send in any
// case.
func (s Status) Canonical() Status {
	return Status(strings.ToLower(strings.TrimSpace(string(s))))
}

// Known reports whether the status is one of the labels with a dedicated
// colour.
func (s Status) Known() bool {
	switch s.Canonical() {
	case StatusCompleted, StatusPending, StatusFailed:
		return true
	default:
		return false
	}
}

// Notification represents an alert pushed by the marketplace backend over
// the notification stream.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID NotificationID `json:"id" yaml:"id" db:"id"`

	// Title is the short summary line.
	Title string `json:"title,omitempty" yaml:"title,omitempty" db:"title"`

	// Text is the human-readable notification body.
	Text string `json:"text,omitempty" yaml:"text,omitempty" db:"text"`

	// Client is the counterparty the notification concerns, if any.
	Client string `json:"client,omitempty" yaml:"client,omitempty" db:"client"`

	// Status drives the badge colour only.
	Status Status `json:"status,omitempty" yaml:"status,omitempty" db:"status"`

	// CreatedAt is the raw server timestamp, usually ISO-8601.
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty" db:"created_at"`
}

// DisplayTitle returns the title, falling back to the text and finally to
// DefaultNotificationTitle.
func (n Notification) DisplayTitle() string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		return t
	}
	return DefaultNotificationTitle
}

// createdAtLayouts lists the timestamp formats the backend has been seen
// to emit.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// CreatedTime parses CreatedAt. ok is false when the field is empty or in
// an unknown format.
func (n Notification) CreatedTime() (t time.Time, ok bool) {
	return ParseTimestamp(n.CreatedAt)
}

// ParseTimestamp parses a server timestamp in any of the known layouts.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// IDs returns the identifiers of the given notifications in order.
func IDs(ns []Notification) []NotificationID {
	ids := make([]NotificationID, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return ids
}
