package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/gigbell/internal/model"
)

var (
	// ErrMalformedFrame means the frame body is not the expected JSON.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMissingNotification means the frame decoded but carries no
	// notification payload.
	ErrMissingNotification = errors.New("frame has no notification")
)

// frame is the envelope the backend sends on the notification stream.
type frame struct {
	Notification json.RawMessage `json:"notification"`
}

// DecodeFrame extracts the notification from one inbound frame. A record
// without an id gets a random one so it can still be tracked as viewed.
func DecodeFrame(data []byte) (model.Notification, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	raw := bytes.TrimSpace(f.Notification)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.Notification{}, ErrMissingNotification
	}

	var n model.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return model.Notification{}, fmt.Errorf("%w: notification: %v", ErrMalformedFrame, err)
	}

	if n.ID == "" {
		n.ID = model.NotificationID(uuid.NewString())
	}

	return n, nil
}
