package stream

import (
	"fmt"

	"github.com/nhle/gigbell/internal/model"
)

// State is the lifecycle state of the manager's current token generation.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind identifies what an Event reports.
type EventKind int

const (
	EventOpen EventKind = iota
	EventNotification
	EventDropped
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventNotification:
		return "notification"
	case EventDropped:
		return "dropped"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a diagnostic report from the manager. Events are informational;
// the store is updated before EventNotification is sent.
type Event struct {
	Kind       EventKind
	Generation uint64

	// Notification is set for EventNotification.
	Notification model.Notification

	// Code and Reason are set for EventClosed. Local is true when the
	// client closed the connection itself.
	Code   int
	Reason string
	Local  bool

	// Err is set for EventDropped and EventError.
	Err error
}
