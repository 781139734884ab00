// Package readstate tracks which notifications the user has been shown.
package readstate

import (
	"sync"

	"github.com/nhle/gigbell/internal/model"
)

// Tracker is a grow-only set of viewed notification ids. There is no way
// to mark an id unviewed; a fresh Tracker is the only reset.
type Tracker struct {
	mu     sync.RWMutex
	viewed map[model.NotificationID]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{viewed: make(map[model.NotificationID]struct{})}
}

// MarkAllViewed unions ids into the viewed set and reports how many were
// new.
func (t *Tracker) MarkAllViewed(ids ...model.NotificationID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, id := range ids {
		if _, ok := t.viewed[id]; ok {
			continue
		}
		t.viewed[id] = struct{}{}
		added++
	}
	return added
}

// IsViewed reports whether id has been marked.
func (t *Tracker) IsViewed(id model.NotificationID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.viewed[id]
	return ok
}

// Unread counts the records in ns whose id has not been viewed. Repeated
// ids count once per record.
func (t *Tracker) Unread(ns []model.Notification) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, n := range ns {
		if _, ok := t.viewed[n.ID]; !ok {
			count++
		}
	}
	return count
}

// Len returns the size of the viewed set.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.viewed)
}
