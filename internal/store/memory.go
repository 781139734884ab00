package store

import (
	"context"
	"errors"
	"sync"

	"github.com/nhle/gigbell/internal/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// MemoryStore keeps notifications in a slice ordered oldest first, so an
// append is O(1) and the snapshot reverses it.
type MemoryStore struct {
	opts     Options
	mu       sync.RWMutex
	items    []model.Notification
	ids      map[model.NotificationID]int
	closed   bool
	notifier notifier
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts: opts,
		ids:  make(map[model.NotificationID]int),
	}
}

// Append inserts n at the head.
func (s *MemoryStore) Append(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opts.Duplicates == DropDuplicates && s.ids[n.ID] > 0 {
		s.mu.Unlock()
		return nil
	}

	s.items = append(s.items, n)
	s.ids[n.ID]++

	if c := s.opts.Capacity; c > 0 && len(s.items) > c {
		evicted := s.items[:len(s.items)-c]
		for _, old := range evicted {
			if s.ids[old.ID]--; s.ids[old.ID] <= 0 {
				delete(s.ids, old.ID)
			}
		}
		kept := make([]model.Notification, c, c+1)
		copy(kept, s.items[len(s.items)-c:])
		s.items = kept
	}
	s.mu.Unlock()

	s.notifier.notify()
	return nil
}

// Snapshot returns a copy of the records, most recent first.
func (s *MemoryStore) Snapshot(_ context.Context) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.Notification, len(s.items))
	for i, n := range s.items {
		out[len(s.items)-1-i] = n
	}
	return out, nil
}

// Len returns the number of records held.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	return len(s.items), nil
}

// Subscribe registers for change signals.
func (s *MemoryStore) Subscribe() (<-chan struct{}, func()) {
	return s.notifier.subscribe()
}

// Close discards all records and closes subscriber channels.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.items = nil
	s.ids = nil
	s.mu.Unlock()

	s.notifier.closeAll()
	return nil
}
