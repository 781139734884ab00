package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nhle/gigbell/internal/model"
)

// DuplicatePolicy decides what happens to a record whose id is already held.
type DuplicatePolicy int

const (
	// KeepDuplicates stores every record, even when its id repeats.
	KeepDuplicates DuplicatePolicy = iota
	// DropDuplicates ignores a record whose id is already in the store.
	DropDuplicates
)

// ParseDuplicatePolicy maps the config value to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", model.DuplicatesKeep:
		return KeepDuplicates, nil
	case model.DuplicatesDrop:
		return DropDuplicates, nil
	default:
		return KeepDuplicates, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Options configure a Store.
type Options struct {
	// Capacity bounds the number of records held; 0 means unbounded.
	// When full, the oldest record is evicted.
	Capacity   int
	Duplicates DuplicatePolicy
}

// Store holds the notifications received during one stream session,
// most recent first. Records are only ever inserted at the head; there is
// no update or delete. Closing a store discards its records.
type Store interface {
	Append(ctx context.Context, n model.Notification) error
	Snapshot(ctx context.Context) ([]model.Notification, error)
	Len(ctx context.Context) (int, error)

	// Subscribe returns a channel that receives a signal after every
	// append. Signals coalesce: a slow reader sees one pending signal, not
	// one per record. The returned func unsubscribes.
	Subscribe() (<-chan struct{}, func())

	Close() error
}

// New builds the store selected by cfg.
func New(cfg model.StoreConfig) (Store, error) {
	policy, err := ParseDuplicatePolicy(cfg.Duplicates)
	if err != nil {
		return nil, err
	}
	opts := Options{Capacity: cfg.Capacity, Duplicates: policy}

	switch cfg.Backend {
	case "", model.StoreBackendMemory:
		return NewMemoryStore(opts), nil
	case model.StoreBackendSQLite:
		return NewSQLiteStore(":memory:", opts)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// notifier fans change signals out to subscribers.
type notifier struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan struct{}
	closed bool
}

func (nt *notifier) subscribe() (<-chan struct{}, func()) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if nt.closed {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}
	if nt.subs == nil {
		nt.subs = make(map[int]chan struct{})
	}
	id := nt.next
	nt.next++
	ch := make(chan struct{}, 1)
	nt.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			if c, ok := nt.subs[id]; ok {
				delete(nt.subs, id)
				close(c)
			}
		})
	}
}

func (nt *notifier) notify() {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	for _, ch := range nt.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending.
		}
	}
}

func (nt *notifier) closeAll() {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nt.closed = true
	for id, ch := range nt.subs {
		delete(nt.subs, id)
		close(ch)
	}
}
