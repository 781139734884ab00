package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/gigbell/internal/model"
)

// SQLiteStore implements the Store interface on SQLite. It is meant to be
// opened on ":memory:" so the data lives exactly as long as the session;
// Close drops everything.
type SQLiteStore struct {
	db       *sqlx.DB
	opts     Options
	closeMu  sync.Once
	notifier notifier
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite database at dsn and runs the schema
// migrations. The pool is pinned to one connection: every connection to
// ":memory:" would otherwise get its own empty database.
func NewSQLiteStore(dsn string, opts Options) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, opts: opts}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection and all subscriptions.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeMu.Do(func() {
		s.notifier.closeAll()
		err = s.db.Close()
	})
	return err
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Append inserts n at the head, applying the duplicate policy and the
// capacity bound in the same transaction.
func (s *SQLiteStore) Append(ctx context.Context, n model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if s.opts.Duplicates == DropDuplicates {
		var exists bool
		err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ?)", string(n.ID),
		)
		if err != nil {
			return fmt.Errorf("checking notification %s: %w", n.ID, err)
		}
		if exists {
			return nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, title, text, client, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(n.ID), n.Title, n.Text, n.Client, string(n.Status), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}

	if s.opts.Capacity > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM notifications
			WHERE seq <= (SELECT MAX(seq) FROM notifications) - ?`,
			s.opts.Capacity,
		)
		if err != nil {
			return fmt.Errorf("evicting old notifications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing notification %s: %w", n.ID, err)
	}

	s.notifier.notify()
	return nil
}

// Snapshot returns every record, most recent first.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]model.Notification, error) {
	out := []model.Notification{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, title, text, client, status, created_at
		FROM notifications
		ORDER BY seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return out, nil
}

// Len returns the number of records held.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM notifications"); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

// Subscribe registers for change signals.
func (s *SQLiteStore) Subscribe() (<-chan struct{}, func()) {
	return s.notifier.subscribe()
}
