package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/shared"
)

// SQLite stores items in the storage_items table created by [shared.RunMigrations].
//
// Every write stamps the row with the next value of storage_items_sequence and the
// handle's origin. Removals are soft deletes so that other handles can observe them.
type SQLite struct {
	db     *sql.DB
	origin string
	owner  bool
	poll   time.Duration
	logger *log.Logger

	mu      sync.Mutex
	closed  bool
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

var _ Storage = (*SQLite)(nil)

// NewSQLite wraps a migrated database. The handle owns db and closes it on [SQLite.Close].
func NewSQLite(db *sql.DB, opts Options) *SQLite {
	return &SQLite{
		db:     db,
		origin: shared.GenerateID(),
		owner:  true,
		poll:   opts.pollInterval(),
		logger: opts.logger(),
	}
}

// Sibling returns another handle on the same connection pool with its own origin.
// Siblings do not close the database.
func (s *SQLite) Sibling() *SQLite {
	return &SQLite{db: s.db, origin: shared.GenerateID(), poll: s.poll, logger: s.logger}
}

// Origin identifies this handle in storage_items.origin.
func (s *SQLite) Origin() string { return s.origin }

// Get returns the live value stored at key.
func (s *SQLite) Get(key string) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}

	query := `
		SELECT value
		FROM storage_items
		WHERE key = ? AND deleted_at IS NULL
	`

	var value string
	err := s.db.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key and clears any soft delete.
func (s *SQLite) Set(key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO storage_items (key, value, sequence, origin, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			sequence = excluded.sequence,
			origin = excluded.origin,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`
	if _, err := tx.Exec(query, key, value, sequence, s.origin, now, now); err != nil {
		return fmt.Errorf("failed to set item %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item %s: %w", key, err)
	}
	return nil
}

// Remove soft-deletes key. Removing an absent key changes nothing.
func (s *SQLite) Remove(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE storage_items
		SET deleted_at = ?, updated_at = ?, sequence = ?, origin = ?
		WHERE key = ? AND deleted_at IS NULL
	`
	result, err := tx.Exec(query, now, now, sequence, s.origin, key)
	if err != nil {
		return fmt.Errorf("failed to remove item %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal of %s: %w", key, err)
	}
	return nil
}

// Keys lists live keys in lexical order.
func (s *SQLite) Keys() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT key
		FROM storage_items
		WHERE deleted_at IS NULL
		ORDER BY key
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// Watch polls for rows written by other origins since the call.
func (s *SQLite) Watch(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, shared.ErrStorageClosed
	}

	var cursor int64
	if err := s.db.QueryRow("SELECT value FROM storage_items_sequence WHERE id = 1").Scan(&cursor); err != nil {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)

	ch := make(chan Event, eventBuffer)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ch)

		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next, err := s.pollOnce(ctx, cursor, ch)
				if err != nil {
					s.logger.Debug("storage poll failed", "error", err)
					continue
				}
				cursor = next
			}
		}
	}()

	return ch, nil
}

// pollOnce emits events for foreign rows newer than cursor and returns the new cursor.
func (s *SQLite) pollOnce(ctx context.Context, cursor int64, ch chan Event) (int64, error) {
	query := `
		SELECT key, value, sequence, origin, deleted_at IS NOT NULL
		FROM storage_items
		WHERE sequence > ? AND origin <> ?
		ORDER BY sequence
	`

	rows, err := s.db.QueryContext(ctx, query, cursor, s.origin)
	if err != nil {
		return cursor, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev       Event
			sequence int64
		)
		if err := rows.Scan(&ev.Key, &ev.Value, &sequence, &ev.Origin, &ev.Removed); err != nil {
			return cursor, err
		}
		if ev.Removed {
			ev.Value = ""
		}
		cursor = sequence
		notify(ch, ev)
	}
	return cursor, rows.Err()
}

// Close stops watchers and, for the owning handle, closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.mu.Unlock()

	s.wg.Wait()
	if s.owner {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.ErrStorageClosed
	}
	return nil
}

// nextSequence increments storage_items_sequence inside tx.
func nextSequence(tx *sql.Tx) (int64, error) {
	if _, err := tx.Exec("UPDATE storage_items_sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int64
	if err := tx.QueryRow("SELECT value FROM storage_items_sequence WHERE id = 1").Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}
