// Package collections implements the favorites and watch-later stores: deduplicated,
// insertion-ordered sets of titles persisted as one JSON array per collection.
//
// Mutations are gated by an [auth.Guard] and fail closed. Reads are never gated.
// Persistence failures are downgraded to warnings: the in-memory set stays authoritative
// and is written again on the next mutation or on [Store.Close].
//
// Stores follow their storage key and replace their snapshot wholesale when another
// handle writes it, so the last writer wins.
package collections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
)

// Store holds one named collection.
type Store struct {
	name     models.CollectionName
	st       storage.Storage
	guard    auth.Guard
	logger   *log.Logger
	now      func() time.Time
	onWarn   func(error)
	onChange func()

	mu      sync.RWMutex
	entries []models.CollectionEntry
	index   map[models.Key]int
	dirty   bool
	loaded  bool
	stop    func()
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for AddedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWarningHandler receives every persistence warning, wrapping
// [shared.ErrPersistenceWriteFailed], [shared.ErrPersistenceReadFailed] or
// [shared.ErrPersistenceReadCorrupt].
func WithWarningHandler(fn func(error)) Option {
	return func(s *Store) { s.onWarn = fn }
}

// WithChangeHandler is called after the snapshot is replaced by a foreign write.
func WithChangeHandler(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates an empty store named name. Call [Store.Open] to load persisted entries.
func New(name models.CollectionName, st storage.Storage, guard auth.Guard, opts ...Option) *Store {
	if guard == nil {
		guard = auth.Deny
	}

	s := &Store{
		name:   name,
		st:     st,
		guard:  guard,
		logger: shared.DiscardLogger(),
		now:    time.Now,
		index:  make(map[models.Key]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("collection", string(name))
	return s
}

// Name returns the collection name, which is also its storage key.
func (s *Store) Name() models.CollectionName { return s.name }

// Open follows writes from other handles and loads the persisted collection.
//
// When the first load fails because storage did not answer, the store stays unloaded and
// mutations retry the load before writing.
func (s *Store) Open(ctx context.Context) error {
	stop, err := storage.Follow(ctx, s.st, storage.MatchKey(string(s.name)), func(storage.Event) {
		s.Reconcile()
		if s.onChange != nil {
			s.onChange()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	s.Reconcile()
	return nil
}

// Close stops following storage and writes the set again if an earlier write failed.
func (s *Store) Close() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.write()
}

// Reconcile replaces the in-memory set with the persisted one. A missing key is an empty
// set; a corrupt value is reported and treated as empty. When storage fails to answer the
// current set is kept.
func (s *Store) Reconcile() {
	if err := s.reconcile(); err != nil {
		s.warn(err)
	}
}

func (s *Store) reconcile() error {
	entries, err := s.load()
	if err != nil && !errors.Is(err, shared.ErrPersistenceReadCorrupt) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(entries)
	s.dirty = false
	s.loaded = true
	return err
}

// ensureLoaded retries the initial load. Writing an unloaded set would overwrite the
// persisted one.
func (s *Store) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	err := s.reconcile()
	if err != nil && !errors.Is(err, shared.ErrPersistenceReadCorrupt) {
		return fmt.Errorf("%s not loaded: %w", s.name, err)
	}
	if err != nil {
		s.warn(err)
	}
	return nil
}

// Add appends item unless an entry with the same identity key exists.
func (s *Store) Add(item models.CatalogItem) error {
	if !s.guard.RequireSession() {
		return fmt.Errorf("%w: cannot add to %s", shared.ErrUnauthenticated, s.name.Label())
	}

	entry, err := models.NewCollectionEntry(item, s.now())
	if err != nil {
		return err
	}

	return s.mutate(func() bool {
		if _, ok := s.index[entry.Key]; ok {
			return false
		}
		s.append(entry)
		return true
	})
}

// Remove deletes the entry named by ref. Removing an absent entry is a no-op.
func (s *Store) Remove(ref models.Ref) error {
	if !s.guard.RequireSession() {
		return fmt.Errorf("%w: cannot remove from %s", shared.ErrUnauthenticated, s.name.Label())
	}

	key, err := ref.IdentityKey()
	if err != nil {
		return err
	}

	return s.mutate(func() bool {
		i, ok := s.index[key]
		if !ok {
			return false
		}

		entries := make([]models.CollectionEntry, 0, len(s.entries)-1)
		entries = append(entries, s.entries[:i]...)
		entries = append(entries, s.entries[i+1:]...)
		s.replace(entries)
		return true
	})
}

// Toggle removes item when present and adds it otherwise, reporting whether it was added.
func (s *Store) Toggle(item models.CatalogItem) (bool, error) {
	if !s.guard.RequireSession() {
		return false, fmt.Errorf("%w: cannot change %s", shared.ErrUnauthenticated, s.name.Label())
	}

	key, err := models.Resolve(item)
	if err != nil {
		return false, err
	}
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	if s.Contains(key) {
		return false, s.Remove(key)
	}
	return true, s.Add(item)
}

// Merge appends every entry whose key is not yet present, keeping its AddedAt (or now,
// when zero), and writes once. It returns the number of entries added.
func (s *Store) Merge(entries []models.CollectionEntry) (int, error) {
	if !s.guard.RequireSession() {
		return 0, fmt.Errorf("%w: cannot import into %s", shared.ErrUnauthenticated, s.name.Label())
	}

	added := 0
	err := s.mutate(func() bool {
		for _, entry := range entries {
			key, err := entry.Key.IdentityKey()
			if err != nil {
				if key, err = models.Resolve(entry.Item); err != nil {
					continue
				}
			}
			entry.Key = key
			if _, ok := s.index[key]; ok {
				continue
			}
			if entry.AddedAt.IsZero() {
				entry.AddedAt = s.now().UTC()
			}
			entry.Item = entry.Item.Clone()
			s.append(entry)
			added++
		}
		return added > 0
	})
	return added, err
}

// Contains reports whether ref is in the collection. Unresolvable refs are never present.
func (s *Store) Contains(ref models.Ref) bool {
	key, err := ref.IdentityKey()
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// Get returns the entry for ref.
func (s *Store) Get(ref models.Ref) (models.CollectionEntry, bool) {
	key, err := ref.IdentityKey()
	if err != nil {
		return models.CollectionEntry{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[key]
	if !ok {
		return models.CollectionEntry{}, false
	}
	return s.entries[i].Clone(), true
}

// List returns a deep copy of the entries in insertion order.
func (s *Store) List() []models.CollectionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CollectionEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dirty reports whether the last write failed and is still pending.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) load() ([]models.CollectionEntry, error) {
	value, ok, err := s.st.Get(string(s.name))
	if err != nil {
		if errors.Is(err, shared.ErrPersistenceReadCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrPersistenceReadFailed, s.name, err)
	}
	if !ok || value == "" || value == "null" {
		return nil, nil
	}

	entries, skipped, err := models.DecodeEntries(value)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped unresolvable entries", "count", skipped)
	}
	return entries, nil
}

// replace must be called with s.mu held. Later duplicates are dropped.
func (s *Store) replace(entries []models.CollectionEntry) {
	s.entries = make([]models.CollectionEntry, 0, len(entries))
	s.index = make(map[models.Key]int, len(entries))
	for _, e := range entries {
		if _, ok := s.index[e.Key]; ok {
			continue
		}
		s.append(e)
	}
}

// append must be called with s.mu held.
func (s *Store) append(e models.CollectionEntry) {
	s.index[e.Key] = len(s.entries)
	s.entries = append(s.entries, e)
}

// mutate applies fn under the lock and writes the set when fn reports a change or an
// earlier write is still pending. Write failures are reported after the lock is released.
// An unloaded store is loaded first; when that fails nothing is changed.
func (s *Store) mutate(fn func() bool) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	var err error
	if changed := fn(); changed || s.dirty {
		err = s.write()
	}
	s.mu.Unlock()

	if err != nil {
		s.warn(err)
	}
	return nil
}

// write must be called with s.mu held.
func (s *Store) write() error {
	data, err := models.EncodeEntries(s.entries)
	if err == nil {
		err = s.st.Set(string(s.name), data)
	}
	if err != nil {
		s.dirty = true
		return fmt.Errorf("%w: %s: %v", shared.ErrPersistenceWriteFailed, s.name, err)
	}
	s.dirty = false
	return nil
}

func (s *Store) warn(err error) {
	s.logger.Warn("persistence warning", "error", err)
	if s.onWarn != nil {
		s.onWarn(err)
	}
}
