// Package storage implements the synchronous key-value persistence boundary used by the
// collection store, the rating registry and the session manager.
//
// Every [Storage] value is a handle. Writes made through one handle are announced as
// [Event] values to the watchers of every other handle backed by the same data, the way a
// browser fires storage events in every tab except the one that wrote. Event delivery never
// blocks a writer: when a watcher's buffer is full the event is dropped, which is safe
// because consumers re-read the key instead of trusting the payload.
//
// Backends:
//   - [Memory] : in-process, with sibling handles and an optional byte quota
//   - [SQLite] : a storage_items table polled for foreign writes
//   - [File] : a single JSON object file guarded by an advisory lock
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/shared"
)

// eventBuffer is the per-watcher channel capacity.
const eventBuffer = 64

// DefaultPollInterval is used by polling backends when none is configured.
const DefaultPollInterval = time.Second

// Storage is a flat namespace of string keys holding string values.
type Storage interface {
	Get(key string) (value string, ok bool, err error) // Get returns the value stored at key
	Set(key, value string) error                       // Set stores value at key
	Remove(key string) error                           // Remove deletes key; absent keys are not an error
	Keys() ([]string, error)                           // Keys lists every stored key in lexical order
	Watch(ctx context.Context) (<-chan Event, error)   // Watch streams changes made by other handles until ctx ends
	Close() error                                      // Close releases the handle and ends its watchers
}

// Event describes a change made through another handle.
type Event struct {
	Key     string
	Value   string
	Removed bool
	Origin  string
}

// Options configures a backend.
type Options struct {
	QuotaBytes   int           // Memory only; 0 disables the quota
	PollInterval time.Duration // SQLite and File watchers
	Lock         bool          // File only; take an advisory lock around writes
	Logger       *log.Logger   // poll failures are logged at debug level
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return o.PollInterval
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return shared.DiscardLogger()
	}
	return o.Logger
}

// Open builds the backend named by cfg.Driver.
func Open(cfg shared.StorageConfig, logger *log.Logger) (Storage, error) {
	opts := Options{
		QuotaBytes:   cfg.QuotaBytes,
		PollInterval: cfg.PollInterval.Duration,
		Lock:         cfg.Lock,
		Logger:       logger,
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		db, err := shared.NewDatabase(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 && cfg.Path != ":memory:" {
			shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
		}
		applied, err := shared.RunMigrations(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate storage: %w", err)
		}
		if applied > 0 {
			opts.logger().Info("migrated storage", "path", cfg.Path, "applied", applied)
		}
		return NewSQLite(db, opts), nil
	case "file", "json":
		return NewFile(nil, cfg.Path, opts)
	case "memory":
		return NewMemory(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}

// KeysWithPrefix filters Keys by prefix.
func KeysWithPrefix(s Storage, prefix string) ([]string, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	matched := keys[:0:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}

// Dump copies every key and value. Used by exports and tests.
func Dump(s Storage) (map[string]string, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// notify performs a non-blocking send.
func notify(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Follow calls fn for each event whose key satisfies match. The returned stop function
// cancels the subscription and waits until fn is no longer running.
func Follow(ctx context.Context, s Storage, match func(key string) bool, fn func(Event)) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	ch, err := s.Watch(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if match(ev.Key) {
				fn(ev)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// MatchKey matches exactly one key.
func MatchKey(key string) func(string) bool {
	return func(k string) bool { return k == key }
}

// MatchPrefix matches keys starting with prefix.
func MatchPrefix(prefix string) func(string) bool {
	return func(k string) bool { return strings.HasPrefix(k, prefix) }
}
