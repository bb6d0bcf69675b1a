package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// fileOrigin is reported for events observed in a shared file, where the writer is unknown.
const fileOrigin = "file"

// File keeps every item in one JSON object on disk. Writes are read-modify-write, taken
// under an advisory lock on "<path>.lock" when [Options.Lock] is set and fs is the OS
// filesystem.
type File struct {
	fs     afero.Fs
	path   string
	lock   *flock.Flock
	poll   time.Duration
	logger *log.Logger

	mu       sync.Mutex
	closed   bool
	watchers []*fileWatcher
	cancels  []context.CancelFunc
	wg       sync.WaitGroup
}

// fileWatcher holds the snapshot a watcher diffs against.
type fileWatcher struct {
	ch   chan Event
	seen map[string]string
}

var _ Storage = (*File)(nil)

// NewFile opens path on fs, defaulting to the OS filesystem when fs is nil.
func NewFile(fs afero.Fs, path string, opts Options) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: storage path is empty", shared.ErrInvalidConfig)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	f := &File{
		fs:     fs,
		path:   path,
		poll:   opts.pollInterval(),
		logger: opts.logger(),
	}
	if _, ok := fs.(*afero.OsFs); ok && opts.Lock {
		f.lock = flock.New(path + ".lock")
	}
	return f, nil
}

// Path is the JSON file backing this handle.
func (f *File) Path() string { return f.path }

// Get returns the value stored at key. A corrupt file yields [shared.ErrPersistenceReadCorrupt].
func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, shared.ErrStorageClosed
	}

	items, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

// Set stores value at key. A corrupt file is replaced.
func (f *File) Set(key, value string) error {
	return f.update(key, func(items map[string]string) bool {
		if old, ok := items[key]; ok && old == value {
			return false
		}
		items[key] = value
		return true
	})
}

// Remove deletes key.
func (f *File) Remove(key string) error {
	return f.update(key, func(items map[string]string) bool {
		if _, ok := items[key]; !ok {
			return false
		}
		delete(items, key)
		return true
	})
}

// Keys lists every key in lexical order.
func (f *File) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, shared.ErrStorageClosed
	}

	items, err := f.read()
	if err != nil {
		return nil, err
	}
	return sortedKeys(items), nil
}

// Watch polls the file and emits an event for each key whose value changed since the last
// poll, ignoring writes made through this handle.
func (f *File) Watch(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, shared.ErrStorageClosed
	}

	seen, err := f.read()
	if err != nil && !errors.Is(err, shared.ErrPersistenceReadCorrupt) {
		return nil, err
	}
	if seen == nil {
		seen = map[string]string{}
	}

	w := &fileWatcher{ch: make(chan Event, eventBuffer), seen: seen}
	f.watchers = append(f.watchers, w)

	ctx, cancel := context.WithCancel(ctx)
	f.cancels = append(f.cancels, cancel)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(w.ch)

		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				f.detach(w)
				return
			case <-ticker.C:
				if err := f.diff(w); err != nil {
					f.logger.Debug("storage poll failed", "path", f.path, "error", err)
				}
			}
		}
	}()

	return w.ch, nil
}

// Close stops watchers. The file is left in place.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for _, cancel := range f.cancels {
		cancel()
	}
	f.cancels = nil
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *File) update(key string, mutate func(map[string]string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return shared.ErrStorageClosed
	}

	if f.lock != nil {
		if err := f.lock.Lock(); err != nil {
			return fmt.Errorf("failed to lock %s: %w", f.path, err)
		}
		defer f.lock.Unlock()
	}

	items, err := f.read()
	if err != nil {
		if !errors.Is(err, shared.ErrPersistenceReadCorrupt) {
			return err
		}
		items = map[string]string{}
	}

	if !mutate(items) {
		return nil
	}
	if err := f.write(items); err != nil {
		return err
	}

	value, ok := items[key]
	for _, w := range f.watchers {
		if ok {
			w.seen[key] = value
		} else {
			delete(w.seen, key)
		}
	}
	return nil
}

// diff compares the file with w.seen and emits the differences.
func (f *File) diff(w *fileWatcher) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.read()
	if err != nil {
		return err
	}

	for k, v := range items {
		if old, ok := w.seen[k]; !ok || old != v {
			notify(w.ch, Event{Key: k, Value: v, Origin: fileOrigin})
		}
	}
	for k := range w.seen {
		if _, ok := items[k]; !ok {
			notify(w.ch, Event{Key: k, Removed: true, Origin: fileOrigin})
		}
	}
	w.seen = items
	return nil
}

func (f *File) detach(w *fileWatcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, candidate := range f.watchers {
		if candidate == w {
			f.watchers = append(f.watchers[:i], f.watchers[i+1:]...)
			return
		}
	}
}

// read must be called with f.mu held. A missing file is empty.
func (f *File) read() (map[string]string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	items := map[string]string{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrPersistenceReadCorrupt, f.path, err)
	}
	return items, nil
}

// write replaces the file through a temporary sibling and a rename.
func (f *File) write(items map[string]string) error {
	data, err := shared.MarshalJSON(items, true)
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
