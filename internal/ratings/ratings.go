// Package ratings keeps one star rating in [1,10] per title, each persisted under its own
// "movie_rating_<key>" storage key.
//
// Ratings are a private annotation and are not gated by the access guard.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
)

// Registry maps identity keys to ratings.
type Registry struct {
	st       storage.Storage
	logger   *log.Logger
	onWarn   func(error)
	onChange func()

	mu      sync.RWMutex
	values  map[models.Key]int
	pending map[models.Key]int // failed writes; 0 means a pending removal
	stop    func()
}

// Option configures a [Registry].
type Option func(*Registry)

// WithLogger sets the logger for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithWarningHandler receives every persistence warning.
func WithWarningHandler(fn func(error)) Option {
	return func(r *Registry) { r.onWarn = fn }
}

// WithChangeHandler is called after a rating changes through another handle.
func WithChangeHandler(fn func()) Option {
	return func(r *Registry) { r.onChange = fn }
}

// New creates an empty registry. Call [Registry.Open] to load persisted ratings.
func New(st storage.Storage, opts ...Option) *Registry {
	r := &Registry{
		st:      st,
		logger:  shared.DiscardLogger(),
		values:  make(map[models.Key]int),
		pending: make(map[models.Key]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("registry", "ratings")
	return r
}

// Open follows changes from other handles and then loads every persisted rating.
func (r *Registry) Open(ctx context.Context) error {
	stop, err := storage.Follow(ctx, r.st, storage.MatchPrefix(models.RatingKeyPrefix), func(ev storage.Event) {
		if key, ok := models.RatingKeyFromStorage(ev.Key); ok {
			r.reloadKey(key)
			if r.onChange != nil {
				r.onChange()
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch ratings: %w", err)
	}

	r.mu.Lock()
	r.stop = stop
	r.mu.Unlock()

	r.Reconcile()
	return nil
}

// Close stops following storage and retries writes that failed earlier.
func (r *Registry) Close() error {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, value := range r.pending {
		if err := r.write(key, value); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.pending, key)
	}
	return errors.Join(errs...)
}

// Reconcile replaces every rating with the persisted values. A rating that storage fails
// to return keeps its current value.
func (r *Registry) Reconcile() {
	keys, err := storage.KeysWithPrefix(r.st, models.RatingKeyPrefix)
	if err != nil {
		r.warn(fmt.Errorf("%w: ratings: %v", shared.ErrPersistenceReadFailed, err))
		return
	}

	values := make(map[models.Key]int, len(keys))
	var warnings []error
	var failed []models.Key
	for _, storageKey := range keys {
		key, ok := models.RatingKeyFromStorage(storageKey)
		if !ok {
			continue
		}
		v, found, err := r.read(key)
		if err != nil {
			warnings = append(warnings, err)
			if errors.Is(err, shared.ErrPersistenceReadFailed) {
				failed = append(failed, key)
			}
			continue
		}
		if found {
			values[key] = v
		}
	}

	r.mu.Lock()
	for _, key := range failed {
		if v, ok := r.values[key]; ok {
			values[key] = v
		}
	}
	r.values = values
	r.pending = make(map[models.Key]int)
	r.mu.Unlock()

	for _, err := range warnings {
		r.warn(err)
	}
}

// Rate sets the rating of ref, replacing any earlier one.
func (r *Registry) Rate(ref models.Ref, value int) error {
	if err := models.ValidateRating(value); err != nil {
		return err
	}
	key, err := ref.IdentityKey()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.values[key] = value
	err = r.writeOrDefer(key, value)
	r.mu.Unlock()

	if err != nil {
		r.warn(err)
	}
	return nil
}

// Reset deletes the rating of ref. Resetting an unrated title does nothing.
func (r *Registry) Reset(ref models.Ref) error {
	key, err := ref.IdentityKey()
	if err != nil {
		return err
	}

	r.mu.Lock()
	_, rated := r.values[key]
	_, queued := r.pending[key]
	if !rated && !queued {
		r.mu.Unlock()
		return nil
	}
	delete(r.values, key)
	err = r.writeOrDefer(key, 0)
	r.mu.Unlock()

	if err != nil {
		r.warn(err)
	}
	return nil
}

// Get returns the rating of ref; false means unrated.
func (r *Registry) Get(ref models.Ref) (int, bool) {
	key, err := ref.IdentityKey()
	if err != nil {
		return 0, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// All returns a copy of every rating.
func (r *Registry) All() map[models.Key]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.Key]int, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Len returns the number of rated titles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// Pending reports how many writes are waiting to be retried.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

func (r *Registry) reloadKey(key models.Key) {
	v, found, err := r.read(key)
	if errors.Is(err, shared.ErrPersistenceReadFailed) {
		r.warn(err)
		return
	}

	r.mu.Lock()
	delete(r.pending, key)
	if found {
		r.values[key] = v
	} else {
		delete(r.values, key)
	}
	r.mu.Unlock()

	if err != nil {
		r.warn(err)
	}
}

// read returns a corrupt-read error for values that are not ratings and a read-failed
// error when storage does not answer.
func (r *Registry) read(key models.Key) (int, bool, error) {
	value, ok, err := r.st.Get(models.RatingStorageKey(key))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", shared.ErrPersistenceReadFailed, key, err)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := models.ParseRating(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

// writeOrDefer must be called with r.mu held. A failed write is queued for the next
// write of the same key or [Registry.Close].
func (r *Registry) writeOrDefer(key models.Key, value int) error {
	if err := r.write(key, value); err != nil {
		r.pending[key] = value
		return err
	}
	delete(r.pending, key)
	return nil
}

func (r *Registry) write(key models.Key, value int) error {
	storageKey := models.RatingStorageKey(key)

	var err error
	if value == 0 {
		err = r.st.Remove(storageKey)
	} else {
		err = r.st.Set(storageKey, strconv.Itoa(value))
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrPersistenceWriteFailed, storageKey, err)
	}
	return nil
}

func (r *Registry) warn(err error) {
	r.logger.Warn("persistence warning", "error", err)
	if r.onWarn != nil {
		r.onWarn(err)
	}
}
