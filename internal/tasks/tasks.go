package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/ratings"
	"github.com/desertthunder/reel/internal/shared"
)

// dumpKeys lists the browser storage keys each collection is imported from, newest first.
var dumpKeys = map[models.CollectionName][]string{
	models.Favorites:  {"favorites"},
	models.WatchLater: {"watchLater", "watch_later_v1"},
}

// Engine runs bulk operations over the collection stores and the rating registry.
type Engine struct {
	stores  map[models.CollectionName]*collections.Store
	ratings *ratings.Registry
	guard   auth.Guard
	client  *http.Client
	logger  *log.Logger
	now     func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithHTTPClient sets the client used to download posters.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the export timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over stores. reg may be nil, in which case ratings are
// neither exported nor imported. A nil guard rejects every import.
func NewEngine(stores []*collections.Store, reg *ratings.Registry, guard auth.Guard, opts ...Option) *Engine {
	if guard == nil {
		guard = auth.Deny
	}
	e := &Engine{
		stores:  make(map[models.CollectionName]*collections.Store, len(stores)),
		ratings: reg,
		guard:   guard,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  shared.DiscardLogger(),
		now:     time.Now,
	}
	for _, s := range stores {
		e.stores[s.Name()] = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ImportFailure records a dump value that could not be imported.
type ImportFailure struct {
	Key   string
	Error error
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Added    map[models.CollectionName]int // New entries per collection
	Read     int                           // Entries decoded from the dump
	Skipped  int                           // Entries without a usable identity
	Ratings  int                           // Ratings imported
	Kept     int                           // Ratings skipped because the title was already rated
	Failures []ImportFailure               // Values that could not be decoded
}

// TotalAdded returns the number of entries added across collections.
func (r *ImportResult) TotalAdded() int {
	n := 0
	for _, v := range r.Added {
		n += v
	}
	return n
}

// ParseDump reads a browser localStorage dump: a JSON object whose values are the stored
// strings. Values that are not strings are kept as their JSON text.
func ParseDump(r io.Reader) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: dump must be a JSON object: %v", shared.ErrInvalidInput, err)
	}

	dump := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			dump[k] = s
			continue
		}
		dump[k] = string(bytes.TrimSpace(v))
	}
	return dump, nil
}

// Import merges a browser storage dump into the stores named by targets (all stores when
// empty) and into the rating registry. Entries already present are kept, as are existing
// ratings. Import fails with [shared.ErrUnauthenticated] before touching anything when
// there is no session.
func (e *Engine) Import(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	dump map[string]string,
	targets []models.CollectionName,
) (*ImportResult, error) {
	if !e.guard.RequireSession() {
		return nil, fmt.Errorf("%w: sign in before importing", shared.ErrUnauthenticated)
	}

	stores, err := e.selectStores(targets)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Added: make(map[models.CollectionName]int, len(stores))}

	for i, store := range stores {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := store.Name()
		for _, key := range dumpKeys[name] {
			raw, ok := dump[key]
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}

			entries, skipped, err := models.DecodeEntries(raw)
			if err != nil {
				e.logger.Warn("skipping dump value", "key", key, "error", err)
				result.Failures = append(result.Failures, ImportFailure{Key: key, Error: err})
				continue
			}

			added, err := store.Merge(entries)
			if err != nil {
				return result, err
			}

			result.Read += len(entries)
			result.Skipped += skipped
			result.Added[name] += added
			e.sendProgress(progress, importCollectionUpdate(i+1, len(stores), name, key, added))
		}
	}

	if e.ratings != nil {
		if err := e.importRatings(ctx, progress, dump, result); err != nil {
			return result, err
		}
	}

	e.logger.Info("import finished",
		"added", result.TotalAdded(), "ratings", result.Ratings, "failures", len(result.Failures))
	return result, nil
}

func (e *Engine) importRatings(ctx context.Context, progress chan<- ProgressUpdate, dump map[string]string, result *ImportResult) error {
	keys := make([]string, 0)
	for k := range dump {
		if _, ok := models.RatingKeyFromStorage(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, _ := models.RatingKeyFromStorage(k)
		value, err := models.ParseRating(dump[k])
		if err != nil {
			result.Failures = append(result.Failures, ImportFailure{Key: k, Error: err})
			continue
		}
		if _, rated := e.ratings.Get(key); rated {
			result.Kept++
			continue
		}
		if err := e.ratings.Rate(key, value); err != nil {
			result.Failures = append(result.Failures, ImportFailure{Key: k, Error: err})
			continue
		}
		result.Ratings++
	}

	if len(keys) > 0 {
		e.sendProgress(progress, importRatingsUpdate(result.Ratings, len(keys)))
	}
	return nil
}

// selectStores returns the stores for names in display order, or every store.
func (e *Engine) selectStores(names []models.CollectionName) ([]*collections.Store, error) {
	if len(names) == 0 {
		names = models.Collections
	}

	wanted := make(map[models.CollectionName]bool, len(names))
	for _, n := range names {
		if _, ok := e.stores[n]; !ok {
			return nil, fmt.Errorf("%w: %q", shared.ErrUnknownCollection, n)
		}
		wanted[n] = true
	}

	stores := make([]*collections.Store, 0, len(wanted))
	for _, n := range models.Collections {
		if wanted[n] {
			stores = append(stores, e.stores[n])
		}
	}
	return stores, nil
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
