// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/storage"
)

// ErrInjected is returned by doubles configured to fail.
var ErrInjected = errors.New("injected failure")

// FlakyStorage wraps a [storage.Storage] and fails writes or reads on demand.
type FlakyStorage struct {
	storage.Storage

	mu       sync.Mutex
	failSet  bool
	failGet  bool
	setCalls int
}

func NewFlakyStorage(inner storage.Storage) *FlakyStorage {
	return &FlakyStorage{Storage: inner}
}

// FailWrites toggles failure of Set and Remove.
func (f *FlakyStorage) FailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = fail
}

// FailReads toggles failure of Get and Keys.
func (f *FlakyStorage) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = fail
}

// SetCalls counts attempted Set calls, failed or not.
func (f *FlakyStorage) SetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

func (f *FlakyStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", false, fmt.Errorf("%w: get %s", ErrInjected, key)
	}
	return f.Storage.Get(key)
}

func (f *FlakyStorage) Keys() ([]string, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: keys", ErrInjected)
	}
	return f.Storage.Keys()
}

func (f *FlakyStorage) Set(key, value string) error {
	f.mu.Lock()
	f.setCalls++
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: set %s", ErrInjected, key)
	}
	return f.Storage.Set(key, value)
}

func (f *FlakyStorage) Remove(key string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: remove %s", ErrInjected, key)
	}
	return f.Storage.Remove(key)
}

// StubProvider is a test double for the catalog provider. It serves fixed data.
type StubProvider struct {
	Items    []models.CatalogItem
	GenreSet []models.Genre
	Videos   map[string]models.Video
	Err      error
}

func (p *StubProvider) Popular(ctx context.Context, kind models.MediaKind, page int) (*models.Page, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return &models.Page{Number: page, TotalPages: 1, Results: p.filterKind(kind)}, nil
}

func (p *StubProvider) Search(ctx context.Context, kind models.MediaKind, query string, page int) (*models.Page, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return &models.Page{Number: page, TotalPages: 1, Results: p.filterKind(kind)}, nil
}

func (p *StubProvider) Genres(ctx context.Context, kind models.MediaKind) ([]models.Genre, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.GenreSet, nil
}

func (p *StubProvider) Details(ctx context.Context, kind models.MediaKind, id string) (*models.Details, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	for _, item := range p.Items {
		if item.PrimaryID == id {
			return &models.Details{Item: item}, nil
		}
	}
	return nil, fmt.Errorf("title %s not found", id)
}

func (p *StubProvider) Trailer(ctx context.Context, kind models.MediaKind, id string) (*models.Video, bool, error) {
	if p.Err != nil {
		return nil, false, p.Err
	}
	v, ok := p.Videos[id]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (p *StubProvider) filterKind(kind models.MediaKind) []models.CatalogItem {
	var out []models.CatalogItem
	for _, item := range p.Items {
		if kind == "" || item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

// FightClub returns the catalog record used across tests.
func FightClub() models.CatalogItem {
	return models.CatalogItem{
		PrimaryID:   "550",
		AlternateID: "tt0137523",
		Kind:        models.KindMovie,
		Title:       "Fight Club",
		PosterPath:  "/pB8BM7pdSp6B6Ih7QZ4DrQ3PmJK.jpg",
		ReleaseDate: "1999-10-15",
		VoteAverage: 8.4,
		GenreIDs:    []int{18},
	}
}

// SampleItems returns a small mixed catalog.
func SampleItems() []models.CatalogItem {
	return []models.CatalogItem{
		FightClub(),
		{PrimaryID: "13", Kind: models.KindMovie, Title: "Forrest Gump", ReleaseDate: "1994-07-06", VoteAverage: 8.5, GenreIDs: []int{35, 18}},
		{PrimaryID: "194", Kind: models.KindMovie, Title: "Amélie", ReleaseDate: "2001-04-25", VoteAverage: 7.9, GenreIDs: []int{35, 10749}},
		{PrimaryID: "1396", Kind: models.KindTV, Title: "Breaking Bad", ReleaseDate: "2008-01-20", VoteAverage: 8.9, GenreIDs: []int{18, 80}},
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// WaitFor polls cond until it holds or two seconds pass.
func WaitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
