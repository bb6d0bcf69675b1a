package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/formatter"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/ratings"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
	reeltest "github.com/desertthunder/reel/internal/testing"
)

var exportTime = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	favorites  *collections.Store
	watchLater *collections.Store
	ratings    *ratings.Registry
	engine     *Engine
}

func newFixture(t *testing.T, guard auth.Guard, opts ...Option) *fixture {
	t.Helper()
	st := storage.NewMemory(storage.Options{})
	ctx := context.Background()

	f := &fixture{
		favorites:  collections.New(models.Favorites, st, auth.Allow),
		watchLater: collections.New(models.WatchLater, st, auth.Allow),
		ratings:    ratings.New(st),
	}
	for _, open := range []func(context.Context) error{f.favorites.Open, f.watchLater.Open, f.ratings.Open} {
		if err := open(ctx); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}
	t.Cleanup(func() {
		f.favorites.Close()
		f.watchLater.Close()
		f.ratings.Close()
	})

	opts = append([]Option{WithClock(func() time.Time { return exportTime })}, opts...)
	f.engine = NewEngine([]*collections.Store{f.favorites, f.watchLater}, f.ratings, guard, opts...)
	return f
}

func drain(ch chan ProgressUpdate) []ProgressUpdate {
	var out []ProgressUpdate
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestImport(t *testing.T) {
	t.Run("MergesCollectionsAndRatings", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		_ = f.favorites.Add(reeltest.FightClub())
		_ = f.ratings.Rate(models.Key("194"), 5)

		dump := map[string]string{
			"favorites":        `[{"id":550,"title":"Fight Club"},{"id":13,"title":"Forrest Gump"}]`,
			"watchLater":       `[{"id":"194","title":"Amélie"}]`,
			"watch_later_v1":   `[{"id":550,"title":"Fight Club"},{"id":194,"title":"Amélie"}]`,
			"movie_rating_550": "9",
			"movie_rating_194": "8",
			"movie_rating_13":  "11",
			"theme":            "dark",
		}

		progress := make(chan ProgressUpdate, 16)
		result, err := f.engine.Import(context.Background(), progress, dump, nil)
		if err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		if result.Added[models.Favorites] != 1 {
			t.Errorf("expected 1 new favorite, got %d", result.Added[models.Favorites])
		}
		if result.Added[models.WatchLater] != 2 {
			t.Errorf("expected 2 new watch later entries, got %d", result.Added[models.WatchLater])
		}
		if result.TotalAdded() != 3 {
			t.Errorf("expected 3 added, got %d", result.TotalAdded())
		}
		if result.Read != 5 {
			t.Errorf("expected 5 entries read, got %d", result.Read)
		}

		fav := f.favorites.List()
		if len(fav) != 2 || fav[0].Key != "550" || fav[1].Key != "13" {
			t.Errorf("unexpected favorites: %+v", fav)
		}
		if fav[0].Item.PosterPath == "" {
			t.Error("existing favorite should be kept, not replaced")
		}

		later := f.watchLater.List()
		if len(later) != 2 || later[0].Key != "194" || later[1].Key != "550" {
			t.Errorf("unexpected watch later: %+v", later)
		}

		if v, _ := f.ratings.Get(models.Key("550")); v != 9 {
			t.Errorf("expected rating 9, got %d", v)
		}
		if v, _ := f.ratings.Get(models.Key("194")); v != 5 {
			t.Errorf("existing rating should be kept, got %d", v)
		}
		if _, ok := f.ratings.Get(models.Key("13")); ok {
			t.Error("invalid rating should not be imported")
		}
		if result.Ratings != 1 || result.Kept != 1 {
			t.Errorf("expected 1 imported and 1 kept, got %d and %d", result.Ratings, result.Kept)
		}

		if len(result.Failures) != 1 || result.Failures[0].Key != "movie_rating_13" {
			t.Errorf("unexpected failures: %+v", result.Failures)
		}
		if !errors.Is(result.Failures[0].Error, shared.ErrPersistenceReadCorrupt) {
			t.Errorf("expected corrupt value error, got %v", result.Failures[0].Error)
		}

		updates := drain(progress)
		if len(updates) != 4 {
			t.Fatalf("expected 4 progress updates, got %d", len(updates))
		}
		if updates[3].Phase != ImportRatings {
			t.Errorf("expected ratings phase last, got %v", updates[3].Phase)
		}
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		f := newFixture(t, auth.Deny)
		dump := map[string]string{
			"favorites":        `[{"id":550,"title":"Fight Club"}]`,
			"movie_rating_550": "9",
		}

		_, err := f.engine.Import(context.Background(), nil, dump, nil)
		if !errors.Is(err, shared.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if f.favorites.Len() != 0 || f.ratings.Len() != 0 {
			t.Error("nothing should be imported without a session")
		}
	})

	t.Run("CorruptValueIsSkipped", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		dump := map[string]string{
			"favorites":  `{not json`,
			"watchLater": `[{"id":1396,"name":"Breaking Bad","media_type":"tv"},{"title":"no id"}]`,
		}

		result, err := f.engine.Import(context.Background(), nil, dump, nil)
		if err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		if len(result.Failures) != 1 || result.Failures[0].Key != "favorites" {
			t.Errorf("unexpected failures: %+v", result.Failures)
		}
		if f.watchLater.Len() != 1 {
			t.Errorf("expected one watch later entry, got %d", f.watchLater.Len())
		}
		if result.Skipped != 1 {
			t.Errorf("expected the record without an id to be skipped, got %d", result.Skipped)
		}
	})

	t.Run("Targets", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		dump := map[string]string{
			"favorites":  `[{"id":550,"title":"Fight Club"}]`,
			"watchLater": `[{"id":13,"title":"Forrest Gump"}]`,
		}

		if _, err := f.engine.Import(context.Background(), nil, dump, []models.CollectionName{models.WatchLater}); err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		if f.favorites.Len() != 0 {
			t.Error("favorites should not be imported")
		}
		if f.watchLater.Len() != 1 {
			t.Errorf("expected one watch later entry, got %d", f.watchLater.Len())
		}

		_, err := f.engine.Import(context.Background(), nil, dump, []models.CollectionName{"seen"})
		if !errors.Is(err, shared.ErrUnknownCollection) {
			t.Errorf("expected ErrUnknownCollection, got %v", err)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.engine.Import(ctx, nil, map[string]string{"favorites": `[{"id":550}]`}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestParseDump(t *testing.T) {
	t.Run("StringAndRawValues", func(t *testing.T) {
		in := `{"favorites":"[{\"id\":550}]","movie_rating_550":9,"watchLater":[{"id":13}]}`
		dump, err := ParseDump(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ParseDump failed: %v", err)
		}

		if dump["favorites"] != `[{"id":550}]` {
			t.Errorf("unexpected favorites value %q", dump["favorites"])
		}
		if dump["movie_rating_550"] != "9" {
			t.Errorf("unexpected rating value %q", dump["movie_rating_550"])
		}
		if dump["watchLater"] != `[{"id":13}]` {
			t.Errorf("unexpected watchLater value %q", dump["watchLater"])
		}
	})

	t.Run("NotAnObject", func(t *testing.T) {
		_, err := ParseDump(strings.NewReader(`[1,2]`))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestExport(t *testing.T) {
	t.Run("TextWithoutPosters", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		items := reeltest.SampleItems()
		_ = f.favorites.Add(items[0])
		_ = f.favorites.Add(items[2])
		_ = f.watchLater.Add(items[1])
		_ = f.ratings.Rate(items[0], 9)

		dir := filepath.Join(t.TempDir(), "out")
		progress := make(chan ProgressUpdate, 16)
		result, err := f.engine.Export(context.Background(), progress, nil, ExportOpts{Format: "txt", OutputDir: dir})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		if len(result.Files) != 2 {
			t.Fatalf("expected 2 files, got %v", result.Files)
		}
		content := reeltest.MustReadFile(t, filepath.Join(dir, "favorites.txt"))
		if !strings.Contains(content, "1. Fight Club (1999) [9/10]") {
			t.Errorf("unexpected favorites export:\n%s", content)
		}
		reeltest.AssertFileExists(t, filepath.Join(dir, "watchLater.txt"))

		var manifest formatter.ExportManifest
		if err := json.Unmarshal([]byte(reeltest.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
			t.Fatalf("manifest is not JSON: %v", err)
		}
		if manifest.Format != formatter.FormatText {
			t.Errorf("expected text format, got %q", manifest.Format)
		}
		if len(manifest.Collections) != 2 || manifest.Collections[0].Titles != 2 || manifest.Collections[0].File != "favorites.txt" {
			t.Errorf("unexpected manifest collections: %+v", manifest.Collections)
		}
		if !manifest.ExportedAt.Equal(exportTime) {
			t.Errorf("unexpected export time %v", manifest.ExportedAt)
		}

		updates := drain(progress)
		if len(updates) != 4 {
			t.Fatalf("expected 4 progress updates, got %d", len(updates))
		}
		if updates[0].Phase != Prepare || updates[3].Phase != WriteManifest {
			t.Errorf("unexpected phases: %v ... %v", updates[0].Phase, updates[3].Phase)
		}
	})

	t.Run("MarkdownWithPosters", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/w500/pB8BM7pdSp6B6Ih7QZ4DrQ3PmJK.jpg" {
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write([]byte("jpeg-bytes"))
				return
			}
			http.NotFound(w, r)
		}))
		defer srv.Close()

		f := newFixture(t, auth.Allow, WithHTTPClient(srv.Client()))
		_ = f.favorites.Add(reeltest.FightClub())
		_ = f.favorites.Add(models.CatalogItem{PrimaryID: "13", Title: "Forrest Gump", PosterPath: "/missing.png"})
		_ = f.favorites.Add(models.CatalogItem{PrimaryID: "194", Title: "Amélie"})
		_ = f.watchLater.Add(reeltest.FightClub())

		dir := t.TempDir()
		result, err := f.engine.Export(context.Background(), nil, []models.CollectionName{models.Favorites}, ExportOpts{
			Format:       formatter.FormatMarkdown,
			OutputDir:    dir,
			Posters:      true,
			NumWorkers:   2,
			RateLimit:    100,
			ImageBaseURL: srv.URL,
		})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		if result.Posters != 1 {
			t.Errorf("expected 1 poster, got %d", result.Posters)
		}
		if got := reeltest.MustReadFile(t, filepath.Join(dir, PosterDir, "550.jpg")); got != "jpeg-bytes" {
			t.Errorf("unexpected poster content %q", got)
		}
		if len(result.Failures) != 1 || result.Failures[0].Item != "13" {
			t.Errorf("unexpected failures: %+v", result.Failures)
		}
		if len(result.Files) != 1 {
			t.Fatalf("expected only favorites to be exported, got %v", result.Files)
		}

		md := reeltest.MustReadFile(t, filepath.Join(dir, "favorites.md"))
		if !strings.Contains(md, "![Fight Club](posters/550.jpg)") {
			t.Errorf("expected local poster link:\n%s", md)
		}
		if !strings.Contains(md, "![Forrest Gump]("+srv.URL+"/w500/missing.png)") {
			t.Errorf("expected remote poster fallback:\n%s", md)
		}

		var manifest formatter.ExportManifest
		if err := json.Unmarshal([]byte(reeltest.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
			t.Fatalf("manifest is not JSON: %v", err)
		}
		if manifest.Posters != 1 || len(manifest.Failures) != 1 {
			t.Errorf("unexpected manifest: %+v", manifest)
		}
	})

	t.Run("DefaultOutputDir", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		reeltest.MustChdir(t, t.TempDir())

		result, err := f.engine.Export(context.Background(), nil, nil, ExportOpts{Format: formatter.FormatJSON})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.OutputDirectory != "reel_export_1748770200" {
			t.Errorf("unexpected output directory %q", result.OutputDirectory)
		}
		if _, err := os.Stat(filepath.Join(result.OutputDirectory, formatter.ManifestFile)); err != nil {
			t.Errorf("manifest missing: %v", err)
		}
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		f := newFixture(t, auth.Allow)
		_, err := f.engine.Export(context.Background(), nil, nil, ExportOpts{Format: "pdf", OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("ExportIsNotGated", func(t *testing.T) {
		f := newFixture(t, auth.Deny)
		if _, err := f.engine.Export(context.Background(), nil, nil, ExportOpts{OutputDir: t.TempDir()}); err != nil {
			t.Errorf("export reads only and should not need a session: %v", err)
		}
	})
}

func TestPosterFileName(t *testing.T) {
	tests := []struct {
		key  models.Key
		url  string
		want string
	}{
		{"550", "https://image.tmdb.org/t/p/w500/abc.jpg", "550.jpg"},
		{"tt0137523", "https://image.tmdb.org/t/p/w500/abc.png", "tt0137523.png"},
		{"movie-Fight Club/2", "https://example.com/poster", "movie-Fight_Club_2.jpg"},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			if got := posterFileName(tt.key, tt.url); got != tt.want {
				t.Errorf("posterFileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendProgress(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	e.sendProgress(nil, ProgressUpdate{})

	ch := make(chan ProgressUpdate, 1)
	e.sendProgress(ch, ProgressUpdate{Message: "first"})
	e.sendProgress(ch, ProgressUpdate{Message: "dropped"})
	if got := <-ch; got.Message != "first" {
		t.Errorf("unexpected update %q", got.Message)
	}
}
