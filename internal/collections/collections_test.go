package collections

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
	reeltest "github.com/desertthunder/reel/internal/testing"
)

func fixedClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
}

func openStore(t *testing.T, name models.CollectionName, st storage.Storage, guard auth.Guard, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	s := New(name, st, guard, opts...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// staleRead returns the value it read and then runs after, once.
type staleRead struct {
	storage.Storage
	once  sync.Once
	after func()
}

func (s *staleRead) Get(key string) (string, bool, error) {
	value, ok, err := s.Storage.Get(key)
	s.once.Do(s.after)
	return value, ok, err
}

func TestStore(t *testing.T) {
	t.Run("AddContainsList", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)

		if err := s.Add(models.CatalogItem{PrimaryID: "550", Title: "Fight Club"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if !s.Contains(models.KeyOf(550)) {
			t.Error("expected numeric id 550 to be found")
		}
		if !s.Contains(models.Key("550")) {
			t.Error("expected string id 550 to be found")
		}

		entries := s.List()
		if len(entries) != 1 || entries[0].Key != "550" {
			t.Fatalf("unexpected entries: %+v", entries)
		}
		if entries[0].AddedAt.IsZero() {
			t.Error("AddedAt should be set")
		}
	})

	t.Run("DedupKeepsFirst", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)

		first := models.CatalogItem{PrimaryID: "550", Title: "Fight Club"}
		second := models.CatalogItem{PrimaryID: "550", Title: "Fight Club (Director's Cut)"}

		_ = s.Add(first)
		_ = s.Add(second)

		entries := s.List()
		if len(entries) != 1 {
			t.Fatalf("expected one entry, got %d", len(entries))
		}
		if entries[0].Item.Title != "Fight Club" {
			t.Errorf("expected first insert to win, got %q", entries[0].Item.Title)
		}
	})

	t.Run("AlternateIDFieldNames", func(t *testing.T) {
		s := openStore(t, models.WatchLater, storage.NewMemory(storage.Options{}), auth.Allow)

		_ = s.Add(models.CatalogItem{PrimaryID: "tt0137523", Title: "Fight Club"})
		_ = s.Add(models.CatalogItem{AlternateID: "tt0137523", Title: "Fight Club"})

		if s.Len() != 1 {
			t.Errorf("expected one entry, got %d", s.Len())
		}
	})

	t.Run("InsertionOrder", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)

		for _, item := range reeltest.SampleItems() {
			_ = s.Add(item)
		}

		want := []models.Key{"550", "13", "194", "1396"}
		entries := s.List()
		for i, e := range entries {
			if e.Key != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], e.Key)
			}
			if i > 0 && !e.AddedAt.After(entries[i-1].AddedAt) {
				t.Errorf("AddedAt should increase with insertion order")
			}
		}
	})

	t.Run("ListIsSnapshot", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)
		_ = s.Add(reeltest.FightClub())

		entries := s.List()
		entries[0].Key = "mutated"

		if !s.Contains(models.Key("550")) || s.Len() != 1 {
			t.Error("mutating the snapshot changed the store")
		}
	})

	t.Run("SnapshotsShareNoGenres", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)
		item := reeltest.FightClub()
		_ = s.Add(item)
		item.GenreIDs[0] = 99

		out := s.List()
		out[0].Item.GenreIDs[0] = 99
		got, _ := s.Get(models.Key("550"))
		got.Item.GenreIDs[0] = 99

		if e, _ := s.Get(models.Key("550")); e.Item.GenreIDs[0] != 18 {
			t.Errorf("expected stored genre 18, got %v", e.Item.GenreIDs)
		}
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		s := openStore(t, models.Favorites, st, auth.Allow)
		item := reeltest.FightClub()
		_ = s.Add(item)

		if err := s.Remove(item); err != nil {
			t.Fatalf("Remove by item failed: %v", err)
		}
		if err := s.Remove(models.Key("550")); err != nil {
			t.Fatalf("second Remove should not error: %v", err)
		}
		if s.Contains(item) || s.Len() != 0 {
			t.Error("expected empty collection")
		}

		stored, _, _ := st.Get("favorites")
		if stored != "[]" {
			t.Errorf("expected persisted empty array, got %q", stored)
		}
	})

	t.Run("Toggle", func(t *testing.T) {
		s := openStore(t, models.WatchLater, storage.NewMemory(storage.Options{}), auth.Allow)
		item := reeltest.FightClub()

		added, err := s.Toggle(item)
		if err != nil || !added || !s.Contains(item) {
			t.Fatalf("expected add, got added=%v err=%v", added, err)
		}

		added, err = s.Toggle(item)
		if err != nil || added || s.Contains(item) {
			t.Fatalf("expected remove, got added=%v err=%v", added, err)
		}
	})

	t.Run("Unresolvable", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)

		err := s.Add(models.CatalogItem{Title: "No Kind"})
		if !errors.Is(err, shared.ErrIdentityUnresolvable) {
			t.Errorf("expected ErrIdentityUnresolvable, got %v", err)
		}
		if err := s.Remove(models.Key("")); !errors.Is(err, shared.ErrIdentityUnresolvable) {
			t.Errorf("expected ErrIdentityUnresolvable, got %v", err)
		}
		if s.Contains(models.CatalogItem{}) {
			t.Error("unresolvable ref should never be contained")
		}
	})

	t.Run("CompositeKey", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)
		_ = s.Add(models.CatalogItem{Kind: models.KindTV, Title: "Severance"})

		if !s.Contains(models.Key("tv-Severance")) {
			t.Error("expected composite key lookup to succeed")
		}
	})
}

func TestStoreGuard(t *testing.T) {
	t.Run("AddWithoutSession", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		s := openStore(t, models.Favorites, st, auth.Deny)

		err := s.Add(reeltest.FightClub())
		if !errors.Is(err, shared.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if len(s.List()) != 0 {
			t.Error("rejected add must not mutate")
		}
		if _, ok, _ := st.Get("favorites"); ok {
			t.Error("rejected add must not write")
		}
	})

	t.Run("RemoveAndToggleWithoutSession", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		signedIn := true
		s := openStore(t, models.Favorites, st, auth.GuardFunc(func() bool { return signedIn }))
		_ = s.Add(reeltest.FightClub())

		signedIn = false
		if err := s.Remove(models.Key("550")); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
		if _, err := s.Toggle(reeltest.FightClub()); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
		if !s.Contains(models.Key("550")) {
			t.Error("rejected remove must not mutate")
		}
	})

	t.Run("NilGuardFailsClosed", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), nil)
		if err := s.Add(reeltest.FightClub()); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		sessions := auth.NewSessions(st)
		if err := sessions.Open(context.Background()); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer sessions.Close()

		s := openStore(t, models.Favorites, st, sessions)
		if err := s.Add(reeltest.FightClub()); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}

		_, _ = sessions.Login("ada@example.com")
		if err := s.Add(reeltest.FightClub()); err != nil {
			t.Errorf("Add after login failed: %v", err)
		}
	})
}

func TestStorePersistence(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		s := openStore(t, models.Favorites, st, auth.Allow)
		for _, item := range reeltest.SampleItems() {
			_ = s.Add(item)
		}
		_ = s.Remove(models.Key("13"))
		_ = s.Close()

		reopened := openStore(t, models.Favorites, st, auth.Allow)
		got := reopened.List()
		want := []models.Key{"550", "194", "1396"}
		if len(got) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].Key != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], got[i].Key)
			}
		}
		if got[0].Item.Title != "Fight Club" {
			t.Errorf("item not restored: %+v", got[0].Item)
		}
	})

	t.Run("SQLiteRoundTrip", func(t *testing.T) {
		st, err := storage.Open(shared.StorageConfig{Driver: "sqlite", Path: ":memory:"}, nil)
		if err != nil {
			t.Fatalf("failed to open storage: %v", err)
		}
		defer st.Close()

		s := openStore(t, models.WatchLater, st, auth.Allow)
		_ = s.Add(reeltest.FightClub())
		_ = s.Close()

		reopened := openStore(t, models.WatchLater, st, auth.Allow)
		if !reopened.Contains(models.Key("550")) {
			t.Error("expected entry after reopening")
		}
	})

	t.Run("LegacyArray", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		legacy := `[{"id":550,"title":"Fight Club","poster_path":"/a.jpg"},{"imdbID":"tt0133093","title":"The Matrix"},{"title":"no id"}]`
		_ = st.Set("favorites", legacy)

		s := openStore(t, models.Favorites, st, auth.Allow)
		if s.Len() != 2 {
			t.Fatalf("expected two resolvable entries, got %d", s.Len())
		}
		if !s.Contains(models.KeyOf(550)) || !s.Contains(models.Key("tt0133093")) {
			t.Errorf("unexpected entries: %+v", s.List())
		}
	})

	t.Run("CorruptValue", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		_ = st.Set("favorites", "{broken")

		var warnings []error
		s := openStore(t, models.Favorites, st, auth.Allow, WithWarningHandler(func(err error) {
			warnings = append(warnings, err)
		}))

		if s.Len() != 0 {
			t.Error("corrupt value should load as empty")
		}
		if len(warnings) != 1 || !errors.Is(warnings[0], shared.ErrPersistenceReadCorrupt) {
			t.Fatalf("expected one corrupt warning, got %v", warnings)
		}

		_ = s.Add(reeltest.FightClub())
		stored, _, _ := st.Get("favorites")
		entries, _, err := models.DecodeEntries(stored)
		if err != nil || len(entries) != 1 {
			t.Errorf("corrupt value should be overwritten, got %q", stored)
		}
	})

	t.Run("WriteFailureKeepsMemory", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))

		var warnings []error
		s := openStore(t, models.Favorites, flaky, auth.Allow, WithWarningHandler(func(err error) {
			warnings = append(warnings, err)
		}))

		flaky.FailWrites(true)
		if err := s.Add(reeltest.FightClub()); err != nil {
			t.Fatalf("write failure must not fail Add: %v", err)
		}
		if !s.Contains(models.Key("550")) || !s.Dirty() {
			t.Error("in-memory state should stay authoritative and dirty")
		}
		if len(warnings) != 1 || !errors.Is(warnings[0], shared.ErrPersistenceWriteFailed) {
			t.Fatalf("expected a write warning, got %v", warnings)
		}

		_ = s.Add(reeltest.SampleItems()[1])
		if s.Len() != 2 {
			t.Errorf("later mutations should keep working, got %d entries", s.Len())
		}

		flaky.FailWrites(false)
		if err := s.Close(); err != nil {
			t.Fatalf("Close should flush: %v", err)
		}
		stored, _, _ := flaky.Get("favorites")
		entries, _, _ := models.DecodeEntries(stored)
		if len(entries) != 2 {
			t.Errorf("expected flushed entries, got %q", stored)
		}
	})

	t.Run("ReadFailureRefusesWrites", func(t *testing.T) {
		inner := storage.NewMemory(storage.Options{})
		seed := openStore(t, models.Favorites, inner, auth.Allow)
		items := reeltest.SampleItems()
		for _, item := range items[:3] {
			_ = seed.Add(item)
		}

		flaky := reeltest.NewFlakyStorage(inner.Sibling())
		flaky.FailReads(true)

		var warnings []error
		s := openStore(t, models.Favorites, flaky, auth.Allow, WithWarningHandler(func(err error) {
			warnings = append(warnings, err)
		}))
		if len(warnings) == 0 || !errors.Is(warnings[0], shared.ErrPersistenceReadFailed) {
			t.Fatalf("expected a read warning, got %v", warnings)
		}

		if err := s.Add(items[3]); !errors.Is(err, shared.ErrPersistenceReadFailed) {
			t.Fatalf("expected ErrPersistenceReadFailed, got %v", err)
		}
		if _, err := s.Toggle(items[3]); !errors.Is(err, shared.ErrPersistenceReadFailed) {
			t.Fatalf("expected Toggle to fail, got %v", err)
		}
		if flaky.SetCalls() != 0 {
			t.Fatalf("nothing should be written before a load, got %d writes", flaky.SetCalls())
		}

		flaky.FailReads(false)
		if err := s.Add(items[3]); err != nil {
			t.Fatalf("Add failed after reads recovered: %v", err)
		}

		stored, _, _ := inner.Get("favorites")
		entries, _, _ := models.DecodeEntries(stored)
		if len(entries) != 4 {
			t.Errorf("expected 4 persisted entries, got %q", stored)
		}
	})

	t.Run("ReadFailureKeepsSnapshot", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))
		s := openStore(t, models.Favorites, flaky, auth.Allow)
		_ = s.Add(reeltest.FightClub())

		flaky.FailReads(true)
		s.Reconcile()

		if !s.Contains(models.Key("550")) {
			t.Error("a failed read should not clear the set")
		}
		flaky.FailReads(false)
		if err := s.Add(reeltest.SampleItems()[1]); err != nil || s.Len() != 2 {
			t.Errorf("expected writes to continue, got %v with %d entries", err, s.Len())
		}
	})

	t.Run("CloseReportsPendingFailure", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))
		s := New(models.Favorites, flaky, auth.Allow)
		_ = s.Open(context.Background())

		flaky.FailWrites(true)
		_ = s.Add(reeltest.FightClub())

		if err := s.Close(); !errors.Is(err, shared.ErrPersistenceWriteFailed) {
			t.Errorf("expected ErrPersistenceWriteFailed, got %v", err)
		}
	})

	t.Run("Merge", func(t *testing.T) {
		s := openStore(t, models.Favorites, storage.NewMemory(storage.Options{}), auth.Allow)
		_ = s.Add(reeltest.FightClub())

		addedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		incoming := []models.CollectionEntry{
			{Key: "550", Item: reeltest.FightClub()},
			{Key: "13", AddedAt: addedAt, Item: reeltest.SampleItems()[1]},
			{Item: models.CatalogItem{PrimaryID: "194", Title: "Amélie"}},
			{Item: models.CatalogItem{Title: "nothing"}},
		}

		added, err := s.Merge(incoming)
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if added != 2 || s.Len() != 3 {
			t.Errorf("expected 2 added and 3 total, got %d and %d", added, s.Len())
		}
		if e, _ := s.Get(models.Key("13")); !e.AddedAt.Equal(addedAt) {
			t.Errorf("expected AddedAt to be kept, got %v", e.AddedAt)
		}
	})
}

func TestStoreSync(t *testing.T) {
	t.Run("LastWriterWins", func(t *testing.T) {
		tab1 := storage.NewMemory(storage.Options{})
		tab2 := tab1.Sibling()

		changed := make(chan struct{}, 8)
		s1 := openStore(t, models.Favorites, tab1, auth.Allow)
		s2 := openStore(t, models.Favorites, tab2, auth.Allow, WithChangeHandler(func() {
			changed <- struct{}{}
		}))

		_ = s1.Add(reeltest.FightClub())
		reeltest.WaitFor(t, func() bool { return s2.Contains(models.Key("550")) })

		select {
		case <-changed:
		case <-time.After(time.Second):
			t.Error("change handler was not called")
		}

		_ = s2.Remove(models.Key("550"))
		reeltest.WaitFor(t, func() bool { return !s1.Contains(models.Key("550")) })
	})

	t.Run("WriteDuringOpen", func(t *testing.T) {
		tab1 := storage.NewMemory(storage.Options{})
		st := &staleRead{Storage: tab1.Sibling(), after: func() {
			_ = tab1.Set("favorites", `[{"id":550,"title":"Fight Club"}]`)
		}}

		s := openStore(t, models.Favorites, st, auth.Allow)
		reeltest.WaitFor(t, func() bool { return s.Contains(models.Key("550")) })
	})

	t.Run("IgnoresOtherKeys", func(t *testing.T) {
		tab1 := storage.NewMemory(storage.Options{})
		tab2 := tab1.Sibling()

		favorites := openStore(t, models.Favorites, tab1, auth.Allow)
		later := openStore(t, models.WatchLater, tab2, auth.Allow)

		_ = favorites.Add(reeltest.FightClub())
		time.Sleep(50 * time.Millisecond)
		if later.Len() != 0 {
			t.Error("watch later should not pick up favorites")
		}
	})

	t.Run("Reconcile", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		s := openStore(t, models.Favorites, st, auth.Allow)
		_ = s.Add(reeltest.FightClub())

		_ = st.Set("favorites", `[{"id":13,"title":"Forrest Gump"}]`)
		s.Reconcile()

		if s.Contains(models.Key("550")) || !s.Contains(models.Key("13")) {
			t.Errorf("expected snapshot to be replaced, got %+v", s.List())
		}
	})
}
