package ratings

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
	reeltest "github.com/desertthunder/reel/internal/testing"
)

func openRegistry(t *testing.T, st storage.Storage, opts ...Option) *Registry {
	t.Helper()
	r := New(st, opts...)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry(t *testing.T) {
	t.Run("RateGetReset", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		r := openRegistry(t, st)

		if err := r.Rate(models.KeyOf(42), 7); err != nil {
			t.Fatalf("Rate failed: %v", err)
		}
		if v, ok := r.Get(models.Key("42")); !ok || v != 7 {
			t.Errorf("expected 7, got %d ok=%v", v, ok)
		}
		if stored, _, _ := st.Get("movie_rating_42"); stored != "7" {
			t.Errorf("expected persisted 7, got %q", stored)
		}

		if err := r.Reset(models.KeyOf(42)); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if _, ok := r.Get(models.KeyOf(42)); ok {
			t.Error("expected rating to be absent after reset")
		}
		if _, ok, _ := st.Get("movie_rating_42"); ok {
			t.Error("expected storage key to be removed")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		r := openRegistry(t, storage.NewMemory(storage.Options{}))
		item := reeltest.FightClub()

		_ = r.Rate(item, 4)
		_ = r.Rate(models.Key("550"), 9)

		if v, _ := r.Get(item); v != 9 {
			t.Errorf("expected 9, got %d", v)
		}
		if r.Len() != 1 {
			t.Errorf("expected one rating, got %d", r.Len())
		}
	})

	t.Run("InvalidRating", func(t *testing.T) {
		r := openRegistry(t, storage.NewMemory(storage.Options{}))
		_ = r.Rate(models.Key("x"), 5)

		for _, value := range []int{0, 11, -1} {
			if err := r.Rate(models.Key("x"), value); !errors.Is(err, shared.ErrInvalidRating) {
				t.Errorf("rate %d: expected ErrInvalidRating, got %v", value, err)
			}
		}
		if v, _ := r.Get(models.Key("x")); v != 5 {
			t.Errorf("prior rating should be kept, got %d", v)
		}
	})

	t.Run("BoundsAccepted", func(t *testing.T) {
		r := openRegistry(t, storage.NewMemory(storage.Options{}))
		for _, value := range []int{models.MinRating, models.MaxRating} {
			if err := r.Rate(models.Key("b"), value); err != nil {
				t.Errorf("rate %d failed: %v", value, err)
			}
		}
	})

	t.Run("ResetUnratedWritesNothing", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))
		r := openRegistry(t, flaky)

		if err := r.Reset(models.Key("99")); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		keys, _ := flaky.Keys()
		if len(keys) != 0 {
			t.Errorf("expected no records, got %v", keys)
		}
		if _, ok := r.Get(models.Key("99")); ok {
			t.Error("reset must not create a rating")
		}
	})

	t.Run("Unresolvable", func(t *testing.T) {
		r := openRegistry(t, storage.NewMemory(storage.Options{}))
		if err := r.Rate(models.CatalogItem{}, 5); !errors.Is(err, shared.ErrIdentityUnresolvable) {
			t.Errorf("expected ErrIdentityUnresolvable, got %v", err)
		}
	})

	t.Run("AllIsSnapshot", func(t *testing.T) {
		r := openRegistry(t, storage.NewMemory(storage.Options{}))
		_ = r.Rate(models.Key("1"), 3)

		all := r.All()
		all["1"] = 10
		if v, _ := r.Get(models.Key("1")); v != 3 {
			t.Error("mutating All changed the registry")
		}
	})
}

func TestRegistryPersistence(t *testing.T) {
	t.Run("Rehydrate", func(t *testing.T) {
		st := storage.NewMemory(storage.Options{})
		_ = st.Set("movie_rating_550", "8")
		_ = st.Set("movie_rating_tt0133093", "10")
		_ = st.Set("movie_rating_bad", "eleven")
		_ = st.Set("favorites", "[]")

		var warnings []error
		r := openRegistry(t, st, WithWarningHandler(func(err error) { warnings = append(warnings, err) }))

		if r.Len() != 2 {
			t.Fatalf("expected two ratings, got %v", r.All())
		}
		if v, _ := r.Get(models.Key("tt0133093")); v != 10 {
			t.Errorf("expected 10, got %d", v)
		}
		if len(warnings) != 1 || !errors.Is(warnings[0], shared.ErrPersistenceReadCorrupt) {
			t.Errorf("expected one corrupt warning, got %v", warnings)
		}

		_ = r.Rate(models.Key("bad"), 2)
		if stored, _, _ := st.Get("movie_rating_bad"); stored != "2" {
			t.Errorf("corrupt value should be overwritten, got %q", stored)
		}
	})

	t.Run("WriteFailure", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))

		var warnings []error
		r := New(flaky, WithWarningHandler(func(err error) { warnings = append(warnings, err) }))
		_ = r.Open(context.Background())

		flaky.FailWrites(true)
		if err := r.Rate(models.Key("7"), 6); err != nil {
			t.Fatalf("write failure must not fail Rate: %v", err)
		}
		if v, ok := r.Get(models.Key("7")); !ok || v != 6 {
			t.Error("in-memory rating should stay authoritative")
		}
		if r.Pending() != 1 {
			t.Errorf("expected one pending write, got %d", r.Pending())
		}
		if len(warnings) != 1 || !errors.Is(warnings[0], shared.ErrPersistenceWriteFailed) {
			t.Fatalf("expected a write warning, got %v", warnings)
		}

		flaky.FailWrites(false)
		if err := r.Close(); err != nil {
			t.Fatalf("Close should flush: %v", err)
		}
		if stored, _, _ := flaky.Get("movie_rating_7"); stored != "6" {
			t.Errorf("expected flushed rating, got %q", stored)
		}
	})

	t.Run("PendingResetIsFlushed", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))
		r := New(flaky)
		_ = r.Open(context.Background())
		_ = r.Rate(models.Key("7"), 6)

		flaky.FailWrites(true)
		_ = r.Reset(models.Key("7"))

		flaky.FailWrites(false)
		if err := r.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, ok, _ := flaky.Get("movie_rating_7"); ok {
			t.Error("expected pending removal to be flushed")
		}
	})

	t.Run("ReadFailureKeepsRatings", func(t *testing.T) {
		flaky := reeltest.NewFlakyStorage(storage.NewMemory(storage.Options{}))
		var warnings []error
		r := openRegistry(t, flaky, WithWarningHandler(func(err error) { warnings = append(warnings, err) }))
		_ = r.Rate(models.Key("550"), 8)

		flaky.FailReads(true)
		r.Reconcile()
		r.reloadKey(models.Key("550"))

		if v, _ := r.Get(models.Key("550")); v != 8 {
			t.Errorf("expected rating 8 to survive a failed read, got %d", v)
		}
		if len(warnings) != 2 || !errors.Is(warnings[0], shared.ErrPersistenceReadFailed) {
			t.Errorf("expected read warnings, got %v", warnings)
		}
	})
}

func TestRegistrySync(t *testing.T) {
	tab1 := storage.NewMemory(storage.Options{})
	tab2 := tab1.Sibling()

	r1 := openRegistry(t, tab1)
	r2 := openRegistry(t, tab2)

	_ = r1.Rate(models.Key("42"), 7)
	reeltest.WaitFor(t, func() bool {
		v, ok := r2.Get(models.Key("42"))
		return ok && v == 7
	})

	_ = r2.Reset(models.Key("42"))
	reeltest.WaitFor(t, func() bool {
		_, ok := r1.Get(models.Key("42"))
		return !ok
	})
}
