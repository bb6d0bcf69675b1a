package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/desertthunder/reel/internal/shared"
)

func TestResolve(t *testing.T) {
	tt := []struct {
		name    string
		item    CatalogItem
		want    Key
		wantErr bool
	}{
		{name: "primary id", item: CatalogItem{PrimaryID: "550", Title: "Fight Club"}, want: "550"},
		{name: "primary id wins over alternate", item: CatalogItem{PrimaryID: "550", AlternateID: "tt0137523"}, want: "550"},
		{name: "alternate id", item: CatalogItem{AlternateID: "tt0137523", Title: "Fight Club"}, want: "tt0137523"},
		{name: "kind and title", item: CatalogItem{Kind: KindTV, Title: "Severance"}, want: "tv-Severance"},
		{name: "whitespace id ignored", item: CatalogItem{PrimaryID: "  ", Kind: KindMovie, Title: "Heat"}, want: "movie-Heat"},
		{name: "title without kind", item: CatalogItem{Title: "Heat"}, wantErr: true},
		{name: "kind without title", item: CatalogItem{Kind: KindMovie}, wantErr: true},
		{name: "empty", item: CatalogItem{}, wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.item)
			if tc.wantErr {
				if !errors.Is(err, shared.ErrIdentityUnresolvable) {
					t.Fatalf("expected ErrIdentityUnresolvable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Resolve() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKeyOf(t *testing.T) {
	tt := []struct {
		name string
		in   any
		want Key
	}{
		{name: "int", in: 42, want: "42"},
		{name: "int64", in: int64(42), want: "42"},
		{name: "integral float", in: 42.0, want: "42"},
		{name: "fractional float", in: 4.5, want: "4.5"},
		{name: "string", in: "42", want: "42"},
		{name: "padded string", in: " 42 ", want: "42"},
		{name: "json number", in: json.Number("550"), want: "550"},
		{name: "key", in: Key("tt0137523"), want: "tt0137523"},
		{name: "nil", in: nil, want: ""},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := KeyOf(tc.in); got != tc.want {
				t.Errorf("KeyOf(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	t.Run("numeric and string ids resolve equal", func(t *testing.T) {
		var decoded CatalogItem
		if err := json.Unmarshal([]byte(`{"id": 42, "title": "x"}`), &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		key, err := Resolve(decoded)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if key != KeyOf("42") || key != KeyOf(42) {
			t.Errorf("expected %q to equal string and int keys", key)
		}
	})
}

func TestKeyIdentityKey(t *testing.T) {
	if _, err := Key("").IdentityKey(); !errors.Is(err, shared.ErrIdentityUnresolvable) {
		t.Errorf("expected empty key to be unresolvable, got %v", err)
	}
	if k, err := Key("550").IdentityKey(); err != nil || k != "550" {
		t.Errorf("expected 550, got %q (%v)", k, err)
	}
}

func TestCatalogItemJSON(t *testing.T) {
	t.Run("tmdb movie record", func(t *testing.T) {
		data := `{"id": 550, "title": "Fight Club", "poster_path": "/p.jpg", "release_date": "1999-10-15",
			"vote_average": 8.4, "genre_ids": [18, 53], "media_type": "movie"}`
		var item CatalogItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if item.PrimaryID != "550" || item.Title != "Fight Club" || item.Kind != KindMovie {
			t.Errorf("unexpected item: %+v", item)
		}
		if item.Year() != "1999" || !item.HasGenre(53) {
			t.Errorf("unexpected derived fields: year=%q genres=%v", item.Year(), item.GenreIDs)
		}
	})

	t.Run("tmdb tv record with nulls", func(t *testing.T) {
		data := `{"id": 1396, "name": "Breaking Bad", "first_air_date": "2008-01-20", "poster_path": null,
			"vote_average": null, "overview": null}`
		var item CatalogItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if item.Title != "Breaking Bad" || item.ReleaseDate != "2008-01-20" || item.PosterPath != "" {
			t.Errorf("unexpected item: %+v", item)
		}
	})

	t.Run("imdb record", func(t *testing.T) {
		var item CatalogItem
		if err := json.Unmarshal([]byte(`{"imdbID": "tt0137523", "title": "Fight Club"}`), &item); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if item.AlternateID != "tt0137523" || item.PrimaryID != "" {
			t.Errorf("unexpected item: %+v", item)
		}
	})

	t.Run("canonical round trip", func(t *testing.T) {
		in := CatalogItem{PrimaryID: "550", AlternateID: "tt0137523", Kind: KindMovie, Title: "Fight Club", VoteAverage: 8.4}
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out CatalogItem
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.PrimaryID != in.PrimaryID || out.AlternateID != in.AlternateID || out.Kind != in.Kind || out.Title != in.Title {
			t.Errorf("round trip mismatch: %+v vs %+v", out, in)
		}
	})
}
