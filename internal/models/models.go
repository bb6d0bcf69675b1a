package models

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// MediaKind distinguishes movies from TV shows.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// ParseMediaKind maps user and API spellings onto a [MediaKind]. Unknown values yield "".
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return KindMovie
	case "tv", "show", "series", "tv-shows":
		return KindTV
	default:
		return ""
	}
}

// CatalogItem is a read-only projection of a remote metadata record.
//
// Values are built fresh from each API response; two structurally different values can
// describe the same title, which is why lookups go through [Resolve] instead of equality.
type CatalogItem struct {
	PrimaryID   string
	AlternateID string
	Kind        MediaKind
	Title       string
	PosterPath  string
	ReleaseDate string
	VoteAverage float64
	Overview    string
	GenreIDs    []int
}

// Year returns the first four characters of the release date, or "".
func (c CatalogItem) Year() string {
	if len(c.ReleaseDate) < 4 {
		return ""
	}
	return c.ReleaseDate[:4]
}

// DisplayTitle returns the title or "Untitled".
func (c CatalogItem) DisplayTitle() string {
	if c.Title == "" {
		return "Untitled"
	}
	return c.Title
}

// Clone returns a copy of c with its own GenreIDs.
func (c CatalogItem) Clone() CatalogItem {
	c.GenreIDs = slices.Clone(c.GenreIDs)
	return c
}

// HasGenre reports whether id is among the item's genre ids.
func (c CatalogItem) HasGenre(id int) bool {
	for _, g := range c.GenreIDs {
		if g == id {
			return true
		}
	}
	return false
}

// catalogItemJSON is the canonical persisted shape of a [CatalogItem].
type catalogItemJSON struct {
	ID          string    `json:"id,omitempty"`
	ImdbID      string    `json:"imdbID,omitempty"`
	MediaType   MediaKind `json:"media_type,omitempty"`
	Title       string    `json:"title,omitempty"`
	PosterPath  string    `json:"poster_path,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	VoteAverage float64   `json:"vote_average,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	GenreIDs    []int     `json:"genre_ids,omitempty"`
}

// looseItemJSON accepts the shapes written by older clients and returned by the
// metadata API: numeric or string ids, title or name, release or first air date.
type looseItemJSON struct {
	ID           json.RawMessage `json:"id"`
	ImdbID       *string         `json:"imdbID"`
	ImdbIDSnake  *string         `json:"imdb_id"`
	ImdbIDCamel  *string         `json:"imdbId"`
	MediaType    *string         `json:"media_type"`
	Title        *string         `json:"title"`
	Name         *string         `json:"name"`
	PosterPath   *string         `json:"poster_path"`
	ReleaseDate  *string         `json:"release_date"`
	FirstAirDate *string         `json:"first_air_date"`
	VoteAverage  *float64        `json:"vote_average"`
	Overview     *string         `json:"overview"`
	GenreIDs     []int           `json:"genre_ids"`
}

// MarshalJSON writes the canonical shape.
func (c CatalogItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(catalogItemJSON{
		ID:          c.PrimaryID,
		ImdbID:      c.AlternateID,
		MediaType:   c.Kind,
		Title:       c.Title,
		PosterPath:  c.PosterPath,
		ReleaseDate: c.ReleaseDate,
		VoteAverage: c.VoteAverage,
		Overview:    c.Overview,
		GenreIDs:    c.GenreIDs,
	})
}

// UnmarshalJSON reads the canonical shape as well as raw API and legacy browser records.
// Null or missing fields are left empty.
func (c *CatalogItem) UnmarshalJSON(data []byte) error {
	var raw looseItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := rawID(raw.ID)
	if err != nil {
		return err
	}

	*c = CatalogItem{
		PrimaryID:   id,
		AlternateID: firstOf(raw.ImdbID, raw.ImdbIDSnake, raw.ImdbIDCamel),
		Kind:        ParseMediaKind(firstOf(raw.MediaType)),
		Title:       firstOf(raw.Title, raw.Name),
		PosterPath:  firstOf(raw.PosterPath),
		ReleaseDate: firstOf(raw.ReleaseDate, raw.FirstAirDate),
		Overview:    firstOf(raw.Overview),
		GenreIDs:    raw.GenreIDs,
	}
	if raw.VoteAverage != nil {
		c.VoteAverage = *raw.VoteAverage
	}
	return nil
}

// rawID decodes an id that may be a JSON number, string or null.
func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return string(KeyOf(n)), nil
}

func firstOf(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// Genre is a metadata provider genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Video is a trailer or clip attached to a title.
type Video struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

// WatchURL returns a playable URL for YouTube videos, or "".
func (v Video) WatchURL() string {
	if v.Site != "YouTube" || v.Key == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + v.Key
}

// Details is the full record for a single title.
type Details struct {
	Item      CatalogItem
	Genres    []Genre
	Runtime   int // minutes, 0 when unknown
	VoteCount int
	Tagline   string
	Homepage  string
}

// Page is one page of a paginated listing.
type Page struct {
	Number     int
	TotalPages int
	Results    []CatalogItem
}

// HasMore reports whether a later page exists.
func (p Page) HasMore() bool {
	return p.Number < p.TotalPages
}
