// Package catalog filters, sorts and merges catalog listings the way the browse views
// present them.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortMode orders a listing. The zero value keeps the provider's order.
type SortMode string

const (
	SortNone       SortMode = ""
	SortAZ         SortMode = "a-z"
	SortZA         SortMode = "z-a"
	SortRatingHigh SortMode = "rating-high"
	SortRatingLow  SortMode = "rating-low"
)

// SortModes lists the accepted modes for help text.
var SortModes = []SortMode{SortAZ, SortZA, SortRatingHigh, SortRatingLow}

// ParseSortMode validates s.
func ParseSortMode(s string) (SortMode, error) {
	mode := SortMode(strings.ToLower(strings.TrimSpace(s)))
	if mode == SortNone || slices.Contains(SortModes, mode) {
		return mode, nil
	}
	return "", fmt.Errorf("%w: sort mode %q", shared.ErrInvalidArgument, s)
}

// Criteria selects items. Zero fields match everything.
type Criteria struct {
	GenreID int
	Query   string
}

// Filter returns the items matching c, in order. Query matching ignores case and accents.
func Filter(items []models.CatalogItem, c Criteria) []models.CatalogItem {
	query := shared.FoldTitle(c.Query)

	out := make([]models.CatalogItem, 0, len(items))
	for _, item := range items {
		if c.GenreID != 0 && !item.HasGenre(c.GenreID) {
			continue
		}
		if query != "" && !strings.Contains(shared.FoldTitle(item.Title), query) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Sorter compares titles with locale collation.
type Sorter struct {
	collator *collate.Collator
}

// NewSorter builds a sorter for a BCP 47 tag such as "en-US". Unknown tags fall back to
// English.
func NewSorter(tag string) *Sorter {
	lang, err := language.Parse(tag)
	if err != nil {
		lang = language.English
	}
	return &Sorter{collator: collate.New(lang, collate.Loose)}
}

// Sort returns a sorted copy of items. Equal elements keep their order.
func (s *Sorter) Sort(items []models.CatalogItem, mode SortMode) []models.CatalogItem {
	out := slices.Clone(items)
	if cmp := s.compare(mode); cmp != nil {
		slices.SortStableFunc(out, cmp)
	}
	return out
}

// SortEntries orders collection entries by their items.
func (s *Sorter) SortEntries(entries []models.CollectionEntry, mode SortMode) []models.CollectionEntry {
	out := slices.Clone(entries)
	if cmp := s.compare(mode); cmp != nil {
		slices.SortStableFunc(out, func(a, b models.CollectionEntry) int {
			return cmp(a.Item, b.Item)
		})
	}
	return out
}

func (s *Sorter) compare(mode SortMode) func(a, b models.CatalogItem) int {
	switch mode {
	case SortAZ:
		return func(a, b models.CatalogItem) int {
			return s.collator.CompareString(a.Title, b.Title)
		}
	case SortZA:
		return func(a, b models.CatalogItem) int {
			return s.collator.CompareString(b.Title, a.Title)
		}
	case SortRatingHigh:
		return func(a, b models.CatalogItem) int {
			return compareFloat(b.VoteAverage, a.VoteAverage)
		}
	case SortRatingLow:
		return func(a, b models.CatalogItem) int {
			return compareFloat(a.VoteAverage, b.VoteAverage)
		}
	default:
		return nil
	}
}

// Sort orders items with an English collator.
func Sort(items []models.CatalogItem, mode SortMode) []models.CatalogItem {
	return NewSorter("en").Sort(items, mode)
}

// Dedupe concatenates pages and drops later items whose identity key was already seen.
// Unresolvable items are kept.
func Dedupe(pages ...[]models.CatalogItem) []models.CatalogItem {
	seen := make(map[models.Key]struct{})

	var out []models.CatalogItem
	for _, page := range pages {
		for _, item := range page {
			key, err := models.Resolve(item)
			if err == nil {
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
			}
			out = append(out, item)
		}
	}
	return out
}

// GenreNames maps ids to names for display. Unknown ids are skipped.
func GenreNames(ids []int, genres []models.Genre) []string {
	byID := make(map[int]string, len(genres))
	for _, g := range genres {
		byID[g.ID] = g.Name
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// FindGenre resolves a genre by id or case-insensitive name.
func FindGenre(genres []models.Genre, s string) (models.Genre, bool) {
	folded := shared.FoldTitle(s)
	for _, g := range genres {
		if fmt.Sprint(g.ID) == strings.TrimSpace(s) || shared.FoldTitle(g.Name) == folded {
			return g, true
		}
	}
	return models.Genre{}, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
