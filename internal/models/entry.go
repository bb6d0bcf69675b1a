package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/reel/internal/shared"
)

// CollectionName names one of the personal collections. It doubles as the storage key.
type CollectionName string

const (
	Favorites  CollectionName = "favorites"
	WatchLater CollectionName = "watchLater"
)

// Collections lists every known collection in display order.
var Collections = []CollectionName{Favorites, WatchLater}

// ParseCollectionName accepts the storage name and the CLI spellings.
func ParseCollectionName(s string) (CollectionName, error) {
	switch s {
	case "favorites", "favourites", "fav", "favs":
		return Favorites, nil
	case "watchLater", "watch-later", "watch_later", "later":
		return WatchLater, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownCollection, s)
	}
}

// Label returns a human readable name.
func (n CollectionName) Label() string {
	switch n {
	case Favorites:
		return "Favorites"
	case WatchLater:
		return "Watch Later"
	default:
		return string(n)
	}
}

// CollectionEntry is a [CatalogItem] captured into a collection.
type CollectionEntry struct {
	Key     Key         `json:"key"`
	AddedAt time.Time   `json:"addedAt"`
	Item    CatalogItem `json:"item"`
}

// IdentityKey implements [Ref].
func (e CollectionEntry) IdentityKey() (Key, error) {
	return e.Key.IdentityKey()
}

// NewCollectionEntry resolves item and stamps it with addedAt.
func NewCollectionEntry(item CatalogItem, addedAt time.Time) (CollectionEntry, error) {
	key, err := Resolve(item)
	if err != nil {
		return CollectionEntry{}, err
	}
	return CollectionEntry{Key: key, AddedAt: addedAt.UTC(), Item: item.Clone()}, nil
}

// Clone returns a copy of e that shares no memory with it.
func (e CollectionEntry) Clone() CollectionEntry {
	e.Item = e.Item.Clone()
	return e
}

// DecodeEntries parses a persisted collection.
//
// Elements without a "key" are treated as raw item records written by older clients and
// resolved here; their addedAt is left zero. Elements that cannot be resolved are skipped
// and counted in skipped.
func DecodeEntries(data string) (entries []CollectionEntry, skipped int, err error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrPersistenceReadCorrupt, err)
	}

	entries = make([]CollectionEntry, 0, len(raw))
	for _, el := range raw {
		var probe struct {
			Key  *string         `json:"key"`
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(el, &probe); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", shared.ErrPersistenceReadCorrupt, err)
		}

		if probe.Key != nil && len(probe.Item) > 0 {
			var entry CollectionEntry
			if err := json.Unmarshal(el, &entry); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", shared.ErrPersistenceReadCorrupt, err)
			}
			if entry.Key == "" {
				skipped++
				continue
			}
			entries = append(entries, entry)
			continue
		}

		var item CatalogItem
		if err := json.Unmarshal(el, &item); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", shared.ErrPersistenceReadCorrupt, err)
		}
		entry, err := NewCollectionEntry(item, time.Time{})
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}

	return entries, skipped, nil
}

// EncodeEntries serializes entries in order.
func EncodeEntries(entries []CollectionEntry) (string, error) {
	if entries == nil {
		entries = []CollectionEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
