package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/desertthunder/reel/internal/shared"
)

// Key is the string identity of a title. Lookups always compare keys as strings,
// never native ids, so 42 and "42" are the same title.
type Key string

// Ref is anything that names a title: a [Key] or a [CatalogItem].
type Ref interface {
	IdentityKey() (Key, error)
}

var (
	_ Ref = Key("")
	_ Ref = CatalogItem{}
)

// IdentityKey returns k, or an error when k is empty.
func (k Key) IdentityKey() (Key, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", fmt.Errorf("%w: empty key", shared.ErrIdentityUnresolvable)
	}
	return k, nil
}

// String implements [fmt.Stringer].
func (k Key) String() string { return string(k) }

// IdentityKey resolves the item with [Resolve].
func (c CatalogItem) IdentityKey() (Key, error) {
	return Resolve(c)
}

// Resolve computes the identity key of an item.
//
// The primary id wins when present, then the alternate id, then "<kind>-<title>".
// Titles fetched from different endpoints only collapse to one key when they share an id.
func Resolve(item CatalogItem) (Key, error) {
	if id := strings.TrimSpace(item.PrimaryID); id != "" {
		return Key(id), nil
	}
	if id := strings.TrimSpace(item.AlternateID); id != "" {
		return Key(id), nil
	}
	if item.Kind != "" && strings.TrimSpace(item.Title) != "" {
		return Key(fmt.Sprintf("%s-%s", item.Kind, item.Title)), nil
	}
	return "", fmt.Errorf("%w: no id and no kind/title pair", shared.ErrIdentityUnresolvable)
}

// KeyOf string-coerces a native id. Integral floats lose their fraction so that a
// JSON-decoded 550 and the string "550" produce the same key.
func KeyOf(v any) Key {
	switch id := v.(type) {
	case Key:
		return id
	case string:
		return Key(strings.TrimSpace(id))
	case int:
		return Key(strconv.Itoa(id))
	case int32:
		return Key(strconv.FormatInt(int64(id), 10))
	case int64:
		return Key(strconv.FormatInt(id, 10))
	case uint:
		return Key(strconv.FormatUint(uint64(id), 10))
	case uint64:
		return Key(strconv.FormatUint(id, 10))
	case float64:
		return floatKey(id)
	case float32:
		return floatKey(float64(id))
	case json.Number:
		if f, err := id.Float64(); err == nil {
			return floatKey(f)
		}
		return Key(id.String())
	case fmt.Stringer:
		return Key(id.String())
	case nil:
		return ""
	default:
		return Key(fmt.Sprint(id))
	}
}

func floatKey(f float64) Key {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return Key(strconv.FormatInt(int64(f), 10))
	}
	return Key(strconv.FormatFloat(f, 'f', -1, 64))
}
