package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/reel/internal/shared"
)

const (
	MinRating = 1
	MaxRating = 10

	// RatingKeyPrefix prefixes the storage key of every rating.
	RatingKeyPrefix = "movie_rating_"
)

// Rating maps an identity key to a star value.
type Rating struct {
	Key   Key `json:"key"`
	Value int `json:"value"`
}

// ValidateRating returns an error wrapping [shared.ErrInvalidRating] for values outside [1,10].
func ValidateRating(v int) error {
	if v < MinRating || v > MaxRating {
		return fmt.Errorf("%w: got %d", shared.ErrInvalidRating, v)
	}
	return nil
}

// RatingStorageKey returns the storage key for k.
func RatingStorageKey(k Key) string {
	return RatingKeyPrefix + string(k)
}

// RatingKeyFromStorage reverses [RatingStorageKey].
func RatingKeyFromStorage(storageKey string) (Key, bool) {
	if !strings.HasPrefix(storageKey, RatingKeyPrefix) {
		return "", false
	}
	k := Key(strings.TrimPrefix(storageKey, RatingKeyPrefix))
	return k, k != ""
}

// ParseRating parses a persisted rating value.
func ParseRating(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", shared.ErrPersistenceReadCorrupt, s)
	}
	if err := ValidateRating(v); err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrPersistenceReadCorrupt, err)
	}
	return v, nil
}

// Stars renders v as filled and empty stars.
func Stars(v int) string {
	if v < 0 {
		v = 0
	}
	if v > MaxRating {
		v = MaxRating
	}
	return strings.Repeat("★", v) + strings.Repeat("☆", MaxRating-v)
}
