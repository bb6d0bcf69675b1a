// package services defines the [Provider] interface for catalog metadata sources
package services

import (
	"context"

	"github.com/desertthunder/reel/internal/models"
)

// Provider fetches catalog records from a remote metadata source. An empty kind means
// movies for listings and "any" for search.
type Provider interface {
	// Popular returns one page of currently popular titles. Pages start at 1.
	Popular(ctx context.Context, kind models.MediaKind, page int) (*models.Page, error)

	// Search returns one page of titles matching query.
	Search(ctx context.Context, kind models.MediaKind, query string, page int) (*models.Page, error)

	// Genres lists the genres known for kind.
	Genres(ctx context.Context, kind models.MediaKind) ([]models.Genre, error)

	// Details returns the full record for a title.
	Details(ctx context.Context, kind models.MediaKind, id string) (*models.Details, error)

	// Trailer returns the first YouTube trailer of a title; false when there is none.
	Trailer(ctx context.Context, kind models.MediaKind, id string) (*models.Video, bool, error)
}
