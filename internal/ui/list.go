package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/reel/internal/models"
)

var _ list.Item = titleItem{}

// titleItem wraps [models.CatalogItem] with its collection marks to implement [list.Item].
type titleItem struct {
	item     models.CatalogItem
	key      models.Key
	favorite bool
	later    bool
	rating   int
}

func (i titleItem) FilterValue() string { return i.item.DisplayTitle() }

func (i titleItem) Title() string {
	if y := i.item.Year(); y != "" {
		return fmt.Sprintf("%s (%s)", i.item.DisplayTitle(), y)
	}
	return i.item.DisplayTitle()
}

func (i titleItem) Description() string {
	parts := []string{fmt.Sprintf("★ %.1f", i.item.VoteAverage)}
	if i.favorite {
		parts = append(parts, "♥ favorite")
	}
	if i.later {
		parts = append(parts, "⏱ watch later")
	}
	if i.rating > 0 {
		parts = append(parts, fmt.Sprintf("%s %d/10", models.Stars(i.rating), i.rating))
	}
	return strings.Join(parts, " • ")
}
