package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/reel/internal/catalog"
	"github.com/desertthunder/reel/internal/formatter"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/urfave/cli/v3"
)

func idArg(cmd *cli.Command) (models.Key, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	return models.KeyOf(id), nil
}

// CollectionList prints the entries of a collection in insertion order unless sorted.
func (r *Runner) CollectionList(name models.CollectionName) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		mode, err := catalog.ParseSortMode(cmd.String("sort"))
		if err != nil {
			return err
		}
		style, err := r.outputStyle(cmd)
		if err != nil {
			return err
		}

		c, err := r.openCore(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		entries := r.sorter().SortEntries(c.store(name).List(), mode)
		switch style {
		case styleJSON:
			return r.writeJSON(entries, true)
		case styleTable:
			if len(entries) == 0 {
				return r.writePlain("%s is empty\n", name.Label())
			}
			return r.writePlain("%s\n", formatter.RenderCollection(entries, c.ratings.All(), r.now()))
		default:
			for _, e := range entries {
				line := fmt.Sprintf("%s\t%s\t%s", e.Key, titleWithYear(e.Item), e.Item.Kind)
				if v, ok := c.ratings.Get(e.Key); ok {
					line += fmt.Sprintf("\t%d/%d", v, models.MaxRating)
				}
				r.writePlain("%s\n", line)
			}
			return nil
		}
	}
}

// lookup returns the catalog item for key: the stored entry when present, a bare record
// when --title is given, otherwise the provider's details.
func (r *Runner) lookup(ctx context.Context, cmd *cli.Command, c *core, name models.CollectionName, key models.Key) (models.CatalogItem, error) {
	if entry, ok := c.store(name).Get(key); ok {
		return entry.Item, nil
	}

	kind, err := parseKind(cmd.String("kind"), false)
	if err != nil {
		return models.CatalogItem{}, err
	}
	if title := strings.TrimSpace(cmd.String("title")); title != "" {
		return models.CatalogItem{PrimaryID: string(key), Kind: kind, Title: title}, nil
	}

	provider, err := r.catalog()
	if err != nil {
		return models.CatalogItem{}, err
	}
	details, err := provider.Details(ctx, kind, string(key))
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("failed to fetch details: %w", err)
	}
	return details.Item, nil
}

// CollectionAdd adds a title. The session is checked before any lookup.
func (r *Runner) CollectionAdd(name models.CollectionName) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		key, err := idArg(cmd)
		if err != nil {
			return err
		}

		c, err := r.openCore(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if !c.sessions.RequireSession() {
			return shared.ErrUnauthenticated
		}
		store := c.store(name)
		if entry, ok := store.Get(key); ok {
			return r.writePlain("%s is already in %s\n", entry.Item.DisplayTitle(), name.Label())
		}

		item, err := r.lookup(ctx, cmd, c, name, key)
		if err != nil {
			return err
		}
		if err := store.Add(item); err != nil {
			return err
		}
		return r.writePlain("✓ Added %s to %s\n", titleWithYear(item), name.Label())
	}
}

// CollectionRemove removes a title by identity key.
func (r *Runner) CollectionRemove(name models.CollectionName) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		key, err := idArg(cmd)
		if err != nil {
			return err
		}

		c, err := r.openCore(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		store := c.store(name)
		entry, ok := store.Get(key)
		if err := store.Remove(key); err != nil {
			return err
		}
		if !ok {
			return r.writePlain("%s is not in %s\n", key, name.Label())
		}
		return r.writePlain("✓ Removed %s from %s\n", entry.Item.DisplayTitle(), name.Label())
	}
}

// CollectionToggle adds the title when absent and removes it when present.
func (r *Runner) CollectionToggle(name models.CollectionName) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		key, err := idArg(cmd)
		if err != nil {
			return err
		}

		c, err := r.openCore(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if !c.sessions.RequireSession() {
			return shared.ErrUnauthenticated
		}
		item, err := r.lookup(ctx, cmd, c, name, key)
		if err != nil {
			return err
		}
		added, err := c.store(name).Toggle(item)
		if err != nil {
			return err
		}
		if added {
			return r.writePlain("✓ Added %s to %s\n", titleWithYear(item), name.Label())
		}
		return r.writePlain("✓ Removed %s from %s\n", titleWithYear(item), name.Label())
	}
}

// Rate stores a 1-10 star rating. Ratings do not require a session.
func (r *Runner) Rate(ctx context.Context, cmd *cli.Command) error {
	key, err := idArg(cmd)
	if err != nil {
		return err
	}
	stars := strings.TrimSpace(cmd.StringArg("stars"))
	if stars == "" {
		return fmt.Errorf("%w: stars", shared.ErrMissingArgument)
	}
	value, err := strconv.Atoi(stars)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", shared.ErrInvalidRating, stars)
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.ratings.Rate(key, value); err != nil {
		return err
	}
	return r.writePlain("✓ Rated %s %s (%d/%d)\n", key, models.Stars(value), value, models.MaxRating)
}

// Unrate clears a rating. Clearing an unrated title is not an error.
func (r *Runner) Unrate(ctx context.Context, cmd *cli.Command) error {
	key, err := idArg(cmd)
	if err != nil {
		return err
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, ok := c.ratings.Get(key); !ok {
		return r.writePlain("%s is not rated\n", key)
	}
	if err := c.ratings.Reset(key); err != nil {
		return err
	}
	return r.writePlain("✓ Cleared rating for %s\n", key)
}
