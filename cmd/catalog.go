package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/reel/internal/catalog"
	"github.com/desertthunder/reel/internal/formatter"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/services"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/urfave/cli/v3"
)

const (
	styleTable = "table"
	styleText  = "text"
	styleJSON  = "json"
)

// outputStyle resolves --output, picking a table for terminals.
func (r *Runner) outputStyle(cmd *cli.Command) (string, error) {
	switch style := strings.ToLower(cmd.String("output")); style {
	case "":
		if formatter.IsTerminal(r.output) {
			return styleTable, nil
		}
		return styleText, nil
	case styleTable, styleText, styleJSON:
		return style, nil
	default:
		return "", fmt.Errorf("%w: output style %q", shared.ErrInvalidArgument, style)
	}
}

func parseKind(s string, allowAny bool) (models.MediaKind, error) {
	if s == "" && allowAny {
		return "", nil
	}
	kind := models.ParseMediaKind(s)
	if kind == "" {
		return "", fmt.Errorf("%w: kind %q (want movie or tv)", shared.ErrInvalidArgument, s)
	}
	return kind, nil
}

func (r *Runner) sorter() *catalog.Sorter {
	return catalog.NewSorter(r.config.TMDB.Language)
}

// Popular lists popular titles with optional genre and title filters.
func (r *Runner) Popular(ctx context.Context, cmd *cli.Command) error {
	kind, err := parseKind(cmd.String("kind"), false)
	if err != nil {
		return err
	}
	mode, err := catalog.ParseSortMode(cmd.String("sort"))
	if err != nil {
		return err
	}
	style, err := r.outputStyle(cmd)
	if err != nil {
		return err
	}
	provider, err := r.catalog()
	if err != nil {
		return err
	}

	page, err := provider.Popular(ctx, kind, int(cmd.Int("page")))
	if err != nil {
		return fmt.Errorf("failed to fetch popular titles: %w", err)
	}

	criteria := catalog.Criteria{Query: cmd.String("query")}
	if name := cmd.String("genre"); name != "" {
		genres, err := provider.Genres(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to fetch genres: %w", err)
		}
		genre, ok := catalog.FindGenre(genres, name)
		if !ok {
			return fmt.Errorf("%w: unknown genre %q", shared.ErrInvalidArgument, name)
		}
		criteria.GenreID = genre.ID
	}

	items := r.sorter().Sort(catalog.Filter(page.Results, criteria), mode)
	return r.writeListing(ctx, style, page, items)
}

// Search looks titles up by name.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	kind, err := parseKind(cmd.String("kind"), true)
	if err != nil {
		return err
	}
	mode, err := catalog.ParseSortMode(cmd.String("sort"))
	if err != nil {
		return err
	}
	style, err := r.outputStyle(cmd)
	if err != nil {
		return err
	}
	provider, err := r.catalog()
	if err != nil {
		return err
	}

	page, err := provider.Search(ctx, kind, query, int(cmd.Int("page")))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return r.writeListing(ctx, style, page, r.sorter().Sort(page.Results, mode))
}

// writeListing prints items annotated with collection membership and ratings.
func (r *Runner) writeListing(ctx context.Context, style string, page *models.Page, items []models.CatalogItem) error {
	if style == styleJSON {
		return r.writeJSON(items, true)
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	marks := func(item models.CatalogItem) string {
		var flags []string
		if c.favorites.Contains(item) {
			flags = append(flags, "♥")
		}
		if c.watchLater.Contains(item) {
			flags = append(flags, "⏱")
		}
		return strings.Join(flags, " ")
	}

	if len(items) == 0 {
		return r.writePlain("No titles found\n")
	}

	if style == styleTable {
		r.writePlain("%s\n", formatter.RenderCatalog(items, c.ratings.All(), marks))
	} else {
		for _, item := range items {
			line := fmt.Sprintf("%s\t%s\t%s\t%.1f", item.PrimaryID, titleWithYear(item), item.Kind, item.VoteAverage)
			if v, ok := c.ratings.Get(item); ok {
				line += "\t" + models.Stars(v)
			}
			if m := marks(item); m != "" {
				line += "\t" + m
			}
			r.writePlain("%s\n", line)
		}
	}

	if page.HasMore() {
		r.writePlain("Page %d of %d\n", page.Number, page.TotalPages)
	}
	return nil
}

func titleWithYear(item models.CatalogItem) string {
	if year := item.Year(); year != "" {
		return fmt.Sprintf("%s (%s)", item.DisplayTitle(), year)
	}
	return item.DisplayTitle()
}

// Genres lists the genres for a kind.
func (r *Runner) Genres(ctx context.Context, cmd *cli.Command) error {
	kind, err := parseKind(cmd.String("kind"), false)
	if err != nil {
		return err
	}
	provider, err := r.catalog()
	if err != nil {
		return err
	}

	genres, err := provider.Genres(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to fetch genres: %w", err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(genres, true)
	}
	for _, g := range genres {
		r.writePlain("%d\t%s\n", g.ID, g.Name)
	}
	return nil
}

// Show prints details, trailer, membership and rating for a title.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	kind, err := parseKind(cmd.String("kind"), false)
	if err != nil {
		return err
	}
	provider, err := r.catalog()
	if err != nil {
		return err
	}

	details, err := provider.Details(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("failed to fetch details: %w", err)
	}
	trailer, hasTrailer, err := provider.Trailer(ctx, kind, id)
	if err != nil {
		r.logger.Warn("failed to fetch trailer", "id", id, "error", err)
	}

	if cmd.Bool("json") {
		out := struct {
			*models.Details
			Trailer *models.Video `json:"trailer,omitempty"`
		}{Details: details}
		if hasTrailer {
			out.Trailer = trailer
		}
		return r.writeJSON(out, true)
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	item := details.Item
	r.writePlainHeader(titleWithYear(item))
	if details.Tagline != "" {
		r.writePlain("%s\n\n", details.Tagline)
	}
	r.writePlain("Kind:     %s\n", item.Kind)
	r.writePlain("Score:    %.1f (%d votes)\n", item.VoteAverage, details.VoteCount)
	if details.Runtime > 0 {
		r.writePlain("Runtime:  %d min\n", details.Runtime)
	}
	if len(details.Genres) > 0 {
		names := make([]string, 0, len(details.Genres))
		for _, g := range details.Genres {
			names = append(names, g.Name)
		}
		r.writePlain("Genres:   %s\n", strings.Join(names, ", "))
	}
	r.writePlain("Page:     %s\n", services.TitleURL(item.Kind, id))
	if hasTrailer {
		r.writePlain("Trailer:  %s\n", trailer.WatchURL())
	}

	rating := "unrated"
	if v, ok := c.ratings.Get(item); ok {
		rating = models.Stars(v)
	}
	r.writePlain("Rating:   %s\n", rating)
	r.writePlain("Favorite: %s  Watch later: %s\n", yesNo(c.favorites.Contains(item)), yesNo(c.watchLater.Contains(item)))
	if item.Overview != "" {
		r.writePlainln("%s", item.Overview)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Open launches the browser on the title page or its trailer.
func (r *Runner) Open(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	kind, err := parseKind(cmd.String("kind"), false)
	if err != nil {
		return err
	}

	target := services.TitleURL(kind, id)
	if cmd.Bool("trailer") {
		provider, err := r.catalog()
		if err != nil {
			return err
		}
		video, ok, err := provider.Trailer(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("failed to fetch trailer: %w", err)
		}
		if !ok || video.WatchURL() == "" {
			return fmt.Errorf("%w: no trailer for %s", shared.ErrTitleNotFound, id)
		}
		target = video.WatchURL()
	}

	r.logger.Debug("opening browser", "url", target)
	if err := r.opener(target); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return r.writePlain("Opened %s\n", target)
}
