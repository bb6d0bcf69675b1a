package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/formatter"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/tasks"
	"github.com/urfave/cli/v3"
)

func parseCollections(names []string) ([]models.CollectionName, error) {
	var out []models.CollectionName
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			name, err := models.ParseCollectionName(part)
			if err != nil {
				return nil, err
			}
			out = append(out, name)
		}
	}
	return out, nil
}

func (r *Runner) engine(c *core) *tasks.Engine {
	return tasks.NewEngine(
		[]*collections.Store{c.favorites, c.watchLater}, c.ratings, c.sessions,
		tasks.WithHTTPClient(r.httpClient), tasks.WithLogger(r.logger), tasks.WithClock(r.now),
	)
}

// printProgress drains progress until it is closed. The returned channel is closed when
// everything has been written.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.Prepare:
				r.writePlain("📂 %s\n", update.Message)
			case tasks.DownloadPosters:
				r.writePlain("   🖼  [%d/%d] %s\n", update.Step, update.Total, update.Message)
			case tasks.ExportCollection, tasks.ImportCollection:
				r.writePlain("📝 [%d/%d] %s\n", update.Step, update.Total, update.Message)
			default:
				r.writePlain("📝 %s\n", update.Message)
			}
		}
	}()
	return done
}

// Export writes collections to files.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	sources, err := parseCollections(cmd.StringSlice("collection"))
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:       formatter.Format(r.config.Export.Format),
		OutputDir:    r.config.Export.OutputDir,
		Posters:      cmd.Bool("posters"),
		NumWorkers:   r.config.Export.Workers,
		RateLimit:    r.config.Export.RateLimit,
		ImageBaseURL: r.config.TMDB.ImageBaseURL,
	}
	if f := cmd.String("format"); f != "" {
		opts.Format = formatter.Format(f)
	}
	if dir := cmd.String("dir"); dir != "" {
		opts.OutputDir = dir
	}
	if w := int(cmd.Int("workers")); w > 0 {
		opts.NumWorkers = w
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	r.logger.Info("starting export", "format", opts.Format, "posters", opts.Posters)

	progress := make(chan tasks.ProgressUpdate, 50)
	done := r.printProgress(progress)
	result, err := r.engine(c).Export(ctx, progress, sources, opts)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlainHeader("Export Complete!")
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Files:     %d\n", len(result.Files))
	if opts.Posters {
		r.writePlain("Posters:   %d\n", result.Posters)
	}
	r.writePlain("Manifest:  %s\n", result.ManifestPath)
	if len(result.Failures) > 0 {
		r.writePlain("\n%d failures:\n", len(result.Failures))
		for _, f := range result.Failures {
			r.writePlain("  - %s: %s\n", f.Item, f.Error)
		}
	}
	return nil
}

// Import merges a browser storage dump into the collections and ratings.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := strings.TrimSpace(cmd.StringArg("path"))
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	targets, err := parseCollections(cmd.StringSlice("collection"))
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	dump, err := tasks.ParseDump(f)
	if err != nil {
		return err
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	progress := make(chan tasks.ProgressUpdate, 50)
	done := r.printProgress(progress)
	result, err := r.engine(c).Import(ctx, progress, dump, targets)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlainHeader("Import Complete!")
	for _, name := range models.Collections {
		if n, ok := result.Added[name]; ok {
			r.writePlain("%-12s +%d\n", name.Label()+":", n)
		}
	}
	r.writePlain("Read:        %d entries (%d without identity)\n", result.Read, result.Skipped)
	r.writePlain("Ratings:     +%d (%d already rated)\n", result.Ratings, result.Kept)
	if len(result.Failures) > 0 {
		r.writePlain("\n%d values could not be imported:\n", len(result.Failures))
		for _, f := range result.Failures {
			r.writePlain("  - %s: %v\n", f.Key, f.Error)
		}
	}
	return nil
}
