package tasks

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/desertthunder/reel/internal/formatter"
	"github.com/desertthunder/reel/internal/models"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// PosterDir is the poster sub-directory of an export.
const PosterDir = "posters"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportOpts contains configuration for collection exports.
type ExportOpts struct {
	Format       formatter.Format // Export format: csv, markdown, text, json
	OutputDir    string           // Base output directory (default: reel_export_{epoch})
	Posters      bool             // Download poster images next to the export
	NumWorkers   int              // Concurrent poster downloads (default: 4, max 10)
	RateLimit    float64          // Poster requests per second (default: 5)
	ImageBaseURL string           // Poster CDN base URL
}

// ExportResult summarizes one export run.
type ExportResult struct {
	OutputDirectory string
	ManifestPath    string
	Files           []string
	Posters         int
	Failures        []formatter.ManifestFailed
}

type posterJob struct {
	key   models.Key
	title string
	url   string
}

// Export writes each source collection (all stores when empty) into opts.OutputDir and
// records the run in the export manifest.
//
// Posters are fetched by a bounded worker pool behind a rate limiter. A failed poster is
// recorded in the manifest and the export links the remote image instead.
func (e *Engine) Export(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	sources []models.CollectionName,
	opts ExportOpts,
) (*ExportResult, error) {
	stores, err := e.selectStores(sources)
	if err != nil {
		return nil, err
	}

	if opts.Format == "" {
		opts.Format = formatter.FormatMarkdown
	}
	if opts.Format, err = formatter.ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("reel_export_%d", now.Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{OutputDirectory: opts.OutputDir}
	e.sendProgress(prog, prepareUpdate(opts.OutputDir, len(stores)))

	var allRatings map[models.Key]int
	if e.ratings != nil {
		allRatings = e.ratings.All()
	}

	exports := make([]*formatter.CollectionExport, 0, len(stores))
	for _, store := range stores {
		exports = append(exports, &formatter.CollectionExport{
			Name:         store.Name(),
			ExportedAt:   now,
			Entries:      store.List(),
			Ratings:      allRatings,
			ImageBaseURL: opts.ImageBaseURL,
		})
	}

	var posters map[models.Key]string
	if opts.Posters {
		posters, err = e.downloadPosters(ctx, prog, exports, opts, result)
		if err != nil {
			return result, err
		}
	}

	manifest := &formatter.ExportManifest{
		ExportedAt: now,
		Format:     opts.Format,
		Posters:    result.Posters,
	}

	for i, export := range exports {
		file, err := formatter.WriteExport(export, opts.Format, opts.OutputDir, posters)
		if err != nil {
			result.Failures = append(result.Failures, formatter.ManifestFailed{Item: string(export.Name), Error: err.Error()})
			e.sendProgress(prog, exportFailedUpdate(i+1, len(exports), export.Name, err))
			continue
		}

		result.Files = append(result.Files, file)
		manifest.Collections = append(manifest.Collections, formatter.ManifestEntry{
			Name:   export.Name,
			File:   filepath.Base(file),
			Titles: len(export.Entries),
		})
		e.sendProgress(prog, exportCompletedUpdate(i+1, len(exports), export.Name, file, len(export.Entries)))
	}

	manifest.Failures = result.Failures
	manifestPath, err := formatter.WriteExportManifest(manifest, opts.OutputDir)
	if err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	e.sendProgress(prog, manifestUpdate(manifestPath))

	e.logger.Info("export finished",
		"dir", opts.OutputDir, "files", len(result.Files), "posters", result.Posters, "failures", len(result.Failures))
	return result, nil
}

// downloadPosters fetches one poster per distinct title and returns the local paths,
// relative to the export directory.
func (e *Engine) downloadPosters(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	exports []*formatter.CollectionExport,
	opts ExportOpts,
	result *ExportResult,
) (map[models.Key]string, error) {
	var jobs []posterJob
	seen := make(map[models.Key]bool)
	for _, export := range exports {
		for _, entry := range export.Entries {
			u := export.PosterURL(entry.Item)
			if u == "" || seen[entry.Key] {
				continue
			}
			seen[entry.Key] = true
			jobs = append(jobs, posterJob{key: entry.Key, title: entry.Item.DisplayTitle(), url: u})
		}
	}

	posters := make(map[models.Key]string, len(jobs))
	if len(jobs) == 0 {
		return posters, nil
	}

	dir := filepath.Join(opts.OutputDir, PosterDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create poster directory: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	var (
		mu        sync.Mutex
		completed int
	)
	record := func(job posterJob, rel string, err error) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if err != nil {
			result.Failures = append(result.Failures, formatter.ManifestFailed{Item: string(job.key), Error: err.Error()})
		} else {
			posters[job.key] = rel
			result.Posters++
		}
		e.sendProgress(prog, posterUpdate(completed, len(jobs), job.title, err))
	}

	p := pool.New().WithMaxGoroutines(opts.NumWorkers).WithContext(ctx)
	for _, job := range jobs {
		p.Go(func(ctx context.Context) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}

			data, err := formatter.DownloadImage(ctx, e.client, job.url)
			if err != nil {
				record(job, "", err)
				return nil
			}

			name := posterFileName(job.key, job.url)
			if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
				record(job, "", fmt.Errorf("failed to write poster: %w", err))
				return nil
			}
			record(job, path.Join(PosterDir, name), nil)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return posters, fmt.Errorf("poster download interrupted: %w", err)
	}
	return posters, nil
}

// posterFileName derives a file name from the key and the URL's extension.
func posterFileName(key models.Key, rawURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if x := path.Ext(u.Path); x != "" {
			ext = x
		}
	}
	return unsafeFileChars.ReplaceAllString(string(key), "_") + ext
}
