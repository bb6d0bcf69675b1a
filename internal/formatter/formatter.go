// package formatter provides functions to export collections to various formats (CSV, Markdown, plain text, JSON)
// and to render them as terminal tables
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat accepts format names and common file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt", "plain":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: export format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// CollectionExport is a collection snapshot with the ratings of its titles.
type CollectionExport struct {
	Name         models.CollectionName
	ExportedAt   time.Time
	Entries      []models.CollectionEntry
	Ratings      map[models.Key]int
	ImageBaseURL string
}

// Rating returns the rating for key; false means unrated.
func (e *CollectionExport) Rating(key models.Key) (int, bool) {
	v, ok := e.Ratings[key]
	return v, ok
}

// PosterURL returns the remote poster URL of item, or "".
func (e *CollectionExport) PosterURL(item models.CatalogItem) string {
	if item.PosterPath == "" {
		return ""
	}
	base := e.ImageBaseURL
	if base == "" {
		base = "https://image.tmdb.org/t/p"
	}
	return strings.TrimRight(base, "/") + "/w500/" + strings.TrimLeft(item.PosterPath, "/")
}

// ExportToCSV converts a collection to CSV with columns: Key, Title, Kind, Year, Score, Rating, Added, Poster
func ExportToCSV(export *CollectionExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Key", "Title", "Kind", "Year", "Score", "Rating", "Added", "Poster"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range export.Entries {
		rating := ""
		if v, ok := export.Rating(entry.Key); ok {
			rating = strconv.Itoa(v)
		}
		record := []string{
			string(entry.Key),
			entry.Item.Title,
			string(entry.Item.Kind),
			entry.Item.Year(),
			strconv.FormatFloat(entry.Item.VoteAverage, 'f', 1, 64),
			rating,
			formatAdded(entry.AddedAt),
			export.PosterURL(entry.Item),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a collection to Markdown. posters maps keys to local poster
// files; titles without one link the remote poster.
func ExportToMarkdown(export *CollectionExport, posters map[models.Key]string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.Name.Label()))
	buf.WriteString(fmt.Sprintf("**Titles**: %d\n", len(export.Entries)))
	if !export.ExportedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("**Exported**: %s\n", export.ExportedAt.UTC().Format(time.RFC3339)))
	}
	buf.WriteString("\n## Titles\n\n")

	for i, entry := range export.Entries {
		item := entry.Item
		year := ""
		if y := item.Year(); y != "" {
			year = fmt.Sprintf(" (%s)", y)
		}
		rating := ""
		if v, ok := export.Rating(entry.Key); ok {
			rating = fmt.Sprintf(" %s %d/10", models.Stars(v), v)
		}
		buf.WriteString(fmt.Sprintf("%d. **%s**%s%s\n", i+1, item.DisplayTitle(), year, rating))

		poster := posters[entry.Key]
		if poster == "" {
			poster = export.PosterURL(item)
		}
		if poster != "" {
			buf.WriteString(fmt.Sprintf("   ![%s](%s)\n", item.DisplayTitle(), poster))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a collection to plain text format
func ExportToText(export *CollectionExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Collection: %s\n", export.Name.Label()))
	buf.WriteString(fmt.Sprintf("Titles: %d\n\n", len(export.Entries)))

	for i, entry := range export.Entries {
		line := fmt.Sprintf("%d. %s", i+1, entry.Item.DisplayTitle())
		if y := entry.Item.Year(); y != "" {
			line += fmt.Sprintf(" (%s)", y)
		}
		if v, ok := export.Rating(entry.Key); ok {
			line += fmt.Sprintf(" [%d/10]", v)
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// collectionJSON is the JSON export shape.
type collectionJSON struct {
	Name       models.CollectionName    `json:"name"`
	ExportedAt time.Time                `json:"exported_at"`
	Entries    []models.CollectionEntry `json:"entries"`
	Ratings    map[models.Key]int       `json:"ratings"`
}

// ExportToJSON converts a collection to indented JSON. Ratings are limited to the
// collection's titles.
func ExportToJSON(export *CollectionExport) ([]byte, error) {
	entries := export.Entries
	if entries == nil {
		entries = []models.CollectionEntry{}
	}

	ratings := make(map[models.Key]int)
	for _, entry := range entries {
		if v, ok := export.Rating(entry.Key); ok {
			ratings[entry.Key] = v
		}
	}

	return shared.MarshalJSON(collectionJSON{
		Name:       export.Name,
		ExportedAt: export.ExportedAt.UTC(),
		Entries:    entries,
		Ratings:    ratings,
	}, true)
}

// Render encodes export in format.
func Render(export *CollectionExport, format Format, posters map[models.Key]string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export, posters)
	case FormatText:
		return ExportToText(export)
	case FormatJSON:
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: export format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport renders export into dir as "<collection><ext>" and returns the file path.
func WriteExport(export *CollectionExport, format Format, dir string, posters map[models.Key]string) (string, error) {
	data, err := Render(export, format, posters)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", export.Name, err)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	path := filepath.Join(dir, string(export.Name)+format.Extension())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ExportManifest summarizes one export run.
type ExportManifest struct {
	ExportedAt  time.Time        `json:"exported_at"`
	Format      Format           `json:"format"`
	Collections []ManifestEntry  `json:"collections"`
	Posters     int              `json:"posters"`
	Failures    []ManifestFailed `json:"failures,omitempty"`
}

// ManifestEntry records one written collection file.
type ManifestEntry struct {
	Name   models.CollectionName `json:"name"`
	File   string                `json:"file"`
	Titles int                   `json:"titles"`
}

// ManifestFailed records a failed item.
type ManifestFailed struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// ManifestFile is the manifest's file name inside the export directory.
const ManifestFile = "export_manifest.json"

// WriteExportManifest writes manifest into dir and returns its path.
func WriteExportManifest(manifest *ExportManifest, dir string) (string, error) {
	data, err := shared.MarshalJSON(manifest, true)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}

func formatAdded(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
