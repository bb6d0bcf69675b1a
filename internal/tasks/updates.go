package tasks

import (
	"fmt"

	"github.com/desertthunder/reel/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Prepare Phase = iota
	DownloadPosters
	ExportCollection
	WriteManifest
	ImportCollection
	ImportRatings
)

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case DownloadPosters:
		return "download_posters"
	case ExportCollection:
		return "export_collection"
	case WriteManifest:
		return "write_manifest"
	case ImportCollection:
		return "import_collection"
	case ImportRatings:
		return "import_ratings"
	default:
		return ""
	}
}

func prepareUpdate(dir string, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prepare,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Exporting %d collection(s) to %s...", total, dir),
	}
}

func posterUpdate(step, total int, title string, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   DownloadPosters,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ poster %s: %v", step, total, title, err),
		}
	}
	return ProgressUpdate{
		Phase:   DownloadPosters,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] poster %s", step, total, title),
	}
}

func exportCompletedUpdate(step, total int, name models.CollectionName, path string, titles int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCollection,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d titles) → %s", step, total, name.Label(), titles, path),
		Data:    path,
	}
}

func exportFailedUpdate(step, total int, name models.CollectionName, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportCollection,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name.Label(), err),
	}
}

func manifestUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Manifest written: %s", path),
		Data:    path,
	}
}

func importCollectionUpdate(step, total int, name models.CollectionName, source string, added int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportCollection,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s ← %s: %d new", step, total, name.Label(), source, added),
	}
}

func importRatingsUpdate(imported, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportRatings,
		Step:    imported,
		Total:   total,
		Message: fmt.Sprintf("Ratings: %d of %d imported", imported, total),
	}
}
