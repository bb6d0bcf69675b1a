// Package tasks runs bulk operations over the personal collections with real-time progress reporting.
//
// # Core Operations
//
// [Engine] exposes two operations:
//
//  1. [Engine.Export] : Write collections to disk
//     - Renders each collection as CSV, Markdown, plain text or JSON
//     - Optionally downloads posters with a bounded, rate limited worker pool
//     - Writes export_manifest.json listing files and failures
//
//  2. [Engine.Import] : Migrate a browser localStorage dump
//     - Reads favorites, watchLater and the older watch_later_v1 key
//     - Reads movie_rating_* keys into the rating registry
//     - Keeps entries and ratings that already exist
//     - Fails without changes when nobody is signed in
//
// # Progress Reporting
//
// Both operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
