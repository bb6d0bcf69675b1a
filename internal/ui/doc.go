// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI shows three tabs:
//  1. [PopularTab] : Browse popular titles from the metadata provider, page by page
//  2. [FavoritesTab] : The favorites collection
//  3. [WatchLaterTab] : The watch-later collection
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Store change and warning callbacks flow through a [Notifier], so edits made by another process show up without a restart.
//
// Collection changes consult the access guard first and show a sign-in hint instead of mutating.
// Ratings are never gated.
//
// Keyboard navigation uses vim-style bindings (j/k, tab, f, w, x, 1-0, u, s, m, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
