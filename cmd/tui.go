package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/ratings"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for browsing and curating titles.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.catalog()
	if err != nil {
		return err
	}

	// Logs go to a file so they do not interfere with rendering.
	logCfg := r.config.Log
	if logCfg.File == "" {
		logCfg.File = filepath.Join(os.TempDir(), "reel-tui.log")
	}
	r.SetLogger(shared.NewConfiguredLogger(logCfg))

	notifier := ui.NewNotifier()
	c, err := r.openCore(ctx, coreOption{
		collection: []collections.Option{
			collections.WithChangeHandler(notifier.Changed),
			collections.WithWarningHandler(notifier.Warn),
		},
		ratings: []ratings.Option{
			ratings.WithChangeHandler(notifier.Changed),
			ratings.WithWarningHandler(notifier.Warn),
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	model := ui.NewModel(ctx, ui.Deps{
		Provider:   provider,
		Favorites:  c.favorites,
		WatchLater: c.watchLater,
		Ratings:    c.ratings,
		Guard:      c.sessions,
		Sessions:   c.sessions,
		Notifier:   notifier,
		Sorter:     r.sorter(),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
