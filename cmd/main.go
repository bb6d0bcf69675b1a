package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/ui"
	"github.com/urfave/cli/v3"
)

func main() {
	config := shared.DefaultConfig()
	configPath := "config.toml"
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		}
	}
	shared.ApplyEnv(config, ".env")

	logger := shared.NewConfiguredLogger(config.Log)
	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "reel",
		Usage:    "Keep favorites, a watch-later list and ratings for movies and TV",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Debug("command failed", "error", err)
		os.Exit(exitCode(err, os.Stderr))
	}
}

// exitCode reports err on w and returns the process exit status.
func exitCode(err error, w io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrUnauthenticated):
		fmt.Fprintln(w, ui.SignInHint)
		return 1
	default:
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}
}
