package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/reel/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the storage database and runs migrations, or reverts the
// latest one with --rollback.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			r.logger.Warn("failed to load config, using current settings", "error", err)
		} else {
			config = loaded
		}
	}

	switch strings.ToLower(config.Storage.Driver) {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("%w: storage driver %q does not use a database", shared.ErrInvalidConfig, config.Storage.Driver)
	}

	path := config.Storage.Path
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Storage.MaxOpenConns, config.Storage.MaxIdleConns)

	if cmd.Bool("rollback") {
		mig, err := shared.RollbackMigration(db)
		if err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}
		r.logger.Info("rolled back migration", "version", mig.Version, "name", mig.Name)
		return r.writePlain("✓ Rolled back migration %04d_%s\n", mig.Version, mig.Name)
	}

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Database ready at %s (schema %04d, %d applied)\n", path, version, applied)
}

// SetupConfig writes the default configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace config file: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set tmdb.api_key (or %s in .env)\n", shared.EnvTMDBAPIKey)
	r.writePlain("2. Run 'reel setup database' to prepare storage\n")
	return nil
}
