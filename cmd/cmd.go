// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/reel/internal/models"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func kindFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "kind",
		Aliases: []string{"k"},
		Usage:   "Title kind: movie or tv",
		Value:   value,
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output style: table, text or json (default: table on a terminal, text otherwise)",
	}
}

func pageFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "page",
		Usage: "Result page, starting at 1",
		Value: 1,
	}
}

func sortFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "sort",
		Usage: "Sort order: a-z, z-a, rating-high or rating-low",
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage: "Initialize the storage database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "rollback", Usage: "Revert the most recent migration"},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml populated with defaults",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Sign in with an e-mail address (local session, no password)",
		Arguments: []cli.Argument{&cli.StringArg{Name: "email"}},
		Action:    r.Login,
	}
}

func signupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "signup",
		Usage:     "Create a local account and sign in",
		Arguments: []cli.Argument{&cli.StringArg{Name: "email"}},
		Action:    r.Signup,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out",
		Action: r.Logout,
	}
}

func whoamiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the signed-in user",
		Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
		Action: r.WhoAmI,
	}
}

func profileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Update the display name or avatar of the signed-in user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.StringFlag{Name: "avatar", Usage: "Avatar image URL"},
		},
		Action: r.Profile,
	}
}

func popularCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "popular",
		Usage: "List popular titles",
		Flags: []cli.Flag{
			kindFlag("movie"),
			pageFlag(),
			&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Only titles in this genre (name or id)"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Only titles whose name contains this text"},
			sortFlag(),
			outputFlag(),
		},
		Action: r.Popular,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search titles by name",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags:     []cli.Flag{kindFlag(""), pageFlag(), sortFlag(), outputFlag()},
		Action:    r.Search,
	}
}

func genresCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "genres",
		Usage:  "List genres",
		Flags:  []cli.Flag{kindFlag("movie"), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
		Action: r.Genres,
	}
}

func showCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show details for a title",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{kindFlag("movie"), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
		Action:    r.Show,
	}
}

func openCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open a title page or its trailer in the browser",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			kindFlag("movie"),
			&cli.BoolFlag{Name: "trailer", Aliases: []string{"t"}, Usage: "Open the YouTube trailer"},
		},
		Action: r.Open,
	}
}

func collectionCommand(r *Runner, name models.CollectionName, command string, aliases ...string) *cli.Command {
	idArgs := []cli.Argument{&cli.StringArg{Name: "id"}}
	return &cli.Command{
		Name:    command,
		Aliases: aliases,
		Usage:   "Manage " + name.Label(),
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List titles in " + name.Label(),
				Flags:   []cli.Flag{sortFlag(), outputFlag()},
				Action:  r.CollectionList(name),
			},
			{
				Name:      "add",
				Usage:     "Add a title to " + name.Label(),
				Arguments: idArgs,
				Flags: []cli.Flag{
					kindFlag("movie"),
					&cli.StringFlag{Name: "title", Usage: "Add without looking the title up"},
				},
				Action: r.CollectionAdd(name),
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a title from " + name.Label(),
				Arguments: idArgs,
				Action:    r.CollectionRemove(name),
			},
			{
				Name:      "toggle",
				Usage:     "Add the title when absent, remove it when present",
				Arguments: idArgs,
				Flags: []cli.Flag{
					kindFlag("movie"),
					&cli.StringFlag{Name: "title", Usage: "Add without looking the title up"},
				},
				Action: r.CollectionToggle(name),
			},
		},
	}
}

func favoritesCommand(r *Runner) *cli.Command {
	return collectionCommand(r, models.Favorites, "favorites", "fav")
}

func watchLaterCommand(r *Runner) *cli.Command {
	return collectionCommand(r, models.WatchLater, "watch-later", "later", "wl")
}

func rateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate a title from 1 to 10 stars",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
			&cli.StringArg{Name: "stars"},
		},
		Action: r.Rate,
	}
}

func unrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "unrate",
		Usage:     "Clear the rating of a title",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Action:    r.Unrate,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export collections to files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "csv, markdown, text or json (default from config)"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Output directory (default: reel_export_{epoch})"},
			&cli.StringSliceFlag{Name: "collection", Usage: "Collection to export; repeatable (default: all)"},
			&cli.BoolFlag{Name: "posters", Usage: "Download poster images"},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent poster downloads (default from config)"},
		},
		Action: r.Export,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a browser localStorage dump (JSON object)",
		Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "collection", Usage: "Collection to import; repeatable (default: all)"},
		},
		Action: r.Import,
	}
}

// tuiCommand returns the top-level TUI command for interactive browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI",
		Action:  r.TUI,
	}
}
