package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/collections"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/ratings"
	"github.com/desertthunder/reel/internal/services"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/desertthunder/reel/internal/storage"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	provider   services.Provider
	storage    storage.Storage
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	opener     shared.Opener
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Provider   services.Provider // built from Config when nil
	Storage    storage.Storage   // opened from Config when nil, and then owned by the runner
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Opener     shared.Opener
	Now        func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Opener == nil {
		opts.Opener = shared.OpenBrowser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		provider:   opts.Provider,
		storage:    opts.Storage,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		opener:     opts.Opener,
		now:        opts.Now,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand,
		loginCommand, signupCommand, logoutCommand, whoamiCommand, profileCommand,
		popularCommand, searchCommand, genresCommand, showCommand, openCommand,
		favoritesCommand, watchLaterCommand, rateCommand, unrateCommand,
		exportCommand, importCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// core is the opened collection state shared by commands.
type core struct {
	sessions   *auth.Sessions
	favorites  *collections.Store
	watchLater *collections.Store
	ratings    *ratings.Registry
	closers    []func() error
}

// coreOption customizes the stores before they are opened.
type coreOption struct {
	collection []collections.Option
	ratings    []ratings.Option
}

// openCore opens the session, both collections and the rating registry.
func (r *Runner) openCore(ctx context.Context, extra ...coreOption) (*core, error) {
	st := r.storage
	owned := false
	if st == nil {
		var err error
		if st, err = storage.Open(r.config.Storage, r.logger); err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		owned = true
	}

	warn := func(err error) {
		r.writePlain("warning: %v\n", err)
	}
	collOpts := []collections.Option{collections.WithLogger(r.logger), collections.WithWarningHandler(warn)}
	rateOpts := []ratings.Option{ratings.WithLogger(r.logger), ratings.WithWarningHandler(warn)}
	for _, o := range extra {
		collOpts = append(collOpts, o.collection...)
		rateOpts = append(rateOpts, o.ratings...)
	}

	c := &core{sessions: auth.NewSessions(st, auth.WithLogger(r.logger))}
	c.favorites = collections.New(models.Favorites, st, c.sessions, collOpts...)
	c.watchLater = collections.New(models.WatchLater, st, c.sessions, collOpts...)
	c.ratings = ratings.New(st, rateOpts...)

	type lifecycle struct {
		open  func(context.Context) error
		close func() error
	}
	for _, l := range []lifecycle{
		{c.sessions.Open, c.sessions.Close},
		{c.favorites.Open, c.favorites.Close},
		{c.watchLater.Open, c.watchLater.Close},
		{c.ratings.Open, c.ratings.Close},
	} {
		if err := l.open(ctx); err != nil {
			c.Close()
			if owned {
				st.Close()
			}
			return nil, err
		}
		c.closers = append(c.closers, l.close)
	}
	if owned {
		c.closers = append(c.closers, st.Close)
	}
	return c, nil
}

// Close flushes and closes everything in reverse order of opening.
func (c *core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// store returns the collection named name.
func (c *core) store(name models.CollectionName) *collections.Store {
	if name == models.WatchLater {
		return c.watchLater
	}
	return c.favorites
}

// catalog returns the metadata provider, building the TMDB client on first use.
func (r *Runner) catalog() (services.Provider, error) {
	if r.provider != nil {
		return r.provider, nil
	}
	client, err := services.NewTMDBClient(r.config.TMDB,
		services.WithHTTPClient(r.httpClient), services.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.provider = client
	return r.provider, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
