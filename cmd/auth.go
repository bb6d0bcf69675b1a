package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/reel/internal/auth"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"github.com/urfave/cli/v3"
)

// Login starts a local session for the given e-mail address.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	return r.startSession(ctx, cmd, (*auth.Sessions).Login)
}

// Signup is Login under another name; there is no account registry.
func (r *Runner) Signup(ctx context.Context, cmd *cli.Command) error {
	return r.startSession(ctx, cmd, (*auth.Sessions).Signup)
}

func (r *Runner) startSession(ctx context.Context, cmd *cli.Command, start func(*auth.Sessions, string) (*models.Session, error)) error {
	email := strings.TrimSpace(cmd.StringArg("email"))
	if email == "" {
		return fmt.Errorf("%w: email", shared.ErrMissingArgument)
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	session, err := start(c.sessions, email)
	if err != nil {
		return err
	}
	r.logger.Info("signed in", "email", session.Email)
	return r.writePlain("✓ Signed in as %s <%s>\n", session.DisplayName, session.Email)
}

// Logout clears the current session.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, ok := c.sessions.Current(); !ok {
		return r.writePlain("Not signed in\n")
	}
	if err := c.sessions.Logout(); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

// WhoAmI prints the signed-in user.
func (r *Runner) WhoAmI(ctx context.Context, cmd *cli.Command) error {
	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	session, ok := c.sessions.Current()
	if !ok {
		return shared.ErrUnauthenticated
	}

	if cmd.Bool("json") {
		return r.writeJSON(session, true)
	}
	r.writePlain("Name:   %s\n", session.DisplayName)
	r.writePlain("Email:  %s\n", session.Email)
	r.writePlain("Avatar: %s\n", session.AvatarURL)
	r.writePlain("Favorites: %d, Watch Later: %d, Rated: %d\n", c.favorites.Len(), c.watchLater.Len(), c.ratings.Len())
	return nil
}

// Profile updates the display name or avatar of the current session.
func (r *Runner) Profile(ctx context.Context, cmd *cli.Command) error {
	name, avatar := cmd.String("name"), cmd.String("avatar")
	if name == "" && avatar == "" {
		return fmt.Errorf("%w: --name or --avatar", shared.ErrMissingArgument)
	}

	c, err := r.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	session, err := c.sessions.UpdateProfile(name, avatar)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Profile updated: %s <%s>\n", session.DisplayName, session.Email)
}
