// ABOUTME: init, login, signup, logout and status commands.
// ABOUTME: Sessions are persisted sealed in the local store between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/internal/config"
	pbclient "github.com/design2deploy2025/inventory-management-sub000/internal/pocketbase"
)

func cmdInit(args []string) error {
	c := newCommand("init")
	force := c.fs.Bool("force", false, "overwrite existing config")
	if err := c.parse(args); err != nil {
		return err
	}

	if config.Exists(c.rt.ConfigPath) {
		if !*force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", c.rt.ConfigPath)
		}
		if err := os.Remove(c.rt.ConfigPath); err != nil {
			return fmt.Errorf("remove old config: %w", err)
		}
	}

	cfg, err := config.Init(c.rt.ConfigPath, c.rt.ServerURL, dashboard.NewDeviceKey())
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Config written to %s\n", c.rt.ConfigPath)
	if cfg.Server.URL == "" {
		fmt.Fprintln(stdout, "No server set yet; pass --server or set SELLERDESK_SERVER_URL.")
	} else {
		fmt.Fprintf(stdout, "Server: %s\n", cfg.Server.URL)
	}
	return nil
}

// credentials reads --email and --password, falling back to
// SELLERDESK_PASSWORD so the password stays out of shell history.
func credentials(c *command, args []string) (string, string, error) {
	email := c.fs.String("email", "", "account email")
	password := c.fs.String("password", "", "account password (or SELLERDESK_PASSWORD)")
	if err := c.parse(args); err != nil {
		return "", "", err
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("SELLERDESK_PASSWORD")
	}
	if strings.TrimSpace(*email) == "" || pw == "" {
		return "", "", errors.New("--email and --password required")
	}
	return strings.TrimSpace(*email), pw, nil
}

func cmdLogin(args []string) error {
	return authenticate("login", args, func(ctx context.Context, s *dashboard.Session, email, pw string) (dashboard.Identity, error) {
		return s.SignIn(ctx, email, pw)
	})
}

func cmdSignup(args []string) error {
	return authenticate("signup", args, func(ctx context.Context, s *dashboard.Session, email, pw string) (dashboard.Identity, error) {
		return s.SignUp(ctx, email, pw)
	})
}

func authenticate(name string, args []string, fn func(context.Context, *dashboard.Session, string, string) (dashboard.Identity, error)) error {
	c := newCommand(name)
	email, pw, err := credentials(c, args)
	if err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	if app.Offline() {
		return errors.New(name + " needs the network")
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := app.Session.Start(ctx); err != nil {
		return err
	}
	id, err := fn(ctx, app.Session, email, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Signed in as %s (%s)\n", id.Email, id.Principal)
	return nil
}

func cmdLogout(args []string) error {
	c := newCommand("logout")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	sess, err := app.Store.LoadSession(ctx)
	if errors.Is(err, dashboard.ErrAuth) {
		fmt.Fprintln(stdout, "Not logged in")
		return nil
	}
	if err != nil {
		return err
	}

	if app.Offline() {
		if err := app.Store.ClearSession(ctx); err != nil {
			return err
		}
	} else {
		if err := app.Session.Start(ctx); err != nil {
			return err
		}
		if err := app.Session.SignOut(ctx); err != nil {
			return err
		}
	}
	if err := app.Store.ClearSnapshots(ctx, sess.Principal); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Logged out; cached data cleared")
	return nil
}

func cmdStatus(args []string) error {
	c := newCommand("status")
	if err := c.parse(args); err != nil {
		return err
	}
	c.rt.Offline = true
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	fmt.Fprintf(stdout, "Config:  %s\n", c.rt.ConfigPath)
	server := app.Config.Server.URL
	if server == "" {
		server = "(not set)"
	}
	fmt.Fprintf(stdout, "Server:  %s\n", server)
	fmt.Fprintf(stdout, "Store:   %s\n", app.Config.Store.Path)

	sess, err := app.Store.LoadSession(ctx)
	if err != nil {
		fmt.Fprintln(stdout, "Session: signed out")
		return nil
	}
	fmt.Fprintf(stdout, "Session: %s (%s)\n", sess.Email, sess.Principal)
	if exp, err := pbclient.TokenExpiry(sess.Token); err == nil {
		state := "valid"
		if time.Now().After(exp) {
			state = "expired"
		}
		fmt.Fprintf(stdout, "Token:   %s until %s\n", state, exp.Local().Format(time.RFC3339))
	}
	for _, coll := range []string{dashboard.CollectionOrders, dashboard.CollectionCustomers, dashboard.CollectionProducts} {
		rows, saved, err := app.Store.LoadSnapshot(ctx, coll, sess.Principal)
		if err != nil {
			continue
		}
		fmt.Fprintf(stdout, "Cached:  %-9s %4d rows at %s\n", coll, len(rows), saved.Local().Format(time.RFC3339))
	}
	return nil
}
