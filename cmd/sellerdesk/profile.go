package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/internal/appcli"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	pbclient "github.com/design2deploy2025/inventory-management-sub000/internal/pocketbase"
)

func cmdProfile(args []string) error {
	sub, rest := subcommand(args, "show")
	switch sub {
	case "show":
		return profileShow(rest)
	case "set":
		return profileSet(rest)
	case "logo":
		return profileLogo(rest)
	default:
		return fmt.Errorf("unknown profile subcommand: %s (show | set | logo)", sub)
	}
}

func profileShow(args []string) error {
	c := newCommand("profile show")
	if err := c.parse(args); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	prof, err := app.Profile(context.Background())
	if err != nil {
		return err
	}
	printProfile(app, prof)
	return nil
}

func printProfile(app *appcli.App, p dashboard.Profile) {
	w := table()
	row := func(k, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", k, v)
	}
	row("Business", p.BusinessName)
	row("Owner", p.OwnerName)
	row("Email", p.Email)
	row("Phone", p.Phone)
	row("Instagram", p.Instagram)
	row("WhatsApp", p.WhatsApp)
	row("Address", p.Address)
	logo := p.Logo
	if logo != "" && app.Client != nil {
		logo = app.Client.FileURL(dashboard.CollectionProfiles, p.ID, p.Logo)
	}
	row("Logo", logo)
	_ = w.Flush()
}

func profileSet(args []string) error {
	c := newCommand("profile set")
	fields := map[string]*string{}
	for _, name := range []string{"business", "owner", "email", "phone", "instagram", "whatsapp", "address"} {
		fields[name] = c.fs.String(name, "", "profile "+name)
	}
	if err := c.parse(args); err != nil {
		return err
	}
	set := func(name string, dst *string) {
		if v := strings.TrimSpace(*fields[name]); v != "" {
			*dst = v
		}
	}

	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		owner := app.Dash.Principal()
		prof, err := app.Dash.Profiles.Ensure(ctx, owner)
		if err != nil {
			return err
		}
		set("business", &prof.BusinessName)
		set("owner", &prof.OwnerName)
		set("email", &prof.Email)
		set("phone", &prof.Phone)
		set("instagram", &prof.Instagram)
		set("whatsapp", &prof.WhatsApp)
		set("address", &prof.Address)
		saved, err := app.Dash.Profiles.Save(ctx, owner, prof)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Profile saved")
		printProfile(app, saved)
		return nil
	})
}

func profileLogo(args []string) error {
	file, rest := subcommand(args, "")
	c := newCommand("profile logo")
	if err := c.parse(rest); err != nil {
		return err
	}
	if file == "" {
		return errors.New("usage: sellerdesk profile logo FILE")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read logo: %w", err)
	}
	if _, err := dashboard.CheckLogo(filepath.Base(file), data); err != nil {
		return err
	}

	return withOnline(c, func(ctx context.Context, app *appcli.App) error {
		prof, err := app.Dash.Profiles.UploadLogo(ctx, app.Dash.Principal(), filepath.Base(file), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Logo uploaded: %s\n", app.Client.FileURL(dashboard.CollectionProfiles, prof.ID, prof.Logo))
		return nil
	})
}

func cmdContact(args []string) error {
	c := newCommand("contact")
	var m pbclient.ContactMessage
	c.fs.StringVar(&m.Name, "name", "", "your name")
	c.fs.StringVar(&m.Email, "email", "", "reply address")
	c.fs.StringVar(&m.Message, "message", "", "message text")
	if err := c.parse(args); err != nil {
		return err
	}
	if c.rt.Offline {
		return errors.New("contact needs the network; drop --offline")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	app, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	if err := app.Client.SendContact(ctx, m); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Message sent. We'll reply by email.")
	return nil
}
