package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/app"
	"eventfinder/internal/calendar"
	"eventfinder/internal/config"
	"eventfinder/internal/gateway"
	"eventfinder/internal/guard"
	"eventfinder/internal/logging"
	"eventfinder/internal/model"
	"eventfinder/internal/server"
)

// open builds the client and restores the stored session. A stored token
// the backend rejects only costs the signed-in state.
func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := a.Session.LoadStoredSession(ctx); err != nil {
		logger.Warn("stored session not restored", "err", err)
	}
	return a, nil
}

func serveCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(a.Config.GinMode)
	srv := server.NewHTTPServer(a.Config.Port, server.NewRouter(a))
	a.Log.Info("view server listening", "port", a.Config.Port, "api", a.Config.APIURL)
	return server.Run(ctx, srv)
}

func loginCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("-u and -p are required")
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if guard.GuestOnly(a.Session.State()) == guard.RedirectHome {
		return fmt.Errorf("already signed in as %s; run 'eventfinder logout' first", a.Session.State().User.Username)
	}
	if err := a.Session.Login(ctx, model.Credentials{Username: *username, Password: *password}); err != nil {
		return describe(err)
	}
	fmt.Printf("Signed in as %s.\n", a.Session.State().User.Username)
	return nil
}

func registerCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	username := fs.String("u", "", "username")
	email := fs.String("e", "", "email address")
	password := fs.String("p", "", "password")
	interests := fs.String("interests", "", "comma-separated interests")
	location := fs.String("location", "", "home location")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" || *password == "" {
		return errors.New("-u, -e and -p are required")
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if guard.GuestOnly(a.Session.State()) == guard.RedirectHome {
		return errors.New("already signed in; run 'eventfinder logout' first")
	}
	in := model.RegisterInput{
		Username: *username,
		Email:    *email,
		Password: *password,
		Profile:  &model.Profile{Interests: *interests, Location: *location},
	}
	if err := a.Session.Register(ctx, in); err != nil {
		return describe(err)
	}
	fmt.Println("Account created. Sign in with 'eventfinder login'.")
	return nil
}

func logoutCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Session.Logout(ctx); err != nil {
		return describe(err)
	}
	fmt.Println("Signed out.")
	return nil
}

func whoamiCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireUser(a); err != nil {
		return err
	}
	return printJSON(os.Stdout, a.Session.State().User)
}

func eventsCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	location := fs.String("location", "", "location substring")
	tags := fs.String("tags", "", "comma-separated tags, any match")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Events.List(ctx, filters(*location, *tags))
	if err != nil {
		return describe(err)
	}
	if len(items) == 0 {
		fmt.Println("No events found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tNAME\tLOCATION\tTAGS")
	for _, ev := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", ev.ID, ev.Date, ev.Time, ev.Name, ev.Location, ev.Tags)
	}
	return tw.Flush()
}

func eventCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	id := fs.Int64("id", 0, "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id must be a positive integer")
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := a.Events.Get(ctx, *id)
	if err != nil {
		return describe(err)
	}
	return printJSON(os.Stdout, ev)
}

func createEventCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var in model.EventInput
	fs.StringVar(&in.Name, "name", "", "event name")
	fs.StringVar(&in.Description, "description", "", "description")
	fs.StringVar(&in.Date, "date", "", "date, YYYY-MM-DD")
	fs.StringVar(&in.Time, "time", "", "start time, HH:MM")
	fs.StringVar(&in.Location, "location", "", "location")
	fs.StringVar(&in.Tags, "tags", "", "comma-separated tags")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := (model.Event{Date: in.Date, Time: in.Time}).StartsAt(time.Local); err != nil {
		return errors.New("-date must be YYYY-MM-DD and -time HH:MM")
	}

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireUser(a); err != nil {
		return err
	}
	ev, err := a.Events.Create(ctx, in)
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Created event %d.\n", ev.ID)
	return nil
}

func profileCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	interests := fs.String("interests", "", "comma-separated interests")
	location := fs.String("location", "", "home location")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var patch model.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interests":
			patch.Interests = interests
		case "location":
			patch.Location = location
		}
	})

	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireUser(a); err != nil {
		return err
	}
	if patch.Interests != nil || patch.Location != nil {
		if err := a.Session.UpdateProfile(ctx, patch); err != nil {
			return describe(err)
		}
	}
	return printJSON(os.Stdout, a.Session.State().User)
}

func exportCommand(ctx context.Context, fs *flag.FlagSet, args []string) error {
	location := fs.String("location", "", "location substring")
	tags := fs.String("tags", "", "comma-separated tags, any match")
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Events.List(ctx, filters(*location, *tags))
	if err != nil {
		return describe(err)
	}
	data, skipped, err := calendar.Export(items, time.Local)
	if err != nil {
		return err
	}
	if skipped > 0 {
		a.Log.Warn("events without a usable date skipped", slog.Int("skipped", skipped))
	}

	if *output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d events to %s.\n", len(items)-skipped, *output)
	return nil
}

func requireUser(a *app.App) error {
	if guard.Protected(a.Session.State()) != guard.Allow {
		return errors.New("not signed in; run 'eventfinder login' first")
	}
	return nil
}

func filters(location, tags string) model.EventFilters {
	f := model.EventFilters{Location: strings.TrimSpace(location)}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	return f
}

// describe expands a backend rejection with its field messages.
func describe(err error) error {
	f := gateway.AsFailure(err)
	if len(f.Fields) == 0 {
		return f
	}
	var b strings.Builder
	b.WriteString(f.Detail)
	for field, msgs := range f.Fields {
		if field == "non_field_errors" {
			continue
		}
		fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(msgs, " "))
	}
	return errors.New(b.String())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
