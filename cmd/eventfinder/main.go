package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := NewRegistry()
	registerCommands(registry)

	if err := registry.Execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func registerCommands(r *Registry) {
	r.Register(&Command{Name: "serve", Description: "Run the view server", Usage: "eventfinder serve", Run: serveCommand})
	r.Register(&Command{Name: "login", Description: "Sign in and store the token", Usage: "eventfinder login -u <username> -p <password>", Run: loginCommand})
	r.Register(&Command{Name: "register", Description: "Create an account", Usage: "eventfinder register -u <username> -e <email> -p <password> [-interests ...] [-location ...]", Run: registerCommand})
	r.Register(&Command{Name: "logout", Description: "Forget the stored token", Usage: "eventfinder logout", Run: logoutCommand})
	r.Register(&Command{Name: "whoami", Description: "Show the signed-in user", Usage: "eventfinder whoami", Run: whoamiCommand})
	r.Register(&Command{Name: "events", Description: "List events", Usage: "eventfinder events [-location ...] [-tags a,b]", Run: eventsCommand})
	r.Register(&Command{Name: "event", Description: "Show one event", Usage: "eventfinder event -id <id>", Run: eventCommand})
	r.Register(&Command{Name: "create-event", Description: "Publish an event", Usage: "eventfinder create-event -name ... -description ... -date YYYY-MM-DD -time HH:MM -location ... [-tags a,b]", Run: createEventCommand})
	r.Register(&Command{Name: "profile", Description: "Show or update the profile", Usage: "eventfinder profile [-interests ...] [-location ...]", Run: profileCommand})
	r.Register(&Command{Name: "export", Description: "Export events as iCalendar", Usage: "eventfinder export [-location ...] [-tags a,b] [-o file]", Run: exportCommand})
}
