package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// Command is one eventfinder subcommand.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(ctx context.Context, fs *flag.FlagSet, args []string) error
}

func (c *Command) NewFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\nUSAGE:\n    %s\n\nFLAGS:\n", c.Description, c.Usage)
		fs.PrintDefaults()
	}
	return fs
}

type Registry struct {
	commands map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

func (r *Registry) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		r.PrintHelp(os.Stderr)
		return fmt.Errorf("no command specified")
	}
	switch args[0] {
	case "help", "-h", "--help":
		r.PrintHelp(os.Stdout)
		return nil
	}
	cmd, ok := r.commands[args[0]]
	if !ok {
		r.PrintHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.Run(ctx, cmd.NewFlagSet(), args[1:])
}

func (r *Registry) PrintHelp(w io.Writer) {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "eventfinder - discover and publish local events\n\nCOMMANDS:\n")
	for _, name := range names {
		fmt.Fprintf(w, "    %-14s %s\n", name, r.commands[name].Description)
	}
	fmt.Fprintf(w, "\nRun 'eventfinder <command> -h' for command flags.\n")
}
