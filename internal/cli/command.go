package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one zkfuzz subcommand.
type Command struct {
	Name string
	// Args describes positional arguments in help output, e.g. "<path>...".
	Args  string
	Short string
	// Long is shown by "zkfuzz <cmd> --help"; Short is used when empty.
	Long  string
	Flags *flag.FlagSet
	Exec  func(ctx context.Context, o *IO, args []string) error
}

// newCommand returns a command with an empty flag set named after it.
func newCommand(name string) *Command {
	return &Command{Name: name, Flags: flag.NewFlagSet(name, flag.ContinueOnError)}
}

func (c *Command) synopsis() string {
	s := c.Name
	if c.Flags.HasFlags() {
		s += " [flags]"
	}

	if c.Args != "" {
		s += " " + c.Args
	}

	return s
}

// HelpLine is the command's entry in the global usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.synopsis(), c.Short)
}

// PrintHelp prints "zkfuzz <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Printf("Usage: zkfuzz %s\n\n%s\n", c.synopsis(), cmp.Or(c.Long, c.Short))

	if c.Flags.HasFlags() {
		o.Printf("\nFlags:\n%s", c.Flags.FlagUsages())
	}
}

// Run parses args and executes the command. Returns exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o)
		return 0
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())

	var exit *exitError

	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		o.ErrPrintln("error:", err)
		return 1
	}
}

// exitError carries a non-zero exit code for a command that has already
// printed its own report.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
