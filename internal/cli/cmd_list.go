package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/calvinalkan/zkfuzz/internal/fuzz"
)

func listCmd(a *app) *Command {
	c := newCommand("list")
	c.Short = "List registered generators"
	long := c.Flags.BoolP("long", "l", false, "Also show whether each generator supports replay")

	c.Exec = func(_ context.Context, o *IO, _ []string) error {
		if !*long {
			for _, name := range a.registry.Names() {
				o.Println(name)
			}

			return nil
		}

		tw := tabwriter.NewWriter(o.Out(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tREPLAY")

		for i := range a.registry.Len() {
			g := a.registry.At(i)
			_, replays := g.(fuzz.Replayer)
			_, _ = fmt.Fprintf(tw, "%s\t%t\n", g.Name(), replays)
		}

		return tw.Flush()
	}

	return c
}
