// Package cli implements the zkfuzz command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/zkfuzz/internal/config"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/generators"
)

// app is the state shared by every command of one invocation.
type app struct {
	env      map[string]string
	sigCh    <-chan os.Signal
	exit     func(code int)
	global   globalFlags
	registry *fuzz.Registry
}

type globalFlags struct {
	workDir    string
	configPath string
	overrides  config.Partial
}

// Run is the main entry point. Returns exit code.
//
// sigCh delivers termination signals to long-running commands; it may be
// nil. A second signal during "run" exits the process with code 130.
func Run(out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	registry, err := fuzz.NewRegistry(generators.All()...)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	a := &app{env: env, sigCh: sigCh, exit: os.Exit, registry: registry}
	commands := a.commands()

	gf := flag.NewFlagSet("zkfuzz", flag.ContinueOnError)
	gf.SetInterspersed(false)
	gf.SetOutput(&strings.Builder{})
	gf.StringVarP(&a.global.workDir, "cwd", "C", "", "Run as if started in `dir`")
	gf.StringVarP(&a.global.configPath, "config", "c", "", "Use specified config `file`")
	logLevel := gf.String("log-level", "", "Log `level` (debug, info, warn, error)")
	logFormat := gf.String("log-format", "", "Log `format` (text, json)")

	if len(args) == 0 {
		args = []string{"zkfuzz"}
	}

	err = gf.Parse(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(o, gf, commands)
			return 0
		}

		o.ErrPrintln("error:", err)
		printUsage(o, gf, commands)

		return 1
	}

	if gf.Changed("log-level") {
		a.global.overrides.LogLevel = logLevel
	}

	if gf.Changed("log-format") {
		a.global.overrides.LogFormat = logFormat
	}

	rest := gf.Args()
	if len(rest) == 0 {
		printUsage(o, gf, commands)
		return 0
	}

	for _, cmd := range commands {
		if cmd.Name == rest[0] {
			return cmd.Run(context.Background(), o, rest[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", rest[0])
	printUsage(o, gf, commands)

	return 1
}

func (a *app) commands() []*Command {
	return []*Command{
		runCmd(a),
		listCmd(a),
		replayCmd(a),
		printConfigCmd(a),
	}
}

// loadConfig loads the layered config. Command overrides win over the
// global flags.
func (a *app) loadConfig(overrides config.Partial) (config.Config, error) {
	return config.Load(config.LoadInput{
		WorkDirOverride: a.global.workDir,
		ConfigPath:      a.global.configPath,
		Overrides:       a.global.overrides.With(overrides),
		Env:             a.env,
	})
}

func printUsage(o *IO, global *flag.FlagSet, commands []*Command) {
	o.Println(`zkfuzz - continuous randomized testing of the circuit verifier

Usage: zkfuzz [options] <command> [args]

Options:`)
	o.Printf("%s", global.FlagUsages())
	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}
}
