package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/failstore"
)

var errReplayArgs = errors.New("replay needs at least one entry file or directory")

func replayCmd(a *app) *Command {
	c := newCommand("replay")
	c.Args = "<path>..."
	c.Short = "Re-run persisted failures"
	c.Long = `Rebuild each persisted failure from its recorded input and verify it again.

A directory argument replays every entry below it, oldest first. Prints one
line per entry. Exits 1 if any entry still fails verification.`
	c.Exec = func(_ context.Context, o *IO, args []string) error {
		if len(args) == 0 {
			return errReplayArgs
		}

		paths, err := expandEntries(a.global.workDir, args)
		if err != nil {
			return err
		}

		failing := 0

		for _, path := range paths {
			failed, err := a.replayOne(o, path)
			if err != nil {
				return err
			}

			if failed {
				failing++
			}
		}

		o.Printf("%d of %d entries still fail\n", failing, len(paths))

		if failing > 0 {
			return &exitError{code: 1}
		}

		return nil
	}

	return c
}

// expandEntries resolves relative args against workDir and replaces
// directories with the entries below them.
func expandEntries(workDir string, args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		if workDir != "" && !filepath.IsAbs(arg) {
			arg = filepath.Join(workDir, arg)
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		found, err := failstore.List(arg)
		if err != nil {
			return nil, err
		}

		paths = append(paths, found...)
	}

	return paths, nil
}

// replayOne reports whether the entry at path still fails verification.
func (a *app) replayOne(o *IO, path string) (bool, error) {
	entry, err := failstore.Load(path)
	if err != nil {
		return false, err
	}

	c, err := a.registry.Replay(entry.Generator, entry.Input)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	runErr := c.Run()

	var verr *circuit.VerifyError

	switch {
	case runErr == nil:
		o.Printf("%s: ok\n", path)
		return false, nil
	case errors.As(runErr, &verr) && verr.Undersized():
		o.Printf("%s: FAIL (undersized) %v\n", path, runErr)
		return true, nil
	case errors.As(runErr, &verr):
		o.Printf("%s: FAIL %v\n", path, runErr)
		return true, nil
	default:
		return false, fmt.Errorf("%s: %w", path, runErr)
	}
}
