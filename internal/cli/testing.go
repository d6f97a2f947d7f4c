package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/calvinalkan/zkfuzz/internal/engine"
	"github.com/calvinalkan/zkfuzz/internal/failstore"
)

// CLI runs zkfuzz in-process against a private work directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
	// Signals, if set, is handed to long-running commands.
	Signals chan os.Signal
}

// NewCLI returns a CLI with a fresh temp work directory and an empty
// environment, so no user config is picked up.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{t: t, Dir: t.TempDir(), Env: map[string]string{}}
}

// Run executes "zkfuzz --cwd Dir args..." and returns stdout, stderr and the
// exit code.
func (r *CLI) Run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer

	argv := append([]string{"zkfuzz", "--cwd", r.Dir}, args...)
	code := Run(&stdout, &stderr, argv, r.Env, r.Signals)

	return stdout.String(), stderr.String(), code
}

// MustRun runs args, fails the test on a non-zero exit and returns trimmed
// stdout.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("zkfuzz %v: exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail runs args, fails the test on a zero exit and returns trimmed
// stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("zkfuzz %v succeeded, want failure\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// FailuresDir is the default failure store below Dir.
func (r *CLI) FailuresDir() string {
	return filepath.Join(r.Dir, ".zkfuzz", "failures")
}

// Entries lists the failure entries below dir, oldest first.
func (r *CLI) Entries(dir string) []string {
	r.t.Helper()

	paths, err := failstore.List(dir)
	if err != nil {
		r.t.Fatalf("list entries: %v", err)
	}

	return paths
}

// WriteFile writes content to rel below Dir, creating parents.
func (r *CLI) WriteFile(rel, content string) {
	r.t.Helper()

	path := filepath.Join(r.Dir, rel)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		r.t.Fatalf("mkdir for %s: %v", rel, err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("write %s: %v", rel, err)
	}
}

// Summary parses the table "run" prints on exit, keyed by generator. The
// "(all)" row holds the totals.
func Summary(t *testing.T, stdout string) map[string]engine.Stats {
	t.Helper()

	rows := map[string]engine.Stats{}

	for line := range strings.Lines(stdout) {
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] == "GENERATOR" {
			continue
		}

		var nums [3]uint64

		for i, f := range fields[1:] {
			n, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				t.Fatalf("summary line %q: %v", line, err)
			}

			nums[i] = n
		}

		rows[fields[0]] = engine.Stats{Generator: fields[0], Failed: nums[0], Undersized: nums[1], Total: nums[2]}
	}

	if _, ok := rows["(all)"]; !ok {
		t.Fatalf("no summary in output:\n%s", stdout)
	}

	return rows
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
