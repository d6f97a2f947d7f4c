// Package failstore persists failing trials as one JSON file each so they can
// be replayed later.
//
// Layout:
//
//	<dir>/.lock
//	<dir>/<generator>/<uuidv7>.json
//
// A store holds an exclusive flock on .lock for as long as it is open, so two
// fuzzers never write into the same directory. Entry IDs are UUIDv7, which
// makes the file names sort by discovery time.
package failstore

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/engine"
)

const lockFileName = ".lock"

var (
	// ErrLocked is returned by [Open] when another process holds the store.
	ErrLocked = errors.New("failure store is locked by another process")

	// ErrClosed is returned by [Store.Record] after [Store.Close].
	ErrClosed = errors.New("failure store is closed")

	// ErrInvalidEntry is returned by [Load] for files missing required fields.
	ErrInvalidEntry = errors.New("invalid failure entry")
)

// Entry is the on-disk form of one failing trial.
type Entry struct {
	ID         string            `json:"id"`
	Generator  string            `json:"generator"`
	FoundAt    time.Time         `json:"found_at"`
	Undersized bool              `json:"undersized"`
	Stage      string            `json:"stage,omitempty"`
	// Input is the case input as reported. [Load] returns it compacted,
	// byte for byte what the engine marshalled.
	Input      json.RawMessage   `json:"input"`
	Error      string            `json:"error"`
	Failures   []circuit.Failure `json:"failures,omitempty"`
}

// NewEntry converts a report. The ID is left empty.
func NewEntry(r engine.Report) Entry {
	e := Entry{
		Generator:  r.Generator,
		FoundAt:    r.FoundAt.UTC(),
		Undersized: r.Undersized,
		Input:      r.Input,
	}

	if r.Err != nil {
		e.Error = r.Err.Error()
	}

	var verr *circuit.VerifyError
	if errors.As(r.Err, &verr) {
		e.Stage = verr.Stage
		e.Failures = verr.Failures
	}

	return e
}

// Store writes entries below one directory.
type Store struct {
	dir string

	mu   sync.Mutex
	lock *os.File
}

var _ engine.Sink = (*Store)(nil)

// Open creates dir if needed and locks it.
func Open(dir string) (*Store, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create failure dir: %w", err)
	}

	lock, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = lock.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}

		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}

	return &Store{dir: dir, lock: lock}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the lock. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil
	}

	unlockErr := flock(int(s.lock.Fd()), unix.LOCK_UN)
	closeErr := s.lock.Close()
	s.lock = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlock: %w", unlockErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// Record implements [engine.Sink].
func (s *Store) Record(r engine.Report) error {
	_, err := s.Write(NewEntry(r))
	return err
}

// Write assigns e an ID if it has none and stores it. It returns the path of
// the written file.
func (s *Store) Write(e Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return "", ErrClosed
	}

	if e.Generator == "" {
		return "", fmt.Errorf("%w: no generator", ErrInvalidEntry)
	}

	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("new id: %w", err)
		}

		e.ID = id.String()
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}

	dir := filepath.Join(s.dir, e.Generator)

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create generator dir: %w", err)
	}

	path := filepath.Join(dir, e.ID+".json")

	err = atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
	if err != nil {
		return "", fmt.Errorf("write entry: %w", err)
	}

	return path, nil
}

// Load reads one entry file.
func Load(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read entry: %w", err)
	}

	var e Entry

	err = json.Unmarshal(data, &e)
	if err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", path, err)
	}

	switch {
	case e.Generator == "":
		return Entry{}, fmt.Errorf("%w: %s: no generator", ErrInvalidEntry, path)
	case len(e.Input) == 0:
		return Entry{}, fmt.Errorf("%w: %s: no input", ErrInvalidEntry, path)
	}

	// The file is indented; the recorded input was compact JSON.
	var input bytes.Buffer

	err = json.Compact(&input, e.Input)
	if err != nil {
		return Entry{}, fmt.Errorf("decode %s: input: %w", path, err)
	}

	e.Input = input.Bytes()

	return e, nil
}

// List returns every entry file below dir, oldest first. It does not take
// the lock.
func List(dir string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && filepath.Ext(path) == ".json" {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	// File names are UUIDv7, so sorting by name sorts by discovery time.
	slices.SortFunc(paths, func(a, b string) int {
		return cmp.Or(cmp.Compare(filepath.Base(a), filepath.Base(b)), cmp.Compare(a, b))
	})

	return paths, nil
}

func flock(fd, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
