package fuzz

import (
	"errors"
	"fmt"
	"slices"
)

// Error variables for registry construction.
var (
	ErrNoGenerators        = errors.New("no generators registered")
	ErrEmptyGeneratorName  = errors.New("generator name is empty")
	ErrDuplicateGenerator  = errors.New("duplicate generator name")
	ErrUnknownGenerator    = errors.New("unknown generator")
	ErrGeneratorNotReplays = errors.New("generator does not support replay")
)

// Registry maps generator names to generators. It is immutable once built,
// so concurrent reads need no locking.
type Registry struct {
	byName map[string]Generator
	names  []string
}

// NewRegistry builds a registry from gens. Names must be non-empty and
// unique.
func NewRegistry(gens ...Generator) (*Registry, error) {
	if len(gens) == 0 {
		return nil, ErrNoGenerators
	}

	r := &Registry{byName: make(map[string]Generator, len(gens))}

	for _, g := range gens {
		name := g.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: %T", ErrEmptyGeneratorName, g)
		}

		if prev, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("%w %q: %T and %T", ErrDuplicateGenerator, name, prev, g)
		}

		r.byName[name] = g
		r.names = append(r.names, name)
	}

	slices.Sort(r.names)

	return r, nil
}

// MustNewRegistry is like [NewRegistry] but panics on error.
func MustNewRegistry(gens ...Generator) *Registry {
	r, err := NewRegistry(gens...)
	if err != nil {
		panic(err)
	}

	return r
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Names returns the registered names in sorted order. Positions are stable
// and index the engine's counters.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Len returns the number of registered generators.
func (r *Registry) Len() int {
	return len(r.names)
}

// At returns the generator at position i of [Registry.Names].
func (r *Registry) At(i int) Generator {
	return r.byName[r.names[i]]
}

// Subset returns a registry restricted to names. An empty list returns r.
// Repeated names select the generator once.
func (r *Registry) Subset(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}

	gens := make([]Generator, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		g, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
		}

		if seen[name] {
			continue
		}

		seen[name] = true
		gens = append(gens, g)
	}

	return NewRegistry(gens...)
}

// Replay rebuilds a case for the named generator from a recorded input.
func (r *Registry) Replay(name string, input []byte) (*Case, error) {
	g, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
	}

	rp, ok := g.(Replayer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGeneratorNotReplays, name)
	}

	return rp.Replay(input)
}
