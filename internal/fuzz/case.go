// Package fuzz defines the contract between fuzz targets and the engine that
// drives them: generators produce [Case] values, a [Registry] names them.
package fuzz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

// ErrCaseConsumed is returned by [Case.Run] after the first call.
var ErrCaseConsumed = errors.New("case already run")

// Generator produces randomized cases for one fuzz target.
//
// Implementations hold no mutable state: Generate is called concurrently from
// every worker, each with its own rng. A generator that cannot assemble a
// valid case panics; that is a bug in the generator, not a finding.
type Generator interface {
	// Name is the registry key. It must be constant and non-empty.
	Name() string
	Generate(rng *rand.Rand) *Case
}

// Replayer is implemented by generators that can rebuild a case from the
// input recorded in a failure report.
type Replayer interface {
	Replay(input json.RawMessage) (*Case, error)
}

// RunFunc executes the verification for a case.
type RunFunc func() error

// Case pairs a randomized input with the verification built from it.
//
// The input is opaque to the engine; it only needs to encode to JSON so a
// failing case can be reproduced offline. A case runs at most once.
type Case struct {
	input any
	run   RunFunc
	ran   atomic.Bool
}

// NewCase returns a case for input. It panics if run is nil.
func NewCase(input any, run RunFunc) *Case {
	if run == nil {
		panic("fuzz: nil run func")
	}

	return &Case{input: input, run: run}
}

// Input returns the input the case was built from.
func (c *Case) Input() any {
	return c.input
}

// MarshalInput encodes the input as JSON.
func (c *Case) MarshalInput() (json.RawMessage, error) {
	data, err := json.Marshal(c.input)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", c.input, err)
	}

	return data, nil
}

// Run executes the verification. Only the first call runs it; later calls
// return [ErrCaseConsumed].
func (c *Case) Run() error {
	if !c.ran.CompareAndSwap(false, true) {
		return ErrCaseConsumed
	}

	return c.run()
}
