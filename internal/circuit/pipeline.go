// Package circuit is a mock prover for the three circuits a block witness is
// checked against: the EVM execution trace, the state (read/write) table and
// the copy table.
//
// Every stage lays its rows out from the witness, checks that they fit the
// configured capacity and evaluates its gates and lookups over the BN254
// scalar field. A [Pipeline] runs the stages in order and stops at the first
// that reports failures.
package circuit

import (
	"fmt"

	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// Stage names.
const (
	StageEVM   = "evm"
	StageState = "state"
	StageCopy  = "copy"
)

// Table is one region of a stage's layout.
type Table struct {
	Name string
	// Required is the number of rows the witness needs.
	Required int
	// Capacity is the number of rows configured. Zero sizes to fit.
	Capacity int
}

// Layout describes the rows a stage needs for a block.
type Layout struct {
	Tables []Table
}

// Degree is the smallest k whose 2^k rows hold every table.
func (l Layout) Degree() int {
	rows := 0
	for _, t := range l.Tables {
		rows = max(rows, t.Required, t.Capacity)
	}

	return Degree(rows)
}

func (l Layout) capacityFailures(stage string) []Failure {
	var out []Failure

	for _, t := range l.Tables {
		if t.Capacity == 0 || t.Required <= t.Capacity {
			continue
		}

		out = append(out, Failure{
			Stage:  stage,
			Kind:   KindCapacity,
			Gate:   t.Name,
			Row:    t.Capacity,
			Detail: fmt.Sprintf("needs %d rows, configured %d", t.Required, t.Capacity),
		})
	}

	return out
}

// Stage is one independent verification pass over a block.
type Stage interface {
	Name() string
	Layout(b *witness.Block) Layout
	// Verify evaluates every check and returns the failures in row order.
	Verify(b *witness.Block) []Failure
}

// Pipeline runs stages in order.
type Pipeline struct {
	stages []Stage
}

// NewPipeline returns a pipeline over stages.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// DefaultPipeline runs the EVM, state and copy stages.
func DefaultPipeline() *Pipeline {
	return NewPipeline(EVMStage{}, StateStage{}, CopyStage{})
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Verify returns nil if every stage passes. Otherwise it returns a
// [*VerifyError] for the first failing stage; later stages are not run.
func (p *Pipeline) Verify(b *witness.Block) error {
	for _, s := range p.stages {
		failures := s.Layout(b).capacityFailures(s.Name())
		if len(failures) == 0 {
			failures = s.Verify(b)
		}

		if len(failures) > 0 {
			return &VerifyError{Stage: s.Name(), Failures: failures}
		}
	}

	return nil
}
