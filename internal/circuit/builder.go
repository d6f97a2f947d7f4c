package circuit

import (
	"fmt"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// CheckFunc replaces a stage's default verification. inner is the stage being
// replaced, so a check can wrap it.
type CheckFunc func(b *witness.Block, inner Stage) []Failure

// TestBuilder turns a test context (or a prebuilt block) into a verified
// witness.
//
//	err := circuit.NewFromTestContext(ctx).
//		Params(witness.Params{MaxRws: 64}).
//		Run()
type TestBuilder struct {
	ctx       *evm.TestContext
	params    *witness.Params
	block     *witness.Block
	modifiers []func(*witness.Block)
	checks    map[string]CheckFunc
}

// NewTestBuilder returns an empty builder. A context or block must be set
// before [TestBuilder.Run].
func NewTestBuilder() *TestBuilder {
	return &TestBuilder{checks: map[string]CheckFunc{}}
}

// NewFromTestContext returns a builder that traces ctx.
func NewFromTestContext(ctx *evm.TestContext) *TestBuilder {
	return NewTestBuilder().TestContext(ctx)
}

// NewFromBlock returns a builder that verifies an already built block.
func NewFromBlock(b *witness.Block) *TestBuilder {
	return NewTestBuilder().Block(b)
}

// TestContext sets the context the block is traced from.
func (tb *TestBuilder) TestContext(ctx *evm.TestContext) *TestBuilder {
	tb.ctx = ctx
	return tb
}

// Params sets the capacity configuration. A prebuilt block carries its own
// params, so combining the two panics.
func (tb *TestBuilder) Params(p witness.Params) *TestBuilder {
	if tb.block != nil {
		panic("circuit params already provided in the block")
	}

	tb.params = &p

	return tb
}

// Block sets a prebuilt block. It takes precedence over a test context.
func (tb *TestBuilder) Block(b *witness.Block) *TestBuilder {
	tb.block = b
	return tb
}

// BlockModifier registers fn to run on the traced block before verification.
func (tb *TestBuilder) BlockModifier(fn func(*witness.Block)) *TestBuilder {
	tb.modifiers = append(tb.modifiers, fn)
	return tb
}

// Check overrides the verification of the named stage.
func (tb *TestBuilder) Check(stage string, fn CheckFunc) *TestBuilder {
	tb.checks[stage] = fn
	return tb
}

// BuildBlock returns the block that [TestBuilder.Run] would verify.
func (tb *TestBuilder) BuildBlock() (*witness.Block, error) {
	if tb.block != nil {
		return tb.block, nil
	}

	if tb.ctx == nil {
		return nil, ErrNoWitnessSource
	}

	var params witness.Params
	if tb.params != nil {
		params = *tb.params
	}

	block, err := evm.BuildBlock(tb.ctx, params)
	if err != nil {
		return nil, fmt.Errorf("build block: %w", err)
	}

	for _, fn := range tb.modifiers {
		fn(block)
	}

	return block, nil
}

// Pipeline returns the default pipeline with the builder's check overrides.
func (tb *TestBuilder) Pipeline() *Pipeline {
	stages := DefaultPipeline().Stages()
	for i, s := range stages {
		if fn, ok := tb.checks[s.Name()]; ok {
			stages[i] = checkedStage{Stage: s, check: fn}
		}
	}

	return NewPipeline(stages...)
}

// Run builds the block and verifies it. A block that cannot be built is
// returned as a plain error; verification failures as [*VerifyError].
func (tb *TestBuilder) Run() error {
	block, err := tb.BuildBlock()
	if err != nil {
		return err
	}

	return tb.Pipeline().Verify(block)
}

type checkedStage struct {
	Stage
	check CheckFunc
}

func (s checkedStage) Verify(b *witness.Block) []Failure {
	return s.check(b, s.Stage)
}
