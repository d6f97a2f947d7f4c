package generators

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/randval"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// calldataLoadBound lets loads start past the end of calldata.
const calldataLoadBound = MaxCalldataLength + 32

// CalldataLoadRootArgs is the input of the calldataload-root target.
type CalldataLoadRootArgs struct {
	Calldata randval.Bytes `json:"calldata"`
	Offset   randval.Word  `json:"offset"`
}

// NewCalldataLoadRootArgs draws arguments from rng.
func NewCalldataLoadRootArgs(rng *rand.Rand) CalldataLoadRootArgs {
	return CalldataLoadRootArgs{
		Calldata: randval.RandomBytes(rng, MaxCalldataLength),
		Offset:   randval.RandomWord(rng, 0, calldataLoadBound),
	}
}

// Bytecode returns the program the args run.
func (a *CalldataLoadRootArgs) Bytecode() []byte {
	return evm.NewBytecode().
		Push32(&a.Offset.Int).
		Op(evm.CALLDATALOAD).
		Op(evm.POP).
		Op(evm.CALLDATASIZE).
		Op(evm.POP).
		Op(evm.STOP).
		Bytes()
}

// CalldataLoadRoot fuzzes CALLDATALOAD and CALLDATASIZE in a root call.
type CalldataLoadRoot struct{}

// Name implements [fuzz.Generator].
func (CalldataLoadRoot) Name() string { return "calldataload-root" }

// Params is the capacity every case is verified against.
func (CalldataLoadRoot) Params() witness.Params {
	return witness.Params{
		MaxRws:      64,
		MaxBytecode: 64,
		MaxCalldata: MaxCalldataLength,
	}
}

// Generate implements [fuzz.Generator].
func (g CalldataLoadRoot) Generate(rng *rand.Rand) *fuzz.Case {
	args := NewCalldataLoadRootArgs(rng)
	c, err := g.build(&args)

	return mustCase(g.Name(), c, err)
}

// Replay implements [fuzz.Replayer].
func (g CalldataLoadRoot) Replay(input json.RawMessage) (*fuzz.Case, error) {
	var args CalldataLoadRootArgs

	err := decodeArgs(g.Name(), input, &args)
	if err != nil {
		return nil, err
	}

	return g.build(&args)
}

func (g CalldataLoadRoot) build(args *CalldataLoadRootArgs) (*fuzz.Case, error) {
	return newCase(args, args.Bytecode(), args.Calldata, g.Params())
}
