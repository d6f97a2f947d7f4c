package generators

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/randval"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// MaxCalldataLength bounds the calldata of every calldata generator.
const MaxCalldataLength = 64

// calldataCopyBound is the exclusive bound for the copy operands, twice the
// calldata limit so copies run past the end of calldata.
const calldataCopyBound = MaxCalldataLength * 2

// CalldataCopyRootArgs is the input of the calldatacopy-root target.
type CalldataCopyRootArgs struct {
	Calldata     randval.Bytes `json:"calldata"`
	Length       randval.Word  `json:"length"`
	DataOffset   randval.Word  `json:"data_offset"`
	MemoryOffset randval.Word  `json:"memory_offset"`
}

// NewCalldataCopyRootArgs draws arguments from rng.
func NewCalldataCopyRootArgs(rng *rand.Rand) CalldataCopyRootArgs {
	return CalldataCopyRootArgs{
		Calldata:     randval.RandomBytes(rng, MaxCalldataLength),
		Length:       randval.RandomWord(rng, 0, calldataCopyBound),
		DataOffset:   randval.RandomWord(rng, 0, calldataCopyBound),
		MemoryOffset: randval.RandomWord(rng, 0, calldataCopyBound),
	}
}

// Bytecode returns the program the args run.
func (a *CalldataCopyRootArgs) Bytecode() []byte {
	return evm.NewBytecode().
		Push32(&a.Length.Int).
		Push32(&a.DataOffset.Int).
		Push32(&a.MemoryOffset.Int).
		Op(evm.CALLDATACOPY).
		Op(evm.STOP).
		Bytes()
}

// CalldataCopyRoot fuzzes CALLDATACOPY in a root call.
type CalldataCopyRoot struct{}

// Name implements [fuzz.Generator].
func (CalldataCopyRoot) Name() string { return "calldatacopy-root" }

// Params is the capacity every case is verified against.
func (CalldataCopyRoot) Params() witness.Params {
	return witness.Params{
		MaxRws:      64,
		MaxCopyRows: MaxCalldataLength * 8,
		MaxBytecode: 128,
		MaxCalldata: MaxCalldataLength,
	}
}

// Generate implements [fuzz.Generator].
func (g CalldataCopyRoot) Generate(rng *rand.Rand) *fuzz.Case {
	args := NewCalldataCopyRootArgs(rng)
	c, err := g.build(&args)

	return mustCase(g.Name(), c, err)
}

// Replay implements [fuzz.Replayer].
func (g CalldataCopyRoot) Replay(input json.RawMessage) (*fuzz.Case, error) {
	var args CalldataCopyRootArgs

	err := decodeArgs(g.Name(), input, &args)
	if err != nil {
		return nil, err
	}

	return g.build(&args)
}

func (g CalldataCopyRoot) build(args *CalldataCopyRootArgs) (*fuzz.Case, error) {
	return newCase(args, args.Bytecode(), args.Calldata, g.Params())
}
