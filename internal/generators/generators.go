// Package generators holds the compiled-in fuzz targets.
package generators

import (
	"encoding/json"
	"fmt"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// blockNumber is the block every case executes in.
const blockNumber = 0xcafe

// All returns one instance of every compiled-in generator.
func All() []fuzz.Generator {
	return []fuzz.Generator{
		CalldataCopyRoot{},
		CalldataLoadRoot{},
	}
}

// newCase wraps a root call of code with calldata into a case for args.
func newCase(args any, code, calldata []byte, params witness.Params) (*fuzz.Case, error) {
	ctx, err := evm.NewTestContext(evm.AccountWithCodeAndSender(code), calldata, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("test context: %w", err)
	}

	builder := circuit.NewFromTestContext(ctx).Params(params)

	return fuzz.NewCase(args, builder.Run), nil
}

// mustCase panics on error; used from Generate where a failure means the
// generator itself is broken.
func mustCase(name string, c *fuzz.Case, err error) *fuzz.Case {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	return c
}

func decodeArgs(name string, input json.RawMessage, args any) error {
	err := json.Unmarshal(input, args)
	if err != nil {
		return fmt.Errorf("%s: decode input: %w", name, err)
	}

	return nil
}
