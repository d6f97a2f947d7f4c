package generators_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/generators"
	"github.com/calvinalkan/zkfuzz/internal/randval"
)

// copyFits is the longest copy the calldatacopy-root state table holds: 64
// rows minus 6 stack operations and the padding row.
const copyFits = 57

func TestAllRegisters(t *testing.T) {
	t.Parallel()

	r, err := fuzz.NewRegistry(generators.All()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	want := []string{"calldatacopy-root", "calldataload-root"}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	for i := range r.Len() {
		if _, ok := r.At(i).(fuzz.Replayer); !ok {
			t.Errorf("%s does not implement Replayer", r.At(i).Name())
		}
	}
}

func TestCalldataCopyArgsWithinDomain(t *testing.T) {
	t.Parallel()

	rng := randval.NewSeededRand(11)

	for range 1000 {
		args := generators.NewCalldataCopyRootArgs(rng)

		if len(args.Calldata) > generators.MaxCalldataLength {
			t.Fatalf("calldata len=%d", len(args.Calldata))
		}

		for name, w := range map[string]randval.Word{
			"length":        args.Length,
			"data_offset":   args.DataOffset,
			"memory_offset": args.MemoryOffset,
		} {
			if !w.IsUint64() || w.Uint64() >= 128 {
				t.Fatalf("%s=%s, want < 128", name, w.Hex())
			}
		}

		if got := len(args.Bytecode()); got != 3*33+2 {
			t.Fatalf("bytecode len=%d, want=%d", got, 3*33+2)
		}
	}
}

func TestGenerateReproducibleForSeed(t *testing.T) {
	t.Parallel()

	for _, g := range generators.All() {
		t.Run(g.Name(), func(t *testing.T) {
			t.Parallel()

			a, err := g.Generate(randval.NewSeededRand(5)).MarshalInput()
			if err != nil {
				t.Fatalf("MarshalInput: %v", err)
			}

			b, err := g.Generate(randval.NewSeededRand(5)).MarshalInput()
			if err != nil {
				t.Fatalf("MarshalInput: %v", err)
			}

			if string(a) != string(b) {
				t.Fatalf("same seed, different inputs:\n%s\n%s", a, b)
			}
		})
	}
}

func TestCalldataCopyOutcomeTracksLength(t *testing.T) {
	t.Parallel()

	g := generators.CalldataCopyRoot{}
	rng := randval.NewSeededRand(99)

	var passed, undersized int

	for range 300 {
		c := g.Generate(rng)
		args := c.Input().(*generators.CalldataCopyRootArgs)
		err := c.Run()

		fits := args.Length.Uint64() <= copyFits

		switch {
		case fits && err == nil:
			passed++
		case !fits && errors.Is(err, circuit.ErrUndersized):
			undersized++
		default:
			t.Fatalf("length=%d: err=%v", args.Length.Uint64(), err)
		}
	}

	if passed == 0 || undersized == 0 {
		t.Fatalf("passed=%d undersized=%d, want both > 0", passed, undersized)
	}
}

func TestCalldataLoadAlwaysPasses(t *testing.T) {
	t.Parallel()

	g := generators.CalldataLoadRoot{}
	rng := randval.NewSeededRand(3)

	for range 300 {
		c := g.Generate(rng)

		err := c.Run()
		if err != nil {
			input, _ := c.MarshalInput()
			t.Fatalf("input=%s: %v", input, err)
		}
	}
}

func TestReplayMatchesGenerate(t *testing.T) {
	t.Parallel()

	r := fuzz.MustNewRegistry(generators.All()...)
	rng := randval.NewSeededRand(17)

	for range 100 {
		g := r.At(rng.IntN(r.Len()))
		c := g.Generate(rng)

		input, err := c.MarshalInput()
		if err != nil {
			t.Fatalf("MarshalInput: %v", err)
		}

		want := c.Run()

		replayed, err := r.Replay(g.Name(), input)
		if err != nil {
			t.Fatalf("Replay(%s): %v", input, err)
		}

		again, err := replayed.MarshalInput()
		if err != nil {
			t.Fatalf("MarshalInput: %v", err)
		}

		if string(again) != string(input) {
			t.Fatalf("replayed input differs:\n%s\n%s", input, again)
		}

		got := replayed.Run()
		if (want == nil) != (got == nil) || (want != nil && want.Error() != got.Error()) {
			t.Fatalf("input=%s: generated err=%v, replayed err=%v", input, want, got)
		}
	}
}

func TestReplayRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "{"},
		{name: "bad word", input: `{"calldata":"","length":"nope","data_offset":"0x0","memory_offset":"0x0"}`},
		{name: "bad bytes", input: `{"calldata":"zz","length":"0x0","data_offset":"0x0","memory_offset":"0x0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := generators.CalldataCopyRoot{}.Replay(json.RawMessage(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// FuzzCalldataCopyRoot drives the generator from fuzz data. A trace either
// fits and verifies, or fails only on capacity.
func FuzzCalldataCopyRoot(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	f.Add([]byte("calldatacopy seed corpus entry with some length"))

	g := generators.CalldataCopyRoot{}

	f.Fuzz(func(t *testing.T, data []byte) {
		c := g.Generate(randval.NewByteRand(data))

		err := c.Run()
		if err != nil && !errors.Is(err, circuit.ErrUndersized) {
			input, _ := c.MarshalInput()
			t.Fatalf("input=%s: %v", input, err)
		}
	})
}

func FuzzCalldataLoadRoot(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0, 64, 0, 0, 0, 0, 0, 0, 0, 95})

	g := generators.CalldataLoadRoot{}

	f.Fuzz(func(t *testing.T, data []byte) {
		c := g.Generate(randval.NewByteRand(data))

		err := c.Run()
		if err != nil {
			input, _ := c.MarshalInput()
			t.Fatalf("input=%s: %v", input, err)
		}
	})
}
