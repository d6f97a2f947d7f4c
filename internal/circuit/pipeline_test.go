package circuit_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

var roomy = witness.Params{MaxRws: 256, MaxCopyRows: 512, MaxBytecode: 256, MaxCalldata: 64}

func copyProgram(length, dataOffset, memOffset uint64) []byte {
	return evm.NewBytecode().
		Push32(uint256.NewInt(length)).
		Push32(uint256.NewInt(dataOffset)).
		Push32(uint256.NewInt(memOffset)).
		Op(evm.CALLDATACOPY).
		Op(evm.STOP).
		Bytes()
}

func loadProgram(offset uint64) []byte {
	return evm.NewBytecode().
		Push32(uint256.NewInt(offset)).
		Op(evm.CALLDATALOAD).
		Op(evm.POP).
		Op(evm.CALLDATASIZE).
		Op(evm.POP).
		Op(evm.STOP).
		Bytes()
}

func builder(t *testing.T, code, calldata []byte) *circuit.TestBuilder {
	t.Helper()

	ctx, err := evm.NewTestContext(evm.AccountWithCodeAndSender(code), calldata, 0xcafe)
	if err != nil {
		t.Fatalf("NewTestContext: %v", err)
	}

	return circuit.NewFromTestContext(ctx)
}

func calldata(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(0xa0 + i)
	}

	return out
}

func mustVerifyError(t *testing.T, err error) *circuit.VerifyError {
	t.Helper()

	var verr *circuit.VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v (%T), want *VerifyError", err, err)
	}

	return verr
}

func hasGate(verr *circuit.VerifyError, gate string) bool {
	for _, f := range verr.Failures {
		if f.Gate == gate {
			return true
		}
	}

	return false
}

func TestValidTracesPass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     []byte
		calldata []byte
	}{
		{name: "copy inside calldata", code: copyProgram(8, 4, 0), calldata: calldata(32)},
		{name: "copy past end of calldata", code: copyProgram(40, 50, 3), calldata: calldata(64)},
		{name: "copy from empty calldata", code: copyProgram(10, 0, 100), calldata: nil},
		{name: "zero length copy", code: copyProgram(0, 0, 0), calldata: calldata(5)},
		{name: "load inside calldata", code: loadProgram(2), calldata: calldata(64)},
		{name: "load past end", code: loadProgram(90), calldata: calldata(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := builder(t, tt.code, tt.calldata).Params(roomy).Run()
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
		})
	}
}

func TestZeroParamsSizeToFit(t *testing.T) {
	t.Parallel()

	err := builder(t, copyProgram(100, 0, 0), calldata(64)).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCapacityFailureIsUndersized(t *testing.T) {
	t.Parallel()

	// 6 stack operations + 58 memory writes + 1 padding row > 64.
	err := builder(t, copyProgram(58, 0, 0), calldata(64)).
		Params(witness.Params{MaxRws: 64, MaxCopyRows: 512, MaxBytecode: 128, MaxCalldata: 64}).
		Run()

	verr := mustVerifyError(t, err)
	if verr.Stage != circuit.StageState {
		t.Fatalf("stage=%s, want=%s", verr.Stage, circuit.StageState)
	}

	if !verr.Undersized() || !errors.Is(err, circuit.ErrUndersized) {
		t.Fatalf("undersized=%v, want true: %v", verr.Undersized(), err)
	}

	if !errors.Is(err, circuit.ErrVerification) {
		t.Fatal("errors.Is(err, ErrVerification)=false")
	}

	want := circuit.Failure{
		Stage:  circuit.StageState,
		Kind:   circuit.KindCapacity,
		Gate:   "rw",
		Row:    64,
		Detail: "needs 65 rows, configured 64",
	}
	if diff := cmp.Diff([]circuit.Failure{want}, verr.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestLargestCopyThatFits(t *testing.T) {
	t.Parallel()

	err := builder(t, copyProgram(57, 0, 0), calldata(64)).
		Params(witness.Params{MaxRws: 64, MaxCopyRows: 512, MaxBytecode: 128, MaxCalldata: 64}).
		Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCorruptedWitnessFailsGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      []byte
		modify    func(b *witness.Block)
		wantStage string
		wantGate  string
		wantKind  circuit.Kind
	}{
		{
			name:      "first pc",
			code:      copyProgram(4, 0, 0),
			modify:    func(b *witness.Block) { b.Steps[0].PC = 1 },
			wantStage: circuit.StageEVM,
			wantGate:  "first_step",
			wantKind:  circuit.KindConstraint,
		},
		{
			name:      "pushed value",
			code:      copyProgram(4, 0, 0),
			modify:    func(b *witness.Block) { b.Steps[0].Operands[0].SetUint64(5) },
			wantStage: circuit.StageEVM,
			wantGate:  "push_value",
			wantKind:  circuit.KindConstraint,
		},
		{
			name:      "stack read",
			code:      copyProgram(4, 0, 0),
			modify:    func(b *witness.Block) { b.Rws[3].Value.SetUint64(99) },
			wantStage: circuit.StageEVM,
			wantGate:  "stack_rw_lookup",
			wantKind:  circuit.KindLookup,
		},
		{
			name:      "dropped stop",
			code:      copyProgram(4, 0, 0),
			modify:    func(b *witness.Block) { b.Steps = b.Steps[:len(b.Steps)-1] },
			wantStage: circuit.StageEVM,
			wantGate:  "terminal_stop",
			wantKind:  circuit.KindConstraint,
		},
		{
			name: "inconsistent stack read",
			code: loadProgram(0),
			modify: func(b *witness.Block) {
				// The first POP reads counter 4; keep the step and the
				// table in agreement so only the state table sees it.
				b.Steps[2].Operands[0].SetUint64(7)
				b.Rws[3].Value.SetUint64(7)
			},
			wantStage: circuit.StageState,
			wantGate:  "read_consistency",
			wantKind:  circuit.KindConstraint,
		},
		{
			name:      "copied byte",
			code:      copyProgram(4, 0, 0),
			modify:    func(b *witness.Block) { b.CopyEvents[0].Bytes[1] ^= 0xff },
			wantStage: circuit.StageCopy,
			wantGate:  "copy_src_lookup",
			wantKind:  circuit.KindLookup,
		},
		{
			name:      "padding byte",
			code:      copyProgram(4, 62, 0),
			modify:    func(b *witness.Block) { b.CopyEvents[0].Bytes[3] = 1 },
			wantStage: circuit.StageCopy,
			wantGate:  "copy_padding",
			wantKind:  circuit.KindConstraint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := builder(t, tt.code, calldata(64)).
				Params(roomy).
				BlockModifier(tt.modify).
				Run()

			verr := mustVerifyError(t, err)
			if verr.Stage != tt.wantStage {
				t.Fatalf("stage=%s, want=%s: %v", verr.Stage, tt.wantStage, err)
			}

			if !hasGate(verr, tt.wantGate) {
				t.Fatalf("no %q failure in %v", tt.wantGate, err)
			}

			for _, f := range verr.Failures {
				if f.Gate == tt.wantGate && f.Kind != tt.wantKind {
					t.Errorf("%s kind=%s, want=%s", f.Gate, f.Kind, tt.wantKind)
				}
			}

			if verr.Undersized() {
				t.Error("constraint failure reported as undersized")
			}
		})
	}
}

// recordingStage records whether it ran and returns fixed failures.
type recordingStage struct {
	name     string
	failures []circuit.Failure
	ran      *bool
}

func (s recordingStage) Name() string { return s.name }

func (s recordingStage) Layout(*witness.Block) circuit.Layout { return circuit.Layout{} }

func (s recordingStage) Verify(*witness.Block) []circuit.Failure {
	*s.ran = true
	return s.failures
}

func TestPipelineStopsAtFirstFailingStage(t *testing.T) {
	t.Parallel()

	var ranA, ranB, ranC bool

	fail := []circuit.Failure{{Stage: "b", Gate: "g", Row: 3}}
	p := circuit.NewPipeline(
		recordingStage{name: "a", ran: &ranA},
		recordingStage{name: "b", ran: &ranB, failures: fail},
		recordingStage{name: "c", ran: &ranC},
	)

	err := p.Verify(&witness.Block{})
	verr := mustVerifyError(t, err)

	if verr.Stage != "b" {
		t.Fatalf("stage=%s, want=b", verr.Stage)
	}

	if !ranA || !ranB || ranC {
		t.Fatalf("ran a=%v b=%v c=%v, want true true false", ranA, ranB, ranC)
	}

	if diff := cmp.Diff(fail, verr.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestCapacityFailureSkipsStageChecks(t *testing.T) {
	t.Parallel()

	var ran bool

	stage := sizedStage{recordingStage: recordingStage{name: "s", ran: &ran}}

	err := circuit.NewPipeline(stage).Verify(&witness.Block{})
	verr := mustVerifyError(t, err)

	if ran {
		t.Fatal("Verify ran on an undersized stage")
	}

	if !verr.Undersized() {
		t.Fatalf("undersized=false: %v", err)
	}
}

type sizedStage struct {
	recordingStage
}

func (sizedStage) Layout(*witness.Block) circuit.Layout {
	return circuit.Layout{Tables: []circuit.Table{{Name: "t", Required: 10, Capacity: 4}}}
}

func TestCheckOverride(t *testing.T) {
	t.Parallel()

	var sawInner bool

	err := builder(t, copyProgram(4, 0, 0), calldata(8)).
		Params(roomy).
		Check(circuit.StageState, func(b *witness.Block, inner circuit.Stage) []circuit.Failure {
			sawInner = inner.Name() == circuit.StageState && len(inner.Verify(b)) == 0

			return []circuit.Failure{{Stage: circuit.StageState, Gate: "custom", Detail: "forced"}}
		}).
		Run()

	verr := mustVerifyError(t, err)
	if verr.Stage != circuit.StageState || !hasGate(verr, "custom") {
		t.Fatalf("err=%v, want forced state failure", err)
	}

	if !sawInner {
		t.Error("override did not receive the passing state stage")
	}
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	err := circuit.NewTestBuilder().Run()
	if !errors.Is(err, circuit.ErrNoWitnessSource) {
		t.Fatalf("err=%v, want ErrNoWitnessSource", err)
	}

	err = builder(t, []byte{byte(evm.POP)}, nil).Run()
	if !errors.Is(err, evm.ErrStackUnderflow) {
		t.Fatalf("err=%v, want ErrStackUnderflow", err)
	}

	if errors.Is(err, circuit.ErrVerification) {
		t.Fatal("build failure reported as verification failure")
	}
}

func TestParamsWithBlockPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	circuit.NewFromBlock(&witness.Block{}).Params(roomy)
}

func TestPrebuiltBlock(t *testing.T) {
	t.Parallel()

	b, err := builder(t, copyProgram(4, 0, 0), calldata(8)).Params(roomy).BuildBlock()
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	err = circuit.NewFromBlock(b).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDegree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rows int
		want int
	}{
		{rows: 0, want: 6},
		{rows: 1, want: 7},
		{rows: 64, want: 7},
		{rows: 65, want: 8},
		{rows: 448, want: 9},
	}

	for _, tt := range tests {
		if got := circuit.Degree(tt.rows); got != tt.want {
			t.Errorf("Degree(%d)=%d, want=%d", tt.rows, got, tt.want)
		}
	}
}

func TestVerifyErrorMessage(t *testing.T) {
	t.Parallel()

	verr := &circuit.VerifyError{Stage: "evm"}
	for i := range 5 {
		verr.Failures = append(verr.Failures, circuit.Failure{Stage: "evm", Gate: "g", Row: i})
	}

	msg := verr.Error()
	if !strings.HasPrefix(msg, "evm stage: 5 failure(s)") {
		t.Errorf("msg=%q", msg)
	}

	if !strings.Contains(msg, "and 2 more") {
		t.Errorf("msg=%q, want truncation", msg)
	}
}

func TestKindText(t *testing.T) {
	t.Parallel()

	for _, k := range []circuit.Kind{circuit.KindConstraint, circuit.KindLookup, circuit.KindCapacity} {
		text, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", k, err)
		}

		var got circuit.Kind
		if err := got.UnmarshalText(text); err != nil || got != k {
			t.Errorf("UnmarshalText(%s)=%v, %v", text, got, err)
		}
	}

	var k circuit.Kind
	if err := k.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
