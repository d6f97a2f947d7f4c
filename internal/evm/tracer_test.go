package evm_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

func mustContext(t *testing.T, code, calldata []byte) *evm.TestContext {
	t.Helper()

	ctx, err := evm.NewTestContext(evm.AccountWithCodeAndSender(code), calldata, 0xcafe)
	if err != nil {
		t.Fatalf("NewTestContext: %v", err)
	}

	return ctx
}

func TestBytecodePushEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    uint64
		want []byte
	}{
		{name: "zero", v: 0, want: []byte{0x60, 0x00}},
		{name: "one byte", v: 0x7f, want: []byte{0x60, 0x7f}},
		{name: "two bytes", v: 0x1234, want: []byte{0x61, 0x12, 0x34}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := evm.NewBytecode().Push(uint256.NewInt(tt.v)).Bytes()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("code mismatch (-want +got):\n%s", diff)
			}
		})
	}

	code := evm.NewBytecode().Push32(uint256.NewInt(1)).Op(evm.STOP)
	if code.Len() != 34 {
		t.Fatalf("len=%d, want=34", code.Len())
	}
}

func TestOpcodeSize(t *testing.T) {
	t.Parallel()

	if got := evm.PUSH32.Size(); got != 33 {
		t.Errorf("PUSH32 size=%d, want=33", got)
	}

	if got := evm.CALLDATACOPY.Size(); got != 1 {
		t.Errorf("CALLDATACOPY size=%d, want=1", got)
	}

	if evm.OpCode(0x01).Known() {
		t.Error("ADD should not be known")
	}
}

func TestNewTestContextErrors(t *testing.T) {
	t.Parallel()

	_, err := evm.NewTestContext(evm.AccountWithCodeAndSender(nil), nil, 1)
	if !errors.Is(err, evm.ErrNoCode) {
		t.Errorf("err=%v, want ErrNoCode", err)
	}

	_, err = evm.NewTestContext(evm.AccountWithCodeAndSender([]byte{0})[:1], nil, 1)
	if !errors.Is(err, evm.ErrNoAccounts) {
		t.Errorf("err=%v, want ErrNoAccounts", err)
	}

	_, err = evm.NewTestContext(evm.AccountWithCodeAndSender([]byte{0}), make([]byte, evm.MaxCalldataLength+1), 1)
	if !errors.Is(err, evm.ErrCalldataTooLong) {
		t.Errorf("err=%v, want ErrCalldataTooLong", err)
	}
}

func TestBuildBlockCalldataCopy(t *testing.T) {
	t.Parallel()

	calldata := []byte{0xaa, 0xbb, 0xcc}
	code := evm.NewBytecode().
		Push32(uint256.NewInt(4)). // length
		Push32(uint256.NewInt(1)). // data offset
		Push32(uint256.NewInt(30)). // memory offset
		Op(evm.CALLDATACOPY).
		Op(evm.STOP).
		Bytes()

	b, err := evm.BuildBlock(mustContext(t, code, calldata), witness.Params{})
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	if len(b.Steps) != 5 {
		t.Fatalf("steps=%d, want=5", len(b.Steps))
	}

	// 3 pushes, 3 pops, 4 memory writes.
	if len(b.Rws) != 10 {
		t.Fatalf("rws=%d, want=10", len(b.Rws))
	}

	copyStep := b.Steps[3]
	if copyStep.StackPointer != evm.StackLimit-3 {
		t.Errorf("stack pointer=%d, want=%d", copyStep.StackPointer, evm.StackLimit-3)
	}

	stop := b.Steps[4]
	if stop.RwCounter != 11 {
		t.Errorf("stop rw counter=%d, want=11", stop.RwCounter)
	}

	// Bytes 30..33 touch two words.
	if stop.MemoryWords != 2 {
		t.Errorf("memory words=%d, want=2", stop.MemoryWords)
	}

	want := witness.CopyEvent{
		SrcAddr:   1,
		SrcEnd:    3,
		DstAddr:   30,
		Length:    4,
		RwCounter: 7,
		Bytes:     []byte{0xbb, 0xcc, 0, 0},
	}
	if diff := cmp.Diff([]witness.CopyEvent{want}, b.CopyEvents); diff != "" {
		t.Errorf("copy events mismatch (-want +got):\n%s", diff)
	}

	last := b.Rws[len(b.Rws)-1]
	if last.Kind != witness.RwMemory || last.Address != 33 || !last.IsWrite {
		t.Errorf("last rw=%+v, want memory write at 33", last)
	}
}

func TestBuildBlockCalldataLoad(t *testing.T) {
	t.Parallel()

	calldata := make([]byte, 40)
	for i := range calldata {
		calldata[i] = byte(i + 1)
	}

	code := evm.NewBytecode().
		Push(uint256.NewInt(20)).
		Op(evm.CALLDATALOAD).
		Op(evm.CALLDATASIZE).
		Op(evm.STOP).
		Bytes()

	b, err := evm.BuildBlock(mustContext(t, code, calldata), witness.Params{})
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	load := b.Steps[1]

	var want [32]byte
	for i := range 20 {
		want[i] = byte(21 + i)
	}

	got := load.Operands[1].Bytes32()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded word mismatch (-want +got):\n%s", diff)
	}

	size := b.Steps[2].Operands[0]
	if size.Uint64() != 40 {
		t.Errorf("calldatasize=%d, want=40", size.Uint64())
	}
}

func TestBuildBlockErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code []byte
		want error
	}{
		{name: "underflow", code: []byte{byte(evm.POP)}, want: evm.ErrStackUnderflow},
		{name: "invalid opcode", code: []byte{0x01}, want: evm.ErrInvalidOpcode},
		{
			name: "memory limit",
			code: evm.NewBytecode().
				Push32(uint256.NewInt(1)).
				Push32(uint256.NewInt(0)).
				Push32(uint256.NewInt(evm.MaxMemory)).
				Op(evm.CALLDATACOPY).
				Bytes(),
			want: evm.ErrMemoryLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := evm.BuildBlock(mustContext(t, tt.code, nil), witness.Params{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}

			var execErr *evm.ExecError
			if !errors.As(err, &execErr) {
				t.Fatalf("err=%T, want *ExecError", err)
			}
		})
	}
}

func TestBuildBlockRunsOffEndAsStop(t *testing.T) {
	t.Parallel()

	code := evm.NewBytecode().Push(uint256.NewInt(1)).Bytes()

	b, err := evm.BuildBlock(mustContext(t, code, nil), witness.Params{})
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	last := b.Steps[len(b.Steps)-1]
	if evm.OpCode(last.Opcode) != evm.STOP || last.PC != 2 {
		t.Fatalf("last step=%s at pc=%d, want STOP at 2", evm.OpCode(last.Opcode), last.PC)
	}
}

func TestCalldataByteOverflow(t *testing.T) {
	t.Parallel()

	if got := evm.CalldataByte([]byte{1, 2}, ^uint64(0), 2); got != 0 {
		t.Fatalf("byte=%d, want=0 on overflow", got)
	}

	if got := evm.CalldataByte([]byte{1, 2}, 1, 0); got != 2 {
		t.Fatalf("byte=%d, want=2", got)
	}
}
