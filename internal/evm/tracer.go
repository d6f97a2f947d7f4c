package evm

import (
	"github.com/holiman/uint256"

	"github.com/calvinalkan/zkfuzz/internal/witness"
)

const (
	// MaxMemory bounds the memory a traced program may touch.
	MaxMemory = 1 << 20

	// MaxSteps bounds the number of executed opcodes.
	MaxSteps = 1 << 14
)

// tracer is the interpreter state while building a block.
type tracer struct {
	code     []byte
	calldata []byte

	pc     uint64
	stack  []uint256.Int
	memory []byte
	rwc    int

	block *witness.Block
}

// BuildBlock executes ctx's transaction and returns its witness. The block
// carries params unchanged; capacity checks are left to the circuit stages.
func BuildBlock(ctx *TestContext, params witness.Params) (*witness.Block, error) {
	code := ctx.code()
	if len(code) == 0 {
		return nil, ErrNoCode
	}

	t := &tracer{
		code:     code,
		calldata: ctx.Tx.Input,
		rwc:      1,
		block: &witness.Block{
			Params:   params,
			Number:   ctx.BlockNumber,
			Bytecode: append([]byte(nil), code...),
			Calldata: append([]byte(nil), ctx.Tx.Input...),
		},
	}

	err := t.run()
	if err != nil {
		return nil, err
	}

	return t.block, nil
}

func (t *tracer) run() error {
	for range MaxSteps {
		op := STOP
		if t.pc < uint64(len(t.code)) {
			op = OpCode(t.code[t.pc])
		}

		if !op.Known() {
			return &ExecError{PC: t.pc, Op: op, Err: ErrInvalidOpcode}
		}

		pops, pushes := op.StackIO()
		if len(t.stack) < pops {
			return &ExecError{PC: t.pc, Op: op, Err: ErrStackUnderflow}
		}

		if len(t.stack)-pops+pushes > StackLimit {
			return &ExecError{PC: t.pc, Op: op, Err: ErrStackOverflow}
		}

		step := witness.Step{
			PC:           t.pc,
			Opcode:       byte(op),
			RwCounter:    t.rwc,
			StackPointer: StackLimit - len(t.stack),
			MemoryWords:  uint64(len(t.memory)) / 32,
		}

		if op == STOP {
			t.block.Steps = append(t.block.Steps, step)
			return nil
		}

		err := t.exec(op, &step)
		if err != nil {
			return &ExecError{PC: t.pc, Op: op, Err: err}
		}

		t.block.Steps = append(t.block.Steps, step)
		t.pc += op.Size()
	}

	return &ExecError{PC: t.pc, Op: OpCode(t.code[min(t.pc, uint64(len(t.code)-1))]), Err: ErrStepLimit}
}

func (t *tracer) exec(op OpCode, step *witness.Step) error {
	switch {
	case op.IsPush():
		v := t.immediate(op.PushBytes())
		t.push(step, v)

	case op == POP:
		t.pop(step)

	case op == CALLDATASIZE:
		t.push(step, *uint256.NewInt(uint64(len(t.calldata))))

	case op == CALLDATALOAD:
		offset := t.pop(step)
		t.push(step, CalldataWord(t.calldata, &offset))

	case op == CALLDATACOPY:
		memOffset := t.pop(step)
		dataOffset := t.pop(step)
		length := t.pop(step)

		return t.calldataCopy(&memOffset, &dataOffset, &length)
	}

	return nil
}

// immediate reads an n byte big-endian immediate after pc, zero padded past
// the end of code.
func (t *tracer) immediate(n int) uint256.Int {
	buf := make([]byte, n)

	start := t.pc + 1
	for i := range n {
		idx := start + uint64(i)
		if idx < uint64(len(t.code)) {
			buf[i] = t.code[idx]
		}
	}

	var v uint256.Int
	v.SetBytes(buf)

	return v
}

func (t *tracer) push(step *witness.Step, v uint256.Int) {
	addr := uint64(StackLimit - len(t.stack) - 1)
	t.stack = append(t.stack, v)
	t.record(witness.RwStack, true, addr, v)
	step.Operands = append(step.Operands, v)
}

func (t *tracer) pop(step *witness.Step) uint256.Int {
	addr := uint64(StackLimit - len(t.stack))
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	t.record(witness.RwStack, false, addr, v)
	step.Operands = append(step.Operands, v)

	return v
}

func (t *tracer) record(kind witness.RwKind, isWrite bool, addr uint64, v uint256.Int) {
	t.block.Rws = append(t.block.Rws, witness.Rw{
		Counter: t.rwc,
		Kind:    kind,
		IsWrite: isWrite,
		Address: addr,
		Value:   v,
	})
	t.rwc++
}

func (t *tracer) calldataCopy(memOffset, dataOffset, length *uint256.Int) error {
	if length.IsZero() {
		return nil
	}

	if !memOffset.IsUint64() || !length.IsUint64() {
		return ErrMemoryLimit
	}

	dst, n := memOffset.Uint64(), length.Uint64()
	if dst > MaxMemory || n > MaxMemory-dst {
		return ErrMemoryLimit
	}

	end := dst + n
	if words := (end + 31) / 32; uint64(len(t.memory)) < words*32 {
		t.memory = append(t.memory, make([]byte, words*32-uint64(len(t.memory)))...)
	}

	ev := witness.CopyEvent{
		SrcAddr:   saturatingUint64(dataOffset),
		SrcEnd:    uint64(len(t.calldata)),
		DstAddr:   dst,
		Length:    n,
		RwCounter: t.rwc,
		Bytes:     make([]byte, n),
	}

	for i := range n {
		b := CalldataByte(t.calldata, ev.SrcAddr, i)
		ev.Bytes[i] = b
		t.memory[dst+i] = b
		t.record(witness.RwMemory, true, dst+i, *uint256.NewInt(uint64(b)))
	}

	t.block.CopyEvents = append(t.block.CopyEvents, ev)

	return nil
}

// CalldataWord returns the 32 byte word at offset in calldata, zero padded.
func CalldataWord(calldata []byte, offset *uint256.Int) uint256.Int {
	var buf [32]byte

	if offset.IsUint64() {
		start := offset.Uint64()
		for i := range uint64(32) {
			buf[i] = CalldataByte(calldata, start, i)
		}
	}

	var v uint256.Int
	v.SetBytes32(buf[:])

	return v
}

// CalldataByte returns calldata[base+i], or zero when out of range or when
// base+i overflows.
func CalldataByte(calldata []byte, base, i uint64) byte {
	idx := base + i
	if idx < base || idx >= uint64(len(calldata)) {
		return 0
	}

	return calldata[idx]
}

// saturatingUint64 clamps v to the uint64 range.
func saturatingUint64(v *uint256.Int) uint64 {
	if !v.IsUint64() {
		return ^uint64(0)
	}

	return v.Uint64()
}
