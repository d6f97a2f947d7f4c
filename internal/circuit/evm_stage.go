package circuit

import (
	"github.com/holiman/uint256"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// EVMStage verifies the execution trace: one row per step plus a closing
// padding row.
type EVMStage struct{}

// Name implements [Stage].
func (EVMStage) Name() string { return StageEVM }

// Layout implements [Stage].
func (EVMStage) Layout(b *witness.Block) Layout {
	return Layout{Tables: []Table{
		{Name: "steps", Required: len(b.Steps) + 1, Capacity: b.Params.MaxEvmRows},
		{Name: "bytecode", Required: len(b.Bytecode), Capacity: b.Params.MaxBytecode},
		{Name: "calldata", Required: len(b.Calldata), Capacity: b.Params.MaxCalldata},
	}}
}

// Verify implements [Stage].
func (EVMStage) Verify(b *witness.Block) []Failure {
	c := &checker{stage: StageEVM}

	if len(b.Steps) == 0 {
		c.holds("non_empty", 0, false, "block has no steps")
		return c.failures
	}

	rws := b.RwByCounter()
	copies := make(map[int]witness.CopyEvent, len(b.CopyEvents))

	for _, ev := range b.CopyEvents {
		copies[ev.RwCounter] = ev
	}

	first := b.Steps[0]
	c.equal("first_step", 0, first.PC, 0, "pc")
	c.equal("first_step", 0, uint64(first.RwCounter), 1, "rw counter")
	c.equal("first_step", 0, uint64(first.StackPointer), evm.StackLimit, "stack pointer")
	c.equal("first_step", 0, first.MemoryWords, 0, "memory words")

	for row := range b.Steps {
		cur := &b.Steps[row]
		next := stepEffect(c, b, rws, copies, row, cur)

		last := row == len(b.Steps)-1
		op := evm.OpCode(cur.Opcode)

		if last {
			c.holds("terminal_stop", row, op == evm.STOP, "last step executes %s", op)
			c.equal("final_rw_counter", row, uint64(cur.RwCounter-1), uint64(countRws(b)), "rw operations")

			continue
		}

		c.holds("early_stop", row, op != evm.STOP, "STOP is followed by more steps")

		nxt := &b.Steps[row+1]
		c.equal("pc_transition", row, nxt.PC, cur.PC+op.Size(), "next pc")
		c.equal("rw_counter_transition", row, uint64(nxt.RwCounter), uint64(next.rwCounter), "next rw counter")
		c.equal("stack_pointer_transition", row, uint64(nxt.StackPointer), uint64(next.stackPointer), "next stack pointer")
		c.equal("memory_transition", row, nxt.MemoryWords, next.memoryWords, "next memory words")
	}

	return c.failures
}

// effect is the state a step leaves behind.
type effect struct {
	rwCounter    int
	stackPointer int
	memoryWords  uint64
}

// stepEffect checks a single step against the bytecode, the RW table and the
// copy table, and returns the state the next step must start from.
func stepEffect(c *checker, b *witness.Block, rws map[int]witness.Rw, copies map[int]witness.CopyEvent, row int, s *witness.Step) effect {
	op := evm.OpCode(s.Opcode)
	out := effect{rwCounter: s.RwCounter, stackPointer: s.StackPointer, memoryWords: s.MemoryWords}

	var codeOp byte
	if s.PC < uint64(len(b.Bytecode)) {
		codeOp = b.Bytecode[s.PC]
	}

	c.found("bytecode_lookup", row, codeOp == s.Opcode, "bytecode[%d]=0x%02x, step executes 0x%02x", s.PC, codeOp, s.Opcode)
	c.holds("known_opcode", row, op.Known(), "%s is not supported", op)

	pops, pushes := op.StackIO()
	if len(s.Operands) != pops+pushes {
		c.holds("operand_count", row, false, "%s has %d operands, want %d", op, len(s.Operands), pops+pushes)
		return out
	}

	for j := range pops {
		stackLookup(c, rws, row, s.RwCounter+j, false, uint64(s.StackPointer+j), &s.Operands[j])
	}

	for k := range pushes {
		addr := uint64(s.StackPointer + pops - 1 - k)
		stackLookup(c, rws, row, s.RwCounter+pops+k, true, addr, &s.Operands[pops+k])
	}

	out.rwCounter += pops + pushes
	out.stackPointer += pops - pushes

	switch {
	case op.IsPush():
		want := pushImmediate(b.Bytecode, s.PC, op.PushBytes())
		c.equalWord("push_value", row, &s.Operands[0], &want, "pushed value")

	case op == evm.CALLDATASIZE:
		want := uint256.NewInt(uint64(len(b.Calldata)))
		c.equalWord("calldatasize_value", row, &s.Operands[0], want, "calldata size")

	case op == evm.CALLDATALOAD:
		want := evm.CalldataWord(b.Calldata, &s.Operands[0])
		c.equalWord("calldataload_value", row, &s.Operands[1], &want, "loaded word")

	case op == evm.CALLDATACOPY:
		copyEffect(c, b, copies, row, s, &out)
	}

	return out
}

func copyEffect(c *checker, b *witness.Block, copies map[int]witness.CopyEvent, row int, s *witness.Step, out *effect) {
	memOffset, dataOffset, length := &s.Operands[0], &s.Operands[1], &s.Operands[2]
	if length.IsZero() {
		return
	}

	if !memOffset.IsUint64() || !length.IsUint64() {
		c.holds("copy_range", row, false, "offset %s length %s out of range", memOffset.Hex(), length.Hex())
		return
	}

	n := length.Uint64()
	end := memOffset.Uint64() + n

	ev, ok := copies[out.rwCounter]
	c.found("copy_lookup", row, ok, "no copy event at rw counter %d", out.rwCounter)

	if ok {
		src := dataOffset.Uint64()
		if !dataOffset.IsUint64() {
			src = ^uint64(0)
		}

		c.equal("copy_lookup", row, ev.SrcAddr, src, "copy source address")
		c.equal("copy_lookup", row, ev.SrcEnd, uint64(len(b.Calldata)), "copy source end")
		c.equal("copy_lookup", row, ev.DstAddr, memOffset.Uint64(), "copy destination address")
		c.equal("copy_lookup", row, ev.Length, n, "copy length")
	}

	out.rwCounter += int(n)
	out.memoryWords = max(out.memoryWords, (end+31)/32)
}

func stackLookup(c *checker, rws map[int]witness.Rw, row, counter int, isWrite bool, addr uint64, value *uint256.Int) {
	rw, ok := rws[counter]
	if !ok {
		c.found("stack_rw_lookup", row, false, "no rw at counter %d", counter)
		return
	}

	match := rw.Kind == witness.RwStack && rw.IsWrite == isWrite && rw.Address == addr && rw.Value.Eq(value)
	c.found("stack_rw_lookup", row, match,
		"rw %d is %s write=%v addr=%d value=%s, want stack write=%v addr=%d value=%s",
		counter, rw.Kind, rw.IsWrite, rw.Address, rw.Value.Hex(), isWrite, addr, value.Hex())
}

func pushImmediate(code []byte, pc uint64, n int) uint256.Int {
	buf := make([]byte, n)
	for i := range n {
		if idx := pc + 1 + uint64(i); idx < uint64(len(code)) {
			buf[i] = code[idx]
		}
	}

	var v uint256.Int
	v.SetBytes(buf)

	return v
}

// countRws counts the operations that are not Start padding.
func countRws(b *witness.Block) int {
	n := 0
	for _, rw := range b.Rws {
		if rw.Kind != witness.RwStart {
			n++
		}
	}

	return n
}
