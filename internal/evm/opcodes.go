package evm

import "fmt"

// OpCode is a single EVM instruction byte.
type OpCode byte

// Supported opcodes. Everything else is rejected by the tracer.
const (
	STOP         OpCode = 0x00
	CALLDATALOAD OpCode = 0x35
	CALLDATASIZE OpCode = 0x36
	CALLDATACOPY OpCode = 0x37
	POP          OpCode = 0x50
	PUSH1        OpCode = 0x60
	PUSH32       OpCode = 0x7f
)

// StackLimit is the maximum number of stack items.
const StackLimit = 1024

// IsPush reports whether op is one of PUSH1..PUSH32.
func (op OpCode) IsPush() bool {
	return op >= PUSH1 && op <= PUSH32
}

// PushBytes returns the immediate size of a PUSH opcode, 0 for anything else.
func (op OpCode) PushBytes() int {
	if !op.IsPush() {
		return 0
	}

	return int(op-PUSH1) + 1
}

// Size is the number of code bytes the instruction occupies.
func (op OpCode) Size() uint64 {
	return 1 + uint64(op.PushBytes())
}

// Known reports whether the tracer implements op.
func (op OpCode) Known() bool {
	switch op {
	case STOP, CALLDATALOAD, CALLDATASIZE, CALLDATACOPY, POP:
		return true
	default:
		return op.IsPush()
	}
}

// StackIO returns how many items op pops and pushes.
func (op OpCode) StackIO() (pops, pushes int) {
	switch {
	case op == STOP:
		return 0, 0
	case op == CALLDATALOAD:
		return 1, 1
	case op == CALLDATASIZE:
		return 0, 1
	case op == CALLDATACOPY:
		return 3, 0
	case op == POP:
		return 1, 0
	case op.IsPush():
		return 0, 1
	default:
		return 0, 0
	}
}

func (op OpCode) String() string {
	switch {
	case op == STOP:
		return "STOP"
	case op == CALLDATALOAD:
		return "CALLDATALOAD"
	case op == CALLDATASIZE:
		return "CALLDATASIZE"
	case op == CALLDATACOPY:
		return "CALLDATACOPY"
	case op == POP:
		return "POP"
	case op.IsPush():
		return fmt.Sprintf("PUSH%d", op.PushBytes())
	default:
		return fmt.Sprintf("opcode 0x%02x", byte(op))
	}
}
