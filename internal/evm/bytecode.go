package evm

import "github.com/holiman/uint256"

// Bytecode assembles a program one instruction at a time.
//
//	code := evm.NewBytecode().
//		Push32(length).
//		Op(evm.CALLDATACOPY).
//		Op(evm.STOP).
//		Bytes()
type Bytecode struct {
	code []byte
}

// NewBytecode returns an empty program.
func NewBytecode() *Bytecode {
	return &Bytecode{}
}

// Op appends a single opcode with no immediate.
func (b *Bytecode) Op(op OpCode) *Bytecode {
	b.code = append(b.code, byte(op))
	return b
}

// Push appends the shortest PUSHn that encodes v. Zero is encoded as PUSH1 0.
func (b *Bytecode) Push(v *uint256.Int) *Bytecode {
	n := max((v.BitLen()+7)/8, 1)
	word := v.Bytes32()

	b.code = append(b.code, byte(PUSH1)+byte(n-1))
	b.code = append(b.code, word[32-n:]...)

	return b
}

// Push32 appends PUSH32 with the full big-endian encoding of v.
func (b *Bytecode) Push32(v *uint256.Int) *Bytecode {
	word := v.Bytes32()

	b.code = append(b.code, byte(PUSH32))
	b.code = append(b.code, word[:]...)

	return b
}

// Bytes returns a copy of the assembled program.
func (b *Bytecode) Bytes() []byte {
	out := make([]byte, len(b.code))
	copy(out, b.code)

	return out
}

// Len returns the program length in bytes.
func (b *Bytecode) Len() int {
	return len(b.code)
}
