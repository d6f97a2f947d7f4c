// Package witness holds the block witness a verification pipeline checks: the
// executed steps, the read/write operations they performed and the copy events
// that moved bytes between calldata and memory.
//
// A Block is produced by the evm tracer and consumed by the circuit stages.
// Nothing in this package validates anything; it is plain data.
package witness

import "github.com/holiman/uint256"

// Params declares the capacity a block is verified against. A zero field means
// "size to fit" for the stage that uses it.
type Params struct {
	MaxRws      int `json:"max_rws"`
	MaxCopyRows int `json:"max_copy_rows"`
	MaxEvmRows  int `json:"max_evm_rows"`
	MaxBytecode int `json:"max_bytecode"`
	MaxCalldata int `json:"max_calldata"`
}

// RwKind is the table an Rw operation belongs to.
type RwKind uint8

const (
	// RwStart rows pad the state table up to its capacity.
	RwStart RwKind = iota
	RwStack
	RwMemory
)

func (k RwKind) String() string {
	switch k {
	case RwStart:
		return "start"
	case RwStack:
		return "stack"
	case RwMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// Rw is a single read or write performed by a step. Counter is the global
// rw counter, starting at 1 and strictly increasing in execution order.
type Rw struct {
	Counter int
	Kind    RwKind
	IsWrite bool
	Address uint64
	Value   uint256.Int
}

// Step is one executed opcode. PC, RwCounter, StackPointer and MemoryWords
// describe the state before the opcode executes. Operands holds the stack
// values it popped followed by the values it pushed.
type Step struct {
	PC           uint64
	Opcode       byte
	RwCounter    int
	StackPointer int
	MemoryWords  uint64
	Operands     []uint256.Int
}

// CopyEvent records bytes moved from calldata into memory.
//
// Bytes[i] is the value read at SrcAddr+i (zero past SrcEnd) and written at
// DstAddr+i by the memory write with counter RwCounter+i.
type CopyEvent struct {
	SrcAddr   uint64
	SrcEnd    uint64
	DstAddr   uint64
	Length    uint64
	RwCounter int
	Bytes     []byte
}

// Block is the full witness of a single transaction execution.
type Block struct {
	Params     Params
	Number     uint64
	Bytecode   []byte
	Calldata   []byte
	Steps      []Step
	Rws        []Rw
	CopyEvents []CopyEvent
}

// RwByCounter indexes the block's operations by rw counter. Duplicate
// counters keep the first occurrence.
func (b *Block) RwByCounter() map[int]Rw {
	out := make(map[int]Rw, len(b.Rws))
	for _, rw := range b.Rws {
		if _, ok := out[rw.Counter]; !ok {
			out[rw.Counter] = rw
		}
	}

	return out
}

// CopyRows returns the number of copy table rows the block's events occupy:
// a read row and a write row per copied byte.
func (b *Block) CopyRows() int {
	rows := 0
	for _, ev := range b.CopyEvents {
		rows += 2 * len(ev.Bytes)
	}

	return rows
}
