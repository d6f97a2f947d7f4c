package circuit

import (
	"github.com/holiman/uint256"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// CopyStage verifies the copy table: for every copied byte a read row from
// calldata followed by a write row into memory.
type CopyStage struct{}

// Name implements [Stage].
func (CopyStage) Name() string { return StageCopy }

// Layout implements [Stage].
func (CopyStage) Layout(b *witness.Block) Layout {
	return Layout{Tables: []Table{
		{Name: "copy", Required: b.CopyRows(), Capacity: b.Params.MaxCopyRows},
	}}
}

// Verify implements [Stage].
func (CopyStage) Verify(b *witness.Block) []Failure {
	c := &checker{stage: StageCopy}
	rws := b.RwByCounter()

	row := 0
	for _, ev := range b.CopyEvents {
		c.equal("copy_length", row, uint64(len(ev.Bytes)), ev.Length, "copied bytes")
		c.equal("copy_src_end", row, ev.SrcEnd, uint64(len(b.Calldata)), "source end")

		for i, v := range ev.Bytes {
			read, write := row, row+1
			off := uint64(i)

			// Past SrcEnd the read row is padding and must carry zero.
			if ev.SrcAddr+off < ev.SrcAddr || ev.SrcAddr+off >= ev.SrcEnd {
				c.zero("copy_padding", read, felt(uint64(v)), "padding byte at source %d is %d", ev.SrcAddr+off, v)
			} else {
				want := evm.CalldataByte(b.Calldata, ev.SrcAddr, off)
				c.found("copy_src_lookup", read, want == v, "calldata[%d]=%d, copied %d", ev.SrcAddr+off, want, v)
			}

			counter := ev.RwCounter + i
			rw, ok := rws[counter]

			match := ok && rw.Kind == witness.RwMemory && rw.IsWrite && rw.Address == ev.DstAddr+off &&
				rw.Value.Eq(uint256.NewInt(uint64(v)))
			c.found("copy_dst_rw_lookup", write, match,
				"no memory write of %d to %d at rw counter %d", v, ev.DstAddr+off, counter)

			row += 2
		}
	}

	return c.failures
}
