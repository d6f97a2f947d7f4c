package circuit

import (
	"cmp"
	"slices"

	"github.com/calvinalkan/zkfuzz/internal/evm"
	"github.com/calvinalkan/zkfuzz/internal/witness"
)

// StateStage verifies the RW table. Operations are sorted by (kind, address,
// counter) and laid out after Start padding rows that fill the table up to
// MaxRws. Only the trailing window of real rows is verified.
type StateStage struct{}

// Name implements [Stage].
func (StateStage) Name() string { return StageState }

// Layout implements [Stage].
func (StateStage) Layout(b *witness.Block) Layout {
	return Layout{Tables: []Table{
		{Name: "rw", Required: countRws(b) + 1, Capacity: b.Params.MaxRws},
	}}
}

// Verify implements [Stage].
func (StateStage) Verify(b *witness.Block) []Failure {
	c := &checker{stage: StageState}

	rows := make([]witness.Rw, 0, len(b.Rws))
	for _, rw := range b.Rws {
		if rw.Kind != witness.RwStart {
			rows = append(rows, rw)
		}
	}

	slices.SortStableFunc(rows, compareRwKey)

	capacity := b.Params.MaxRws
	if capacity == 0 {
		capacity = len(rows) + 1
	}

	// rows[i] sits at offset+i; everything before offset is Start padding.
	offset := capacity - len(rows)

	for i := range rows {
		row := offset + i
		cur := &rows[i]

		var prev *witness.Rw
		if i > 0 {
			prev = &rows[i-1]
		}

		c.holds("rw_counter_positive", row, cur.Counter >= 1, "rw counter %d", cur.Counter)

		if prev != nil {
			c.holds("key_order", row, compareRwKey(*prev, *cur) < 0,
				"(%s, %d, %d) does not follow (%s, %d, %d)",
				cur.Kind, cur.Address, cur.Counter, prev.Kind, prev.Address, prev.Counter)
		}

		sameKey := prev != nil && prev.Kind == cur.Kind && prev.Address == cur.Address

		switch cur.Kind {
		case witness.RwStack:
			c.holds("stack_address", row, cur.Address < evm.StackLimit, "stack address %d", cur.Address)

			if !sameKey {
				c.holds("stack_first_access", row, cur.IsWrite, "first access to stack slot %d is a read", cur.Address)
			}

		case witness.RwMemory:
			c.holds("memory_byte", row, cur.Value.IsUint64() && cur.Value.Uint64() < 256, "memory value %s is not a byte", cur.Value.Hex())

			if !sameKey && !cur.IsWrite {
				lo, hi := limbs(&cur.Value)
				c.zero("memory_initial_zero", row, lo, "first read of memory %d returns %s", cur.Address, cur.Value.Hex())
				c.zero("memory_initial_zero", row, hi, "first read of memory %d returns %s", cur.Address, cur.Value.Hex())
			}

		default:
			c.holds("rw_kind", row, false, "unknown rw kind %d", cur.Kind)
		}

		if sameKey && !cur.IsWrite {
			c.equalWord("read_consistency", row, &cur.Value, &prev.Value, "read value")
		}
	}

	checkCounterPermutation(c, rows, offset)

	return c.failures
}

// checkCounterPermutation asserts the counters of rows are exactly 1..len.
func checkCounterPermutation(c *checker, rows []witness.Rw, offset int) {
	pos := make([]int, len(rows))
	for i := range pos {
		pos[i] = i
	}

	slices.SortFunc(pos, func(a, b int) int {
		return cmp.Compare(rows[a].Counter, rows[b].Counter)
	})

	for want, i := range pos {
		c.zero("rw_counter_permutation", offset+i, sub(feltInt(rows[i].Counter), feltInt(want+1)),
			"rw counter %d, want %d", rows[i].Counter, want+1)
	}
}

func compareRwKey(a, b witness.Rw) int {
	return cmp.Or(
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Address, b.Address),
		cmp.Compare(a.Counter, b.Counter),
	)
}
