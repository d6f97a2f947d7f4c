package circuit

import (
	"fmt"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// NumBlindingRows is the number of rows reserved at the end of every table.
const NumBlindingRows = 64

// Degree returns k such that 2^k rows hold rows plus the blinding rows.
func Degree(rows int) int {
	return log2Ceil(uint64(rows) + NumBlindingRows)
}

func log2Ceil(n uint64) int {
	if n <= 1 {
		return 0
	}

	return bits.Len64(n - 1)
}

func felt(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)

	return e
}

func feltInt(v int) fr.Element {
	if v < 0 {
		var e fr.Element
		e.SetUint64(uint64(-v))
		e.Neg(&e)

		return e
	}

	return felt(uint64(v))
}

func sub(a, b fr.Element) fr.Element {
	var e fr.Element
	e.Sub(&a, &b)

	return e
}

// limbs splits a word into two 128-bit field elements so it fits the field.
func limbs(w *uint256.Int) (lo, hi fr.Element) {
	b := w.Bytes32()
	hi.SetBytes(b[:16])
	lo.SetBytes(b[16:])

	return lo, hi
}

// checker collects failures for one stage.
type checker struct {
	stage    string
	failures []Failure
}

func (c *checker) fail(kind Kind, gate string, row int, format string, args ...any) {
	c.failures = append(c.failures, Failure{
		Stage:  c.stage,
		Kind:   kind,
		Gate:   gate,
		Row:    row,
		Detail: fmt.Sprintf(format, args...),
	})
}

// zero asserts that expr evaluates to zero at row.
func (c *checker) zero(gate string, row int, expr fr.Element, format string, args ...any) {
	if expr.IsZero() {
		return
	}

	c.fail(KindConstraint, gate, row, format, args...)
}

// equal asserts a == b as field elements.
func (c *checker) equal(gate string, row int, a, b uint64, what string) {
	c.zero(gate, row, sub(felt(a), felt(b)), "%s: got %d, want %d", what, a, b)
}

// equalWord asserts a == b limb by limb.
func (c *checker) equalWord(gate string, row int, a, b *uint256.Int, what string) {
	aLo, aHi := limbs(a)
	bLo, bHi := limbs(b)

	diffLo, diffHi := sub(aLo, bLo), sub(aHi, bHi)
	if diffLo.IsZero() && diffHi.IsZero() {
		return
	}

	c.fail(KindConstraint, gate, row, "%s: got %s, want %s", what, a.Hex(), b.Hex())
}

// holds asserts a boolean condition, used for range and ordering checks.
func (c *checker) holds(gate string, row int, ok bool, format string, args ...any) {
	if ok {
		return
	}

	c.fail(KindConstraint, gate, row, format, args...)
}

// found asserts that a lookup into another table succeeded.
func (c *checker) found(gate string, row int, ok bool, format string, args ...any) {
	if ok {
		return
	}

	c.fail(KindLookup, gate, row, format, args...)
}
