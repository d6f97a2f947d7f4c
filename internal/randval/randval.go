// Package randval draws fuzz input values uniformly over declared domains and
// serializes them in a form that can be pasted back into a replay.
package randval

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/holiman/uint256"
)

// Bytes is a byte blob. It encodes to JSON as a hex string.
type Bytes []byte

// RandomBytes returns a blob whose length is uniform in [0, maxLen] with
// uniformly random contents.
func RandomBytes(rng *rand.Rand, maxLen int) Bytes {
	if maxLen <= 0 {
		return Bytes{}
	}

	out := make(Bytes, rng.IntN(maxLen+1))
	fill(rng, out)

	return out
}

func fill(rng *rand.Rand, buf []byte) {
	var chunk [8]byte

	for i := 0; i < len(buf); i += len(chunk) {
		binary.LittleEndian.PutUint64(chunk[:], rng.Uint64())
		copy(buf[i:], chunk[:])
	}
}

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("bytes: %w", err)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("bytes: %w", err)
	}

	*b = decoded

	return nil
}

// Word is a 256-bit EVM word. It encodes to JSON as a 0x-prefixed hex string.
type Word struct {
	uint256.Int
}

// NewWord returns v as a Word.
func NewWord(v uint64) Word {
	return Word{Int: *uint256.NewInt(v)}
}

// RandomWord returns a word uniform in [minVal, maxVal). It panics if the
// range is empty.
func RandomWord(rng *rand.Rand, minVal, maxVal uint64) Word {
	if minVal >= maxVal {
		panic(fmt.Sprintf("randval: empty word range [%d, %d)", minVal, maxVal))
	}

	return NewWord(minVal + rng.Uint64N(maxVal-minVal))
}

// RandomFullWord returns a word uniform over all 2^256 values.
func RandomFullWord(rng *rand.Rand) Word {
	var w Word
	for i := range w.Int {
		w.Int[i] = rng.Uint64()
	}

	return w
}

// MarshalJSON implements json.Marshaler.
func (w Word) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Hex())
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Word) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("word: %w", err)
	}

	v, err := uint256.FromHex(s)
	if err != nil {
		return fmt.Errorf("word %q: %w", s, err)
	}

	w.Int = *v

	return nil
}
