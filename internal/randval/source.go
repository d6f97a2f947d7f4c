package randval

import "math/rand/v2"

// ByteSource is a [rand.Source] that reads its values from a byte slice.
//
// Used by fuzz tests to derive generator input deterministically from fuzz
// data: the same bytes always produce the same sequence of values. Once the
// slice is exhausted the source continues with a splitmix64 sequence seeded
// from the slice length; a constant tail would stall the rejection sampling
// in [rand.Rand.IntN].
type ByteSource struct {
	bytes []byte
	pos   int
	tail  uint64
}

// NewByteSource creates a source over b.
func NewByteSource(b []byte) *ByteSource {
	return &ByteSource{bytes: b, tail: uint64(len(b))}
}

// NewByteRand returns a [rand.Rand] drawing from b.
func NewByteRand(b []byte) *rand.Rand {
	return rand.New(NewByteSource(b))
}

// HasMore reports whether unread bytes remain.
func (s *ByteSource) HasMore() bool {
	return s.pos < len(s.bytes)
}

// Uint64 consumes the next 8 bytes big-endian.
func (s *ByteSource) Uint64() uint64 {
	if !s.HasMore() {
		return s.splitmix()
	}

	var v uint64
	for range 8 {
		v <<= 8

		if s.pos < len(s.bytes) {
			v |= uint64(s.bytes[s.pos])
			s.pos++
		}
	}

	return v
}

func (s *ByteSource) splitmix() uint64 {
	s.tail += 0x9e3779b97f4a7c15
	z := s.tail
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb

	return z ^ (z >> 31)
}

// NewSeededRand returns a PCG-backed [rand.Rand] for seed.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
