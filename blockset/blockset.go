// Package blockset provides a dynamically growable bitmap used to mark
// which physical blocks have already been accounted for during hashing.
// It is a thin, single-writer wrapper around bits-and-blooms/bitset,
// whose Set already extends the backing storage on demand.
package blockset

import "github.com/bits-and-blooms/bitset"

// Set marks physical block ids seen so far. The zero value is ready to use.
type Set struct {
	bits *bitset.BitSet
}

// New returns a Set pre-sized to hold at least n bits.
func New(n uint64) *Set {
	return &Set{bits: bitset.New(uint(n))}
}

// Ensure guarantees the set can address bit n without panicking.
func (s *Set) Ensure(n uint64) {
	if s.bits == nil {
		s.bits = bitset.New(uint(n) + 1)
		return
	}
	if uint64(s.bits.Len()) <= n {
		s.bits.Set(uint(n)) // Set grows the backing words, then we clear it back
		s.bits.Clear(uint(n))
	}
}

// Get reports whether bit i is set. Unset (including never-grown) bits are false.
func (s *Set) Get(i uint64) bool {
	if s.bits == nil {
		return false
	}
	return s.bits.Test(uint(i))
}

// Set assigns bit i, growing the set if necessary.
func (s *Set) Set(i uint64, v bool) {
	if s.bits == nil {
		s.bits = bitset.New(uint(i) + 1)
	}
	if v {
		s.bits.Set(uint(i))
	} else {
		s.bits.Clear(uint(i))
	}
}
