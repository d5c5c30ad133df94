package engine

// Bitset is a growable bit vector backing the system-wide condition bits.
// Bits are appended in blocks as condition operators are added and keep
// their positions for the lifetime of the run.
type Bitset struct {
	words []uint64
	n     int
}

// Size returns the number of bits.
func (b *Bitset) Size() int { return b.n }

// Extend appends count cleared bits and returns the index of the first one.
func (b *Bitset) Extend(count int) int {
	first := b.n
	b.n += count
	for len(b.words)*64 < b.n {
		b.words = append(b.words, 0)
	}
	return first
}

// Set assigns bit i. Out of range indexes are programming errors and panic.
func (b *Bitset) Set(i int, v bool) {
	if i < 0 || i >= b.n {
		panic("bitset: index out of range")
	}
	if v {
		b.words[i/64] |= 1 << (i % 64)
	} else {
		b.words[i/64] &^= 1 << (i % 64)
	}
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		panic("bitset: index out of range")
	}
	return b.words[i/64]&(1<<(i%64)) != 0
}

// Snapshot copies the bit values into a bool slice, index for index.
func (b *Bitset) Snapshot() []bool {
	out := make([]bool, b.n)
	for i := range out {
		out[i] = b.words[i/64]&(1<<(i%64)) != 0
	}
	return out
}
