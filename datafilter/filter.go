// Package datafilter implements the bit-level pattern filters used to pull
// address and data fields out of raw module words.
//
// A filter pattern is a string of up to 32 characters, one per bit, with the
// rightmost character describing bit 0. '0' and '1' must match literally,
// letters name extraction fields (case-insensitive, conventionally 'A' for
// address and 'D' for data) and any other character is a don't-care.
// Spaces are stripped, so patterns can be grouped for readability:
//
//	"0001 XXXX AAAA DDDD DDDD DDDD"
package datafilter

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/c360/vmeflow/errors"
)

// FilterSize is the maximum pattern length in bits.
const FilterSize = 32

// MatchAnyWordIndex makes a filter match at every word position.
const MatchAnyWordIndex = -1

// Filter matches and extracts fields from a single 32 bit word.
type Filter struct {
	pattern        [FilterSize]byte
	matchMask      uint32
	matchValue     uint32
	matchWordIndex int
}

// MakeFilter parses a pattern into a Filter. wordIndex restricts matching to
// one word position within the event, MatchAnyWordIndex disables the check.
func MakeFilter(pattern string, wordIndex int) (Filter, error) {
	stripped := strings.ReplaceAll(pattern, " ", "")
	if len(stripped) > FilterSize {
		return Filter{}, fmt.Errorf("pattern %q is %d bits, maximum is %d: %w",
			pattern, len(stripped), FilterSize, errors.ErrFilterPattern)
	}

	f := Filter{matchWordIndex: wordIndex}
	for i := range f.pattern {
		f.pattern[i] = 'X'
	}
	// Reversed so pattern[i] describes bit i.
	for i := 0; i < len(stripped); i++ {
		f.pattern[i] = stripped[len(stripped)-1-i]
	}

	for i := 0; i < FilterSize; i++ {
		switch f.pattern[i] {
		case '0':
			f.matchMask |= 1 << i
		case '1':
			f.matchMask |= 1 << i
			f.matchValue |= 1 << i
		}
	}
	return f, nil
}

// MustMakeFilter is MakeFilter for statically known patterns. It panics on
// parse errors.
func MustMakeFilter(pattern string, wordIndex int) Filter {
	f, err := MakeFilter(pattern, wordIndex)
	if err != nil {
		panic(err)
	}
	return f
}

// Matches reports whether word satisfies the literal bits of the filter at
// the given word position.
func (f *Filter) Matches(word uint32, wordIndex int) bool {
	return (f.matchWordIndex < 0 || f.matchWordIndex == wordIndex) &&
		word&f.matchMask == f.matchValue
}

// WordIndex returns the word position the filter is restricted to, or
// MatchAnyWordIndex.
func (f *Filter) WordIndex() int { return f.matchWordIndex }

// CacheEntry holds the precomputed extraction info for one field marker.
type CacheEntry struct {
	ExtractMask  uint32
	ExtractBits  int
	ExtractShift int
	NeedGather   bool
}

// MakeCacheEntry scans the filter pattern for the given field marker and
// precomputes the extraction mask. Markers compare case-insensitively.
func MakeCacheEntry(f Filter, marker byte) CacheEntry {
	marker = lower(marker)

	var c CacheEntry
	for i := 0; i < FilterSize; i++ {
		if lower(f.pattern[i]) == marker {
			c.ExtractMask |= 1 << i
		}
	}
	c.ExtractShift = bits.TrailingZeros32(c.ExtractMask) % FilterSize
	c.ExtractBits = bits.OnesCount32(c.ExtractMask)
	contiguous := uint32(1)<<c.ExtractBits - 1
	c.NeedGather = c.ExtractMask != 0 && c.ExtractMask>>c.ExtractShift != contiguous
	return c
}

// Extract pulls the field bits out of word and packs them into the low bits
// of the result.
func (c CacheEntry) Extract(word uint32) uint32 {
	result := (word & c.ExtractMask) >> c.ExtractShift
	if c.NeedGather {
		result = gather(result, c.ExtractMask>>c.ExtractShift)
	}
	return result
}

// Extract is a convenience for one-off extractions without a cache.
func Extract(f Filter, word uint32, marker byte) uint32 {
	return MakeCacheEntry(f, marker).Extract(word)
}

// gather compacts the bits of value selected by mask into contiguous low
// bits, preserving order.
func gather(value, mask uint32) uint32 {
	var out uint32
	bit := 0
	for m := mask; m != 0; m &= m - 1 {
		pos := bits.TrailingZeros32(m)
		if value&(1<<pos) != 0 {
			out |= 1 << bit
		}
		bit++
	}
	return out
}

func lower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
