package datafilter

import (
	"fmt"

	"github.com/c360/vmeflow/errors"
)

// ListFlag configures how a ListFilter combines its input words.
type ListFlag uint8

const (
	// WordSize32 takes all 32 bits of each input word instead of the low 16.
	WordSize32 ListFlag = 1 << iota
	// ReverseCombine makes the first input word the most significant.
	ReverseCombine
)

// ListFilter combines a fixed-width group of input words into one 64 bit
// value and runs an extraction filter over its two 32 bit halves. Used for
// modules that transmit one logical value spread over several words.
type ListFilter struct {
	Extraction MultiWordFilter
	Flags      ListFlag
	WordCount  int
}

// CombinedExtract is the outcome of matching one combined word group.
type CombinedExtract struct {
	Address uint64
	Value   uint64
	Matched bool
}

// NewListFilter validates the word count against the configured word size.
// The combined value must fit in 64 bits.
func NewListFilter(extraction MultiWordFilter, flags ListFlag, wordCount int) (ListFilter, error) {
	lf := ListFilter{Extraction: extraction, Flags: flags, WordCount: wordCount}
	if wordCount <= 0 {
		return ListFilter{}, fmt.Errorf("list filter word count %d must be positive: %w",
			wordCount, errors.ErrFilterPattern)
	}
	if bits := lf.CombinedBits(); bits > 64 {
		return ListFilter{}, fmt.Errorf("%d words of %d bits exceed the 64 bit combine limit: %w",
			wordCount, lf.bitsPerWord(), errors.ErrFilterPattern)
	}
	return lf, nil
}

func (lf *ListFilter) bitsPerWord() int {
	if lf.Flags&WordSize32 != 0 {
		return 32
	}
	return 16
}

// CombinedBits returns the width of the combined value.
func (lf *ListFilter) CombinedBits() int {
	return lf.WordCount * lf.bitsPerWord()
}

// Combine folds up to WordCount input words into one value. By default the
// first word lands in the low bits; ReverseCombine flips that. Missing words
// at the end of a short buffer contribute nothing.
func (lf *ListFilter) Combine(words []uint32) uint64 {
	use := lf.WordCount
	if len(words) < use {
		use = len(words)
	}
	if use == 0 {
		return 0
	}

	perWord := lf.bitsPerWord()
	mask := uint64(1)<<perWord - 1

	var result uint64
	if lf.Flags&ReverseCombine != 0 {
		for i := 0; i < use; i++ {
			result <<= perWord
			result |= uint64(words[i]) & mask
		}
	} else {
		for i := use - 1; i >= 0; i-- {
			result <<= perWord
			result |= uint64(words[i]) & mask
		}
	}
	return result
}

// ExtractFromCombined feeds the two halves of the combined value through the
// extraction filter and, on a complete match, pulls out the address and data
// fields. The low half is offered as word 0, the high half as word 1.
func (lf *ListFilter) ExtractFromCombined(combined uint64) CombinedExtract {
	low := uint32(combined)
	high := uint32(combined >> 32)

	lf.Extraction.ClearCompletion()
	matched := lf.Extraction.ProcessWord(low, 0) || lf.Extraction.ProcessWord(high, 1)

	var result CombinedExtract
	result.Matched = matched
	if matched {
		result.Address = lf.Extraction.Extract(FieldAddress)
		result.Value = lf.Extraction.Extract(FieldData)
	}
	return result
}
