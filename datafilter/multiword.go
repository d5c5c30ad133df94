package datafilter

import (
	"fmt"

	"github.com/c360/vmeflow/errors"
)

// MaxSubFilters bounds the number of words one multi-word filter can span.
const MaxSubFilters = 16

// Field selects which extraction field of a filter to work with.
type Field int

const (
	// FieldAddress selects the bits marked 'A' in the pattern.
	FieldAddress Field = iota
	// FieldData selects the bits marked 'D' in the pattern.
	FieldData

	fieldCount
)

func (f Field) marker() byte {
	if f == FieldAddress {
		return 'a'
	}
	return 'd'
}

// MultiWordFilter matches a group of words against an ordered set of
// sub-filters and combines their extracted fields into one value. Each
// incoming word may complete at most one still-open sub-filter; the filter
// as a whole is complete once every sub-filter has matched.
type MultiWordFilter struct {
	filters        []Filter
	results        []uint32
	caches         [fieldCount][]CacheEntry
	completionMask uint16
}

// NewMultiWordFilter builds a filter from the given sub-filters. Extraction
// caches for the address and data fields are computed once here.
func NewMultiWordFilter(subfilters ...Filter) (MultiWordFilter, error) {
	if len(subfilters) == 0 {
		return MultiWordFilter{}, fmt.Errorf("no sub-filters given: %w", errors.ErrFilterPattern)
	}
	if len(subfilters) > MaxSubFilters {
		return MultiWordFilter{}, fmt.Errorf("%d sub-filters, maximum is %d: %w",
			len(subfilters), MaxSubFilters, errors.ErrFilterPattern)
	}

	mf := MultiWordFilter{
		filters: append([]Filter(nil), subfilters...),
		results: make([]uint32, len(subfilters)),
	}
	for field := Field(0); field < fieldCount; field++ {
		mf.caches[field] = make([]CacheEntry, len(subfilters))
		for i, sub := range mf.filters {
			mf.caches[field][i] = MakeCacheEntry(sub, field.marker())
		}
	}
	return mf, nil
}

// ProcessWord offers one word to the first still-open sub-filter that
// matches it, storing the word for later extraction. It reports whether the
// whole filter is now complete.
func (mf *MultiWordFilter) ProcessWord(word uint32, wordIndex int) bool {
	for i := range mf.filters {
		bit := uint16(1) << i
		if mf.completionMask&bit == 0 && mf.filters[i].Matches(word, wordIndex) {
			mf.results[i] = word
			mf.completionMask |= bit
			break
		}
	}
	return mf.IsComplete()
}

// IsComplete reports whether every sub-filter has matched a word.
func (mf *MultiWordFilter) IsComplete() bool {
	return mf.completionMask == uint16(1)<<len(mf.filters)-1
}

// ClearCompletion forgets all matches so the filter can start over.
func (mf *MultiWordFilter) ClearCompletion() {
	mf.completionMask = 0
}

// Extract combines the selected field of every matched word into one value.
// Sub-filter 0 contributes the lowest bits. Call only when complete; stale
// results are extracted otherwise.
func (mf *MultiWordFilter) Extract(field Field) uint64 {
	var result uint64
	shift := 0
	for i := range mf.filters {
		c := mf.caches[field][i]
		result |= uint64(c.Extract(mf.results[i])) << shift
		shift += c.ExtractBits
	}
	return result
}

// ExtractBits returns the total width of the selected field across all
// sub-filters.
func (mf *MultiWordFilter) ExtractBits(field Field) int {
	total := 0
	for _, c := range mf.caches[field] {
		total += c.ExtractBits
	}
	return total
}

// SubFilterCount returns the number of sub-filters.
func (mf *MultiWordFilter) SubFilterCount() int { return len(mf.filters) }
