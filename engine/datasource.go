package engine

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/datafilter"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// DataSourceType identifies how a data source consumes module words.
type DataSourceType uint8

const (
	// DataSourceExtractor scans every word of the module data.
	DataSourceExtractor DataSourceType = iota
	// DataSourceListFilterExtractor consumes fixed-width word groups from
	// the front of the module data.
	DataSourceListFilterExtractor
)

// DataSourceOptions modify extraction behavior.
type DataSourceOptions uint8

const (
	// NoAddedRandom disables the uniform [0,1) jitter added to extracted
	// values.
	NoAddedRandom DataSourceOptions = 1 << iota
	// RepetitionContributesLowAddressBits makes the repetition number of a
	// list filter extractor form the low bits of the output address instead
	// of the high bits.
	RepetitionContributesLowAddressBits
)

// DataSource turns raw module words into a parameter vector. The output
// vector is indexed by extracted address; HitCounts counts stores per
// address over the whole run.
type DataSource struct {
	Type        DataSourceType
	ModuleIndex int
	Output      param.Pipe
	HitCounts   param.Vec

	d any
}

type extractorData struct {
	filter              datafilter.MultiWordFilter
	requiredCompletions uint32
	currentCompletions  uint32
	rng                 *rand.Rand
	options             DataSourceOptions
}

type listFilterData struct {
	listFilter      datafilter.ListFilter
	repetitions     int
	baseAddressBits int
	repetitionBits  int
	rng             *rand.Rand
	options         DataSourceOptions
}

// MakeExtractor builds a data source around a multi-word filter. The output
// vector has one slot per extractable address, its upper limit is the
// largest representable data value plus one. requiredCompletions delays
// extraction until the filter has completed that many times within the
// event.
func MakeExtractor(
	a *arena.Arena,
	filter datafilter.MultiWordFilter,
	requiredCompletions uint32,
	rngSeed uint64,
	moduleIndex int,
	options DataSourceOptions,
) (*DataSource, error) {
	if requiredCompletions < 1 {
		return nil, fmt.Errorf("extractor required completions must be at least 1: %w",
			errors.ErrGraphMalformed)
	}

	addressBits := filter.ExtractBits(datafilter.FieldAddress)
	dataBits := filter.ExtractBits(datafilter.FieldData)
	addressCount := 1 << addressBits
	upperLimit := math.Pow(2.0, float64(dataBits))

	ds := &DataSource{
		Type:        DataSourceExtractor,
		ModuleIndex: moduleIndex,
		d: &extractorData{
			filter:              filter,
			requiredCompletions: requiredCompletions,
			rng:                 rand.New(rand.NewPCG(rngSeed, rngSeed)),
			options:             options,
		},
	}

	var err error
	if ds.Output, err = param.PushPipe(a, addressCount); err != nil {
		return nil, err
	}
	ds.Output.LowerLimits.Fill(0.0)
	ds.Output.UpperLimits.Fill(upperLimit)

	if ds.HitCounts, err = param.PushVecFill(a, addressCount, 0.0); err != nil {
		return nil, err
	}
	return ds, nil
}

// MakeListFilterExtractor builds a data source around a list filter that is
// applied repetitions times per event. The repetition number is merged into
// the extracted address, so the output has room for every repetition of
// every address.
func MakeListFilterExtractor(
	a *arena.Arena,
	listFilter datafilter.ListFilter,
	repetitions int,
	rngSeed uint64,
	moduleIndex int,
	options DataSourceOptions,
) (*DataSource, error) {
	if repetitions < 1 {
		return nil, fmt.Errorf("list filter extractor repetitions must be at least 1: %w",
			errors.ErrGraphMalformed)
	}

	baseAddressBits := listFilter.Extraction.ExtractBits(datafilter.FieldAddress)
	repetitionBits := bits.Len(uint(repetitions - 1))
	dataBits := listFilter.Extraction.ExtractBits(datafilter.FieldData)
	addressCount := 1 << (baseAddressBits + repetitionBits)
	upperLimit := math.Pow(2.0, float64(dataBits))

	ds := &DataSource{
		Type:        DataSourceListFilterExtractor,
		ModuleIndex: moduleIndex,
		d: &listFilterData{
			listFilter:      listFilter,
			repetitions:     repetitions,
			baseAddressBits: baseAddressBits,
			repetitionBits:  repetitionBits,
			rng:             rand.New(rand.NewPCG(rngSeed, rngSeed)),
			options:         options,
		},
	}

	var err error
	if ds.Output, err = param.PushPipe(a, addressCount); err != nil {
		return nil, err
	}
	ds.Output.LowerLimits.Fill(0.0)
	ds.Output.UpperLimits.Fill(upperLimit)

	if ds.HitCounts, err = param.PushVecFill(a, addressCount, 0.0); err != nil {
		return nil, err
	}
	return ds, nil
}

func extractorBeginEvent(ds *DataSource) {
	d := ds.d.(*extractorData)
	d.filter.ClearCompletion()
	d.currentCompletions = 0
	ds.Output.Data.Invalidate()
}

func extractorProcessModuleData(ds *DataSource, data []uint32) {
	d := ds.d.(*extractorData)

	for wordIndex, word := range data {
		if d.filter.ProcessWord(word, wordIndex) {
			d.currentCompletions++
			if d.currentCompletions >= d.requiredCompletions {
				d.currentCompletions = 0

				address := d.filter.Extract(datafilter.FieldAddress)
				value := d.filter.Extract(datafilter.FieldData)

				// First hit wins; later hits on the same address within one
				// event are dropped.
				if !param.IsValid(ds.Output.Data[address]) {
					dValue := float64(value)
					if d.options&NoAddedRandom == 0 {
						dValue += d.rng.Float64()
					}
					ds.Output.Data[address] = dValue
					ds.HitCounts[address]++
				}
			}
			d.filter.ClearCompletion()
		}
	}
}

func listFilterExtractorBeginEvent(ds *DataSource) {
	ds.Output.Data.Invalidate()
}

// listFilterExtractorProcessModuleData consumes word groups from the front
// of data and returns the number of words consumed. Unmatched repetitions
// still consume their word group, and the returned count can exceed
// len(data) when the configured repetitions do not fit the event.
func listFilterExtractorProcessModuleData(ds *DataSource, data []uint32) int {
	d := ds.d.(*listFilterData)
	wordCount := d.listFilter.WordCount
	consumed := 0

	for rep := 0; rep < d.repetitions; rep++ {
		var words []uint32
		if consumed < len(data) {
			words = data[consumed:]
		}
		combined := d.listFilter.Combine(words)
		consumed += wordCount

		result := d.listFilter.ExtractFromCombined(combined)
		if !result.Matched {
			continue
		}

		address := result.Address
		if d.options&RepetitionContributesLowAddressBits != 0 {
			address = address<<d.repetitionBits | uint64(rep)
		} else {
			address |= uint64(rep) << d.baseAddressBits
		}

		if !param.IsValid(ds.Output.Data[address]) {
			value := float64(result.Value)
			if d.options&NoAddedRandom == 0 {
				value += d.rng.Float64()
			}
			ds.Output.Data[address] = value
			ds.HitCounts[address]++
		}

		if consumed >= len(data) {
			break
		}
	}
	return consumed
}
