// Package histo implements the fixed-binning 1D and 2D histograms the sink
// operators fill.
//
// Bin contents and counters are float64 so histograms can hold more than
// 2^53 entries degrade-gracefully and slot into the same arena-backed
// vectors as parameter data. Fills compare against the binning bounds
// before computing a bin, so NaN input falls through every comparison and
// is dropped without touching any counter.
package histo

import (
	"fmt"
	"math"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// Binning describes one axis: values in [Min, Min+Range) are binnable.
type Binning struct {
	Min   float64
	Range float64
}

// Max returns the exclusive upper edge of the axis.
func (b Binning) Max() float64 { return b.Min + b.Range }

// H1D is a one-dimensional histogram with equidistant bins.
type H1D struct {
	Data          param.Vec
	Binning       Binning
	BinningFactor float64
	EntryCount    float64
	Underflow     float64
	Overflow      float64
}

// NewH1D allocates a histogram with binCount bins from the arena.
func NewH1D(a *arena.Arena, binCount int, binning Binning) (*H1D, error) {
	if binCount <= 0 {
		return nil, fmt.Errorf("h1d bin count %d must be positive: %w",
			binCount, errors.ErrGraphMalformed)
	}
	if !(binning.Range > 0) {
		return nil, fmt.Errorf("h1d binning range %v must be positive: %w",
			binning.Range, errors.ErrGraphMalformed)
	}
	data, err := param.PushVecFill(a, binCount, 0.0)
	if err != nil {
		return nil, err
	}
	return &H1D{
		Data:          data,
		Binning:       binning,
		BinningFactor: float64(binCount) / binning.Range,
	}, nil
}

// Fill sorts x into its bin or the under/overflow counters. NaN falls
// through every comparison and is dropped.
func (h *H1D) Fill(x float64) {
	if x < h.Binning.Min {
		h.Underflow++
	} else if x >= h.Binning.Min+h.Binning.Range {
		h.Overflow++
	} else if !math.IsNaN(x) {
		bin := int((x - h.Binning.Min) * h.BinningFactor)
		h.Data[bin]++
		h.EntryCount++
	}
}

// BinCount returns the number of bins.
func (h *H1D) BinCount() int { return len(h.Data) }

// BinLowEdge returns the lower edge of the given bin.
func (h *H1D) BinLowEdge(bin int) float64 {
	return h.Binning.Min + float64(bin)/h.BinningFactor
}

// Clear zeroes all bins and counters.
func (h *H1D) Clear() {
	h.EntryCount = 0
	h.Underflow = 0
	h.Overflow = 0
	h.Data.Fill(0)
	h.BinningFactor = float64(len(h.Data)) / h.Binning.Range
}

// Axis selects one dimension of a 2D histogram.
type Axis int

const (
	XAxis Axis = iota
	YAxis

	axisCount
)

// H2D is a two-dimensional histogram stored row-major: the linear bin for
// (xBin, yBin) is yBin*xBinCount + xBin. The under- and overflow counters
// are shared between both axes.
type H2D struct {
	Data           param.Vec
	Binnings       [axisCount]Binning
	BinCounts      [axisCount]int
	BinningFactors [axisCount]float64
	EntryCount     float64
	Underflow      float64
	Overflow       float64
}

// NewH2D allocates an xBins by yBins histogram from the arena.
func NewH2D(a *arena.Arena, xBins, yBins int, xBinning, yBinning Binning) (*H2D, error) {
	if xBins <= 0 || yBins <= 0 {
		return nil, fmt.Errorf("h2d bin counts %dx%d must be positive: %w",
			xBins, yBins, errors.ErrGraphMalformed)
	}
	if !(xBinning.Range > 0) || !(yBinning.Range > 0) {
		return nil, fmt.Errorf("h2d binning ranges %vx%v must be positive: %w",
			xBinning.Range, yBinning.Range, errors.ErrGraphMalformed)
	}
	data, err := param.PushVecFill(a, xBins*yBins, 0.0)
	if err != nil {
		return nil, err
	}
	h := &H2D{Data: data}
	h.Binnings[XAxis] = xBinning
	h.Binnings[YAxis] = yBinning
	h.BinCounts[XAxis] = xBins
	h.BinCounts[YAxis] = yBins
	h.BinningFactors[XAxis] = float64(xBins) / xBinning.Range
	h.BinningFactors[YAxis] = float64(yBins) / yBinning.Range
	return h, nil
}

// Fill sorts the point (x, y) into its bin. The axis checks run in order
// x-under, x-over, y-under, y-over, so an out-of-range y is counted even
// when x is NaN. Points with either coordinate NaN and both coordinates
// inside the axis ranges are dropped.
func (h *H2D) Fill(x, y float64) {
	if x < h.Binnings[XAxis].Min {
		h.Underflow++
	} else if x >= h.Binnings[XAxis].Min+h.Binnings[XAxis].Range {
		h.Overflow++
	} else if y < h.Binnings[YAxis].Min {
		h.Underflow++
	} else if y >= h.Binnings[YAxis].Min+h.Binnings[YAxis].Range {
		h.Overflow++
	} else if !(math.IsNaN(x) || math.IsNaN(y)) {
		xBin := int((x - h.Binnings[XAxis].Min) * h.BinningFactors[XAxis])
		yBin := int((y - h.Binnings[YAxis].Min) * h.BinningFactors[YAxis])
		linearBin := yBin*h.BinCounts[XAxis] + xBin
		h.Data[linearBin]++
		h.EntryCount++
	}
}

// Clear zeroes all bins and counters.
func (h *H2D) Clear() {
	h.EntryCount = 0
	h.Underflow = 0
	h.Overflow = 0
	h.Data.Fill(0)
}
