package engine

import (
	"fmt"

	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/histo"
	"github.com/c360/vmeflow/param"
)

type h1dSinkData struct {
	histos []*histo.H1D
}

type h1dSinkIdxData struct {
	histo      *histo.H1D
	inputIndex int
}

type h2dSinkData struct {
	histo  *histo.H2D
	xIndex int
	yIndex int
}

// MakeH1DSink fills one histogram per input element on every step. The
// histograms are shared with the caller, which typically exposes them
// through the HTTP API while the run is active.
func MakeH1DSink(input param.Pipe, histos []*histo.H1D) (*Operator, error) {
	if len(histos) != input.Size() {
		return nil, fmt.Errorf("h1d sink has %d histograms for %d input elements: %w",
			len(histos), input.Size(), errors.ErrSizeMismatch)
	}

	op := makeOperator(OpH1DSink, 1, 0)
	assignInput(op, input, 0)
	op.d = &h1dSinkData{histos: append([]*histo.H1D(nil), histos...)}
	return op, nil
}

// MakeH1DSinkIdx fills a single histogram from one input element.
func MakeH1DSinkIdx(input param.Pipe, inputIndex int, h *histo.H1D) (*Operator, error) {
	if inputIndex < 0 || inputIndex >= input.Size() {
		return nil, fmt.Errorf("h1d sink input index %d out of range [0,%d): %w",
			inputIndex, input.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpH1DSinkIdx, 1, 0)
	assignInput(op, input, 0)
	op.d = &h1dSinkIdxData{histo: h, inputIndex: inputIndex}
	return op, nil
}

// MakeH2DSink fills a 2D histogram from one element of each input.
func MakeH2DSink(xInput, yInput param.Pipe, xIndex, yIndex int, h *histo.H2D) (*Operator, error) {
	if xIndex < 0 || xIndex >= xInput.Size() || yIndex < 0 || yIndex >= yInput.Size() {
		return nil, fmt.Errorf("h2d sink indexes %d/%d out of range for inputs of size %d/%d: %w",
			xIndex, yIndex, xInput.Size(), yInput.Size(), errors.ErrGraphMalformed)
	}

	op := makeOperator(OpH2DSink, 2, 0)
	assignInput(op, xInput, 0)
	assignInput(op, yInput, 1)
	op.d = &h2dSinkData{histo: h, xIndex: xIndex, yIndex: yIndex}
	return op, nil
}

func h1dSinkStep(op *Operator, _ *System) {
	d := op.d.(*h1dSinkData)
	in := op.Inputs[0].Data

	for i, p := range in {
		d.histos[i].Fill(p)
	}
}

func h1dSinkStepIdx(op *Operator, _ *System) {
	d := op.d.(*h1dSinkIdxData)
	d.histo.Fill(op.Inputs[0].Data[d.inputIndex])
}

func h2dSinkStep(op *Operator, _ *System) {
	d := op.d.(*h2dSinkData)
	d.histo.Fill(op.Inputs[0].Data[d.xIndex], op.Inputs[1].Data[d.yIndex])
}
