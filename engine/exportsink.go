package engine

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// compressionBufferSize is the write buffer in front of the output file.
const compressionBufferSize = 1 << 20

// maxSparseVectorSize is the largest vector the sparse format can describe
// with its 16 bit element counts and indexes.
const maxSparseVectorSize = 1<<16 - 1

type exportSinkData struct {
	fileName         string
	compressionLevel int
	dataInputCount   int
	condIndex        int

	file *os.File
	bufw *bufio.Writer
	zw   *zlib.Writer
	w    io.Writer

	scratch []byte

	bytesWritten  uint64
	eventsWritten uint64
	lastErr       error
}

// MakeExportSink writes the data inputs of every event to a binary file.
// typ selects the layout: OpExportSinkFull writes each vector as raw little
// endian float64 values, OpExportSinkSparse writes per vector a 16 bit
// valid count, the 16 bit indexes of the valid elements and then their
// values. A compressionLevel other than zero wraps the file in a zlib
// stream with that level.
//
// With condIndex >= 0 the sink only writes events in which element
// condIndex of condInput is valid; the condition input becomes the last
// input of the operator.
func MakeExportSink(
	typ OperatorType,
	fileName string,
	compressionLevel int,
	dataInputs []param.Pipe,
	condInput param.Pipe,
	condIndex int,
) (*Operator, error) {
	switch typ {
	case OpExportSinkFull, OpExportSinkSparse:
	default:
		return nil, fmt.Errorf("%s is not an export sink type: %w", typ, errors.ErrUnknownOperator)
	}
	if len(dataInputs) == 0 {
		return nil, fmt.Errorf("export sink needs at least one data input: %w", errors.ErrGraphMalformed)
	}
	if fileName == "" {
		return nil, fmt.Errorf("export sink output file name is empty: %w", errors.ErrGraphMalformed)
	}
	if compressionLevel < zlib.HuffmanOnly || compressionLevel > zlib.BestCompression {
		return nil, fmt.Errorf("export sink compression level %d out of range: %w",
			compressionLevel, errors.ErrGraphMalformed)
	}
	if condIndex >= condInput.Size() {
		return nil, fmt.Errorf("export sink condition index %d out of range [0,%d): %w",
			condIndex, condInput.Size(), errors.ErrGraphMalformed)
	}
	if typ == OpExportSinkSparse {
		for _, in := range dataInputs {
			if in.Size() > maxSparseVectorSize {
				return nil, fmt.Errorf("export sink input size %d exceeds the sparse format limit %d: %w",
					in.Size(), maxSparseVectorSize, errors.ErrGraphMalformed)
			}
		}
	}

	inputCount := len(dataInputs)
	if condIndex >= 0 {
		inputCount++
	}

	op := makeOperator(typ, inputCount, 0)
	for i, in := range dataInputs {
		assignInput(op, in, i)
	}
	if condIndex >= 0 {
		assignInput(op, condInput, inputCount-1)
	}

	op.d = &exportSinkData{
		fileName:         fileName,
		compressionLevel: compressionLevel,
		dataInputCount:   len(dataInputs),
		condIndex:        condIndex,
	}
	return op, nil
}

// ExportSinkLastError returns the error that disabled the sink, or nil.
func ExportSinkLastError(op *Operator) error {
	if d, ok := op.d.(*exportSinkData); ok {
		return d.lastErr
	}
	return nil
}

// ExportSinkStats returns the payload bytes and events written during the
// current run. Bytes count the uncompressed payload.
func ExportSinkStats(op *Operator) (bytesWritten, eventsWritten uint64) {
	if d, ok := op.d.(*exportSinkData); ok {
		return d.bytesWritten, d.eventsWritten
	}
	return 0, 0
}

func exportSinkBeginRun(op *Operator, logger *slog.Logger) {
	d := op.d.(*exportSinkData)

	d.bytesWritten = 0
	d.eventsWritten = 0
	d.lastErr = nil

	f, err := os.Create(d.fileName)
	if err != nil {
		d.lastErr = fmt.Errorf("%w: %v", errors.ErrExportDisabled, err)
		if logger != nil {
			logger.Error("export sink failed to open output file",
				"file", d.fileName, "error", err)
		}
		return
	}
	d.file = f
	d.bufw = bufio.NewWriterSize(f, compressionBufferSize)
	d.w = d.bufw

	if d.compressionLevel != 0 {
		zw, err := zlib.NewWriterLevel(d.bufw, d.compressionLevel)
		if err != nil {
			d.lastErr = fmt.Errorf("%w: %v", errors.ErrExportDisabled, err)
			f.Close()
			d.file, d.bufw, d.w = nil, nil, nil
			if logger != nil {
				logger.Error("export sink failed to set up compression",
					"file", d.fileName, "level", d.compressionLevel, "error", err)
			}
			return
		}
		d.zw = zw
		d.w = zw
	}

	if logger != nil {
		logger.Info("export sink opened output file",
			"file", d.fileName, "compression", d.compressionLevel)
	}
}

func exportSinkEndRun(op *Operator) {
	d := op.d.(*exportSinkData)

	if d.zw != nil {
		if err := d.zw.Close(); err != nil && d.lastErr == nil {
			d.lastErr = err
		}
	}
	if d.bufw != nil {
		if err := d.bufw.Flush(); err != nil && d.lastErr == nil {
			d.lastErr = err
		}
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && d.lastErr == nil {
			d.lastErr = err
		}
	}
	d.file, d.bufw, d.zw, d.w = nil, nil, nil, nil
}

// conditionPasses applies the sink's own event gate.
func (d *exportSinkData) conditionPasses(op *Operator) bool {
	if d.condIndex < 0 {
		return true
	}
	cond := op.Inputs[len(op.Inputs)-1]
	return param.IsValid(cond.Data[d.condIndex])
}

func (d *exportSinkData) fail(s *System, err error) {
	d.lastErr = fmt.Errorf("%w: %v", errors.ErrExportDisabled, err)
	if s != nil && s.logger != nil {
		s.logger.Error("export sink write failed, sink disabled",
			"file", d.fileName, "error", err)
	}
}

func exportSinkFullStep(op *Operator, s *System) {
	d := op.d.(*exportSinkData)
	if d.w == nil || d.lastErr != nil {
		return
	}
	if !d.conditionPasses(op) {
		return
	}

	written := 0
	for _, in := range op.Inputs[:d.dataInputCount] {
		d.scratch = d.scratch[:0]
		for _, v := range in.Data {
			d.scratch = binary.LittleEndian.AppendUint64(d.scratch, math.Float64bits(v))
		}
		if _, err := d.w.Write(d.scratch); err != nil {
			d.fail(s, err)
			return
		}
		written += len(d.scratch)
	}

	d.bytesWritten += uint64(written)
	d.eventsWritten++
}

func exportSinkSparseStep(op *Operator, s *System) {
	d := op.d.(*exportSinkData)
	if d.w == nil || d.lastErr != nil {
		return
	}
	if !d.conditionPasses(op) {
		return
	}

	written := 0
	for _, in := range op.Inputs[:d.dataInputCount] {
		d.scratch = d.scratch[:0]

		validCount := uint16(in.Data.ValidCount())
		d.scratch = binary.LittleEndian.AppendUint16(d.scratch, validCount)
		for i, v := range in.Data {
			if param.IsValid(v) {
				d.scratch = binary.LittleEndian.AppendUint16(d.scratch, uint16(i))
			}
		}
		for _, v := range in.Data {
			if param.IsValid(v) {
				d.scratch = binary.LittleEndian.AppendUint64(d.scratch, math.Float64bits(v))
			}
		}

		if _, err := d.w.Write(d.scratch); err != nil {
			d.fail(s, err)
			return
		}
		written += len(d.scratch)
	}

	d.bytesWritten += uint64(written)
	d.eventsWritten++
}
