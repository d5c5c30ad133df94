package engine

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/param"
)

// ExportFormat names the event layout of an export stream.
type ExportFormat uint8

const (
	ExportFull ExportFormat = iota
	ExportSparse
)

// String returns "full" or "sparse".
func (f ExportFormat) String() string {
	if f == ExportSparse {
		return "sparse"
	}
	return "full"
}

// ExportReader decodes a stream written by an export sink. The vector sizes
// of the sink's data inputs must be known; the stream itself carries no
// layout information.
type ExportReader struct {
	r      io.Reader
	format ExportFormat
	sizes  []int
	buf    []byte
}

// NewExportReader builds a reader for an export stream of the given format
// and per-event vector layout.
func NewExportReader(r io.Reader, format ExportFormat, vectorSizes []int) (*ExportReader, error) {
	if len(vectorSizes) == 0 {
		return nil, fmt.Errorf("export reader needs at least one vector size: %w", errors.ErrExportCorrupt)
	}
	for _, size := range vectorSizes {
		if size <= 0 {
			return nil, fmt.Errorf("export reader vector size %d must be positive: %w",
				size, errors.ErrExportCorrupt)
		}
	}
	return &ExportReader{
		r:      r,
		format: format,
		sizes:  append([]int(nil), vectorSizes...),
	}, nil
}

// ReadEvent decodes the next event into freshly allocated vectors, one per
// data input of the writing sink. It returns io.EOF at a clean stream end
// and io.ErrUnexpectedEOF when the stream stops mid-event.
func (er *ExportReader) ReadEvent() ([]param.Vec, error) {
	event := make([]param.Vec, len(er.sizes))
	for i, size := range er.sizes {
		var (
			vec param.Vec
			err error
		)
		if er.format == ExportSparse {
			vec, err = er.readSparseVector(size, i == 0)
		} else {
			vec, err = er.readFullVector(size, i == 0)
		}
		if err != nil {
			return nil, err
		}
		event[i] = vec
	}
	return event, nil
}

// read fills the scratch buffer with n bytes. first marks the first read of
// an event, where a clean EOF means end of stream rather than truncation.
func (er *ExportReader) read(n int, first bool) ([]byte, error) {
	if cap(er.buf) < n {
		er.buf = make([]byte, n)
	}
	buf := er.buf[:n]
	_, err := io.ReadFull(er.r, buf)
	if err == io.EOF && !first {
		err = io.ErrUnexpectedEOF
	}
	return buf, err
}

func (er *ExportReader) readFullVector(size int, first bool) (param.Vec, error) {
	buf, err := er.read(size*8, first)
	if err != nil {
		return nil, err
	}

	vec := make(param.Vec, size)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}

func (er *ExportReader) readSparseVector(size int, first bool) (param.Vec, error) {
	buf, err := er.read(2, first)
	if err != nil {
		return nil, err
	}
	validCount := int(binary.LittleEndian.Uint16(buf))
	if validCount > size {
		return nil, fmt.Errorf("sparse vector claims %d valid elements in a vector of %d: %w",
			validCount, size, errors.ErrExportCorrupt)
	}

	indexes := make([]int, validCount)
	if buf, err = er.read(validCount*2, false); err != nil {
		return nil, err
	}
	for i := range indexes {
		indexes[i] = int(binary.LittleEndian.Uint16(buf[i*2:]))
		if indexes[i] >= size {
			return nil, fmt.Errorf("sparse vector index %d out of range [0,%d): %w",
				indexes[i], size, errors.ErrExportCorrupt)
		}
	}

	vec := make(param.Vec, size)
	vec.Invalidate()

	if buf, err = er.read(validCount*8, false); err != nil {
		return nil, err
	}
	for i, idx := range indexes {
		vec[idx] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}

// SniffZlib wraps r in a zlib reader when the stream starts with a valid
// zlib header and returns a buffered passthrough otherwise. Export files
// written with a non-zero compression level start with such a header.
func SniffZlib(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil {
		// Too short to carry a header; let the caller hit EOF on read.
		return br, nil
	}
	if isZlibHeader(header) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr, nil
	}
	return br, nil
}

func isZlibHeader(h []byte) bool {
	// Deflate method in the low CMF bits and the FCHECK rule: the first two
	// bytes read big endian are a multiple of 31.
	return h[0]&0x0F == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
