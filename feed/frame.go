package feed

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/stream"
)

// Readout frames carry one event per NATS message. All fields are
// little-endian uint32:
//
//	magic        0x31454D56 ("VME1" on the wire)
//	event index  crate event the data belongs to
//	module count number of module blocks that follow
//	per module:  word count, then that many raw data words
//
// A module that produced no data for the event is encoded with a word
// count of zero so module indexes stay positional.
const (
	FrameMagic uint32 = 0x31454D56

	frameHeaderSize  = 12
	moduleHeaderSize = 4
)

// EncodeFrame serializes one readout event into the wire format.
func EncodeFrame(ev stream.ReadoutEvent) ([]byte, error) {
	if ev.EventIndex < 0 || ev.EventIndex >= engine.MaxVMEEvents {
		return nil, fmt.Errorf("feed.EncodeFrame: event %d not in [0,%d): %w",
			ev.EventIndex, engine.MaxVMEEvents, errors.ErrEventIndex)
	}
	if len(ev.Modules) > engine.MaxVMEModules {
		return nil, fmt.Errorf("feed.EncodeFrame: %d modules exceed limit %d: %w",
			len(ev.Modules), engine.MaxVMEModules, errors.ErrModuleIndex)
	}

	size := frameHeaderSize
	for _, words := range ev.Modules {
		size += moduleHeaderSize + 4*len(words)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], FrameMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(ev.EventIndex))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(ev.Modules)))

	off := frameHeaderSize
	for _, words := range ev.Modules {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(words)))
		off += moduleHeaderSize
		for _, w := range words {
			binary.LittleEndian.PutUint32(buf[off:], w)
			off += 4
		}
	}

	return buf, nil
}

// DecodeFrame parses a readout frame. The frame must be complete and
// exact, trailing bytes are rejected as corruption.
func DecodeFrame(data []byte) (stream.ReadoutEvent, error) {
	var ev stream.ReadoutEvent

	if len(data) < frameHeaderSize {
		return ev, fmt.Errorf("feed.DecodeFrame: %d byte frame: %w",
			len(data), errors.ErrFrameTooShort)
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != FrameMagic {
		return ev, fmt.Errorf("feed.DecodeFrame: magic %#08x: %w",
			magic, errors.ErrInvalidFrame)
	}

	eventIndex := binary.LittleEndian.Uint32(data[4:])
	if eventIndex >= engine.MaxVMEEvents {
		return ev, fmt.Errorf("feed.DecodeFrame: event index %d not in [0,%d): %w",
			eventIndex, engine.MaxVMEEvents, errors.ErrEventIndex)
	}

	moduleCount := binary.LittleEndian.Uint32(data[8:])
	if moduleCount > engine.MaxVMEModules {
		return ev, fmt.Errorf("feed.DecodeFrame: %d modules exceed limit %d: %w",
			moduleCount, engine.MaxVMEModules, errors.ErrInvalidFrame)
	}

	ev.EventIndex = int(eventIndex)
	ev.Modules = make([][]uint32, moduleCount)

	off := frameHeaderSize
	for mi := range ev.Modules {
		if len(data)-off < moduleHeaderSize {
			return stream.ReadoutEvent{}, fmt.Errorf(
				"feed.DecodeFrame: frame ends inside module %d header: %w",
				mi, errors.ErrFrameTooShort)
		}
		wordCount := int(binary.LittleEndian.Uint32(data[off:]))
		off += moduleHeaderSize

		if wordCount > (len(data)-off)/4 {
			return stream.ReadoutEvent{}, fmt.Errorf(
				"feed.DecodeFrame: module %d claims %d words, %d bytes left: %w",
				mi, wordCount, len(data)-off, errors.ErrFrameTooShort)
		}

		words := make([]uint32, wordCount)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(data[off:])
			off += 4
		}
		ev.Modules[mi] = words
	}

	if off != len(data) {
		return stream.ReadoutEvent{}, fmt.Errorf(
			"feed.DecodeFrame: %d trailing bytes after module data: %w",
			len(data)-off, errors.ErrInvalidFrame)
	}

	return ev, nil
}
