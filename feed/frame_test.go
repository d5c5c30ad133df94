package feed

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/errors"
	"github.com/c360/vmeflow/stream"
)

// rawFrame builds a frame from uint32 words without going through
// EncodeFrame, so corrupt frames can be constructed freely.
func rawFrame(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

func TestFrameRoundTrip(t *testing.T) {
	ev := stream.ReadoutEvent{
		EventIndex: 2,
		Modules: [][]uint32{
			{0x0010_3064, 0x0010_4128},
			{}, // module with no data keeps its slot
			{0xDEAD_BEEF},
		},
	}

	data, err := EncodeFrame(ev)
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, ev.EventIndex, got.EventIndex)
	require.Len(t, got.Modules, 3)
	assert.Equal(t, ev.Modules[0], got.Modules[0])
	assert.Empty(t, got.Modules[1])
	assert.Equal(t, ev.Modules[2], got.Modules[2])
}

func TestFrameRoundTripNoModules(t *testing.T) {
	data, err := EncodeFrame(stream.ReadoutEvent{EventIndex: 0})
	require.NoError(t, err)
	assert.Len(t, data, frameHeaderSize)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EventIndex)
	assert.Empty(t, got.Modules)
}

func TestEncodeFrameWireLayout(t *testing.T) {
	data, err := EncodeFrame(stream.ReadoutEvent{
		EventIndex: 1,
		Modules:    [][]uint32{{0x1122_3344}},
	})
	require.NoError(t, err)

	want := []byte{
		0x56, 0x4D, 0x45, 0x31, // "VME1"
		0x01, 0x00, 0x00, 0x00, // event index 1
		0x01, 0x00, 0x00, 0x00, // one module
		0x01, 0x00, 0x00, 0x00, // one word
		0x44, 0x33, 0x22, 0x11, // the word, little-endian
	}
	assert.Equal(t, want, data)
}

func TestEncodeFrameRejects(t *testing.T) {
	tests := []struct {
		name    string
		ev      stream.ReadoutEvent
		wantErr error
	}{
		{
			name:    "negative event index",
			ev:      stream.ReadoutEvent{EventIndex: -1},
			wantErr: errors.ErrEventIndex,
		},
		{
			name:    "event index at limit",
			ev:      stream.ReadoutEvent{EventIndex: engine.MaxVMEEvents},
			wantErr: errors.ErrEventIndex,
		},
		{
			name: "too many modules",
			ev: stream.ReadoutEvent{
				EventIndex: 0,
				Modules:    make([][]uint32, engine.MaxVMEModules+1),
			},
			wantErr: errors.ErrModuleIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(tt.ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "empty frame",
			data:    nil,
			wantErr: errors.ErrFrameTooShort,
		},
		{
			name:    "truncated header",
			data:    rawFrame(FrameMagic, 0)[:8],
			wantErr: errors.ErrFrameTooShort,
		},
		{
			name:    "wrong magic",
			data:    rawFrame(0xBAD0_CAFE, 0, 0),
			wantErr: errors.ErrInvalidFrame,
		},
		{
			name:    "event index out of range",
			data:    rawFrame(FrameMagic, engine.MaxVMEEvents, 0),
			wantErr: errors.ErrEventIndex,
		},
		{
			name:    "module count out of range",
			data:    rawFrame(FrameMagic, 0, engine.MaxVMEModules+1),
			wantErr: errors.ErrInvalidFrame,
		},
		{
			name:    "frame ends inside module header",
			data:    rawFrame(FrameMagic, 0, 1),
			wantErr: errors.ErrFrameTooShort,
		},
		{
			name:    "module claims more words than present",
			data:    rawFrame(FrameMagic, 0, 1, 3, 0xAAAA),
			wantErr: errors.ErrFrameTooShort,
		},
		{
			name:    "trailing bytes",
			data:    rawFrame(FrameMagic, 0, 1, 1, 0xAAAA, 0xBBBB),
			wantErr: errors.ErrInvalidFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeFrameKeepsModulesPositional(t *testing.T) {
	// Module 0 empty, module 1 carries data. Decoding must not
	// collapse the empty slot.
	data := rawFrame(FrameMagic, 3, 2, 0, 2, 0x100, 0x200)

	ev, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.EventIndex)
	require.Len(t, ev.Modules, 2)
	assert.Empty(t, ev.Modules[0])
	assert.Equal(t, []uint32{0x100, 0x200}, ev.Modules[1])
}
