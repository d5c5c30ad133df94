package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// adcWord builds a demo filter data word for one channel hit.
func adcWord(channel, amplitude uint32) uint32 {
	return 0x1000_0000 | channel<<demoDataBits | amplitude
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "vmeflow version "+Version)
}

func TestRootLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"logging": {"level": "debug"}, "feed": {"subject": "daq.readout"}}`), 0o644))

	opts := &rootOptions{ConfigPath: path}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "daq.readout", cfg.Feed.Subject)
	assert.Equal(t, 4096, cfg.Feed.BufferCapacity, "defaults survive partial files")

	opts.LogLevel = "error"
	cfg, err = opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level, "flags override the file layer")
}

func TestRootLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"logging": {"level": "loud"}}`), 0o644))

	opts := &rootOptions{ConfigPath: path}
	_, err := opts.loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestBuildDemoAnalysis(t *testing.T) {
	a := arena.New(arena.DefaultSize)
	sys, err := engine.NewSystem(a, discardLogger(), nil)
	require.NoError(t, err)

	catalog := service.NewCatalog()
	demo, err := buildDemoAnalysis(a, sys, catalog, demoConfig{})
	require.NoError(t, err)
	assert.Nil(t, demo.exportOp)

	names := catalog.HistoNames()
	assert.Len(t, names, demoChannelCount+3)
	assert.Contains(t, names, "amplitude_ch00")
	assert.Contains(t, names, "amplitude_ch15")
	assert.Contains(t, names, "amplitude_mean")
	assert.Contains(t, names, "amplitude_ch00_window")
	assert.Contains(t, names, "amplitude_ch00_vs_ch01")
	assert.Equal(t, []string{"event_rate"}, catalog.RateNames())

	// One event with two channel hits fills the matching spectra.
	sys.BeginRun()
	require.NoError(t, sys.BeginEvent(demoEventIndex))
	require.NoError(t, sys.ProcessModuleData(demoEventIndex, demoModuleIndex,
		[]uint32{adcWord(2, 1000), adcWord(5, 2000)}))
	require.NoError(t, sys.EndEvent(demoEventIndex))
	sys.EndRun()

	snap, ok := catalog.SnapshotHisto("amplitude_ch02")
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.Entries)

	snap, ok = catalog.SnapshotHisto("amplitude_ch03")
	require.True(t, ok)
	assert.Zero(t, snap.Entries, "channels without hits stay empty")

	snap, ok = catalog.SnapshotHisto("amplitude_mean")
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.Entries)
}

func buildExportFile(t *testing.T, dir string) string {
	t.Helper()

	a := arena.New(arena.DefaultSize)
	sys, err := engine.NewSystem(a, discardLogger(), nil)
	require.NoError(t, err)

	demo, err := buildDemoAnalysis(a, sys, service.NewCatalog(), demoConfig{
		OutputDir: dir,
		Export:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, demo.exportOp)

	sys.BeginRun()
	for i := 0; i < 3; i++ {
		require.NoError(t, sys.BeginEvent(demoEventIndex))
		require.NoError(t, sys.ProcessModuleData(demoEventIndex, demoModuleIndex,
			[]uint32{adcWord(2, 1000), adcWord(5, 2000)}))
		require.NoError(t, sys.EndEvent(demoEventIndex))
	}
	sys.EndRun()

	require.NoError(t, engine.ExportSinkLastError(demo.exportOp))
	return demo.exportFile
}

func TestDecodeCommand(t *testing.T) {
	file := buildExportFile(t, t.TempDir())

	buf := &bytes.Buffer{}
	cmd := newDecodeCommand(&rootOptions{})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{file})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "event 0")
	assert.Contains(t, output, "event 2")
	assert.Contains(t, output, "decoded 3 events")
}

func TestDecodeCommandJSON(t *testing.T) {
	file := buildExportFile(t, t.TempDir())

	buf := &bytes.Buffer{}
	cmd := newDecodeCommand(&rootOptions{})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--json", "--max-events", "2", file})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var event struct {
		Event   int          `json:"event"`
		Vectors [][]*float64 `json:"vectors"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &event))
	assert.Equal(t, 1, event.Event)
	require.Len(t, event.Vectors, 1)
	require.Len(t, event.Vectors[0], demoChannelCount)

	assert.Nil(t, event.Vectors[0][0], "channels without hits decode as null")
	require.NotNil(t, event.Vectors[0][2])
	require.NotNil(t, event.Vectors[0][5])
	// Raw amplitude 1000 of 4096 full scale lands near 2441 keV.
	assert.InDelta(t, 2441.4, *event.Vectors[0][2], 5.0)
}

func TestDecodeCommandBadFormat(t *testing.T) {
	file := buildExportFile(t, t.TempDir())

	cmd := newDecodeCommand(&rootOptions{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "columnar", file})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full or sparse")
}

func TestDecodeCommandMissingFile(t *testing.T) {
	cmd := newDecodeCommand(&rootOptions{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.vmex")})

	require.Error(t, cmd.Execute())
}

func TestBenchCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := newBenchCommand(&rootOptions{})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--events", "500", "--seed", "7"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "events:     500")
	assert.Contains(t, output, "events/sec:")
}

func TestBenchCommandRejectsZeroEvents(t *testing.T) {
	cmd := newBenchCommand(&rootOptions{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--events", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestEventGeneratorDeterministic(t *testing.T) {
	g1 := newEventGenerator(42)
	g2 := newEventGenerator(42)

	for i := 0; i < 10; i++ {
		w1 := g1.nextEvent(nil)
		w2 := g2.nextEvent(nil)
		assert.Equal(t, w1, w2)
	}

	// Every generated word carries the filter signature.
	g := newEventGenerator(7)
	for i := 0; i < 100; i++ {
		for _, w := range g.nextEvent(nil) {
			assert.Equal(t, uint32(0x1), w>>28)
		}
	}
}
