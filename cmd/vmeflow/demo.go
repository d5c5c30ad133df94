package main

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/datafilter"
	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/histo"
	"github.com/c360/vmeflow/param"
	"github.com/c360/vmeflow/rate"
	"github.com/c360/vmeflow/service"
)

// Demo graph geometry. One trigger event, one ADC module.
const (
	demoEventIndex   = 0
	demoModuleIndex  = 0
	demoChannelCount = 16
	demoDataBits     = 12
)

// demoFilterPattern matches mesytec style ADC data words: a fixed 0001
// signature in the top nibble, 4 address bits selecting the channel and 12
// data bits of amplitude.
const demoFilterPattern = "0001 XXXX XXXX XXXX AAAA DDDD DDDD DDDD"

// demoUnitMax is the calibrated full-scale amplitude in keV.
const demoUnitMax = 10000.0

// demoConfig controls the optional pieces of the demo graph.
type demoConfig struct {
	// OutputDir receives the export stream when Export is set.
	OutputDir string
	Export    bool
	// TimetickInterval sizes the rate samplers so they report per-second
	// rates regardless of the tick cadence.
	TimetickInterval time.Duration
}

// demoAnalysis exposes the pieces of the built graph the commands report on.
type demoAnalysis struct {
	exportOp   *engine.Operator
	exportFile string
}

// buildDemoAnalysis populates sys with a representative analysis chain for a
// 16 channel peak sensing ADC: extraction, calibration, per-channel and
// aggregate histograms, an amplitude window, an event rate monitor and an
// optional sparse export stream. Every histogram and rate sampler is
// registered in the catalog under a stable name.
func buildDemoAnalysis(a *arena.Arena, sys *engine.System, catalog *service.Catalog, cfg demoConfig) (*demoAnalysis, error) {
	tick := cfg.TimetickInterval
	if tick <= 0 {
		tick = time.Second
	}

	filter, err := datafilter.NewMultiWordFilter(
		datafilter.MustMakeFilter(demoFilterPattern, datafilter.MatchAnyWordIndex))
	if err != nil {
		return nil, fmt.Errorf("build amplitude filter: %w", err)
	}

	ds, err := engine.MakeExtractor(a, filter, 1, 0x76656d65, demoModuleIndex, 0)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	if err := sys.AddDataSource(demoEventIndex, ds); err != nil {
		return nil, err
	}

	// Rank 0: raw channel values onto the calibrated keV scale.
	calib, err := engine.MakeCalibration(a, ds.Output, 0, demoUnitMax)
	if err != nil {
		return nil, fmt.Errorf("build calibration: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 0, calib); err != nil {
		return nil, err
	}
	amplitudes := calib.Outputs[0]

	// Rank 1: per-channel spectra.
	channelHistos := make([]*histo.H1D, demoChannelCount)
	for i := range channelHistos {
		h, err := histo.NewH1D(a, 100, histo.Binning{Min: 0, Range: demoUnitMax})
		if err != nil {
			return nil, fmt.Errorf("build channel histogram %d: %w", i, err)
		}
		channelHistos[i] = h
		if err := catalog.AddH1D(fmt.Sprintf("amplitude_ch%02d", i), h); err != nil {
			return nil, err
		}
	}
	channelSink, err := engine.MakeH1DSink(amplitudes, channelHistos)
	if err != nil {
		return nil, fmt.Errorf("build channel sink: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 1, channelSink); err != nil {
		return nil, err
	}

	// Rank 1: mean amplitude across the channels that fired.
	mean, err := engine.MakeAggregateMean(a, amplitudes,
		param.Interval{Min: math.NaN(), Max: math.NaN()})
	if err != nil {
		return nil, fmt.Errorf("build mean aggregate: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 1, mean); err != nil {
		return nil, err
	}

	meanHisto, err := histo.NewH1D(a, 100, histo.Binning{Min: 0, Range: demoUnitMax})
	if err != nil {
		return nil, fmt.Errorf("build mean histogram: %w", err)
	}
	if err := catalog.AddH1D("amplitude_mean", meanHisto); err != nil {
		return nil, err
	}
	meanSink, err := engine.MakeH1DSinkIdx(mean.Outputs[0], 0, meanHisto)
	if err != nil {
		return nil, fmt.Errorf("build mean sink: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 2, meanSink); err != nil {
		return nil, err
	}

	// Rank 1: amplitude window on the full vector, channel 0 histogrammed.
	window, err := engine.MakeRangeFilter(a, amplitudes,
		param.Interval{Min: 0.1 * demoUnitMax, Max: 0.9 * demoUnitMax}, false)
	if err != nil {
		return nil, fmt.Errorf("build amplitude window: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 1, window); err != nil {
		return nil, err
	}

	windowHisto, err := histo.NewH1D(a, 100, histo.Binning{Min: 0, Range: demoUnitMax})
	if err != nil {
		return nil, fmt.Errorf("build window histogram: %w", err)
	}
	if err := catalog.AddH1D("amplitude_ch00_window", windowHisto); err != nil {
		return nil, err
	}
	windowSink, err := engine.MakeH1DSinkIdx(window.Outputs[0], 0, windowHisto)
	if err != nil {
		return nil, fmt.Errorf("build window sink: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 2, windowSink); err != nil {
		return nil, err
	}

	// Rank 1: channel 0 against channel 1.
	corr, err := histo.NewH2D(a, 64, 64,
		histo.Binning{Min: 0, Range: demoUnitMax},
		histo.Binning{Min: 0, Range: demoUnitMax})
	if err != nil {
		return nil, fmt.Errorf("build correlation histogram: %w", err)
	}
	if err := catalog.AddH2D("amplitude_ch00_vs_ch01", corr); err != nil {
		return nil, err
	}
	corrSink, err := engine.MakeH2DSink(amplitudes, amplitudes, 0, 1, corr)
	if err != nil {
		return nil, fmt.Errorf("build correlation sink: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 1, corrSink); err != nil {
		return nil, err
	}

	// Rank 2: events per second, counted as valid mean amplitudes.
	eventRate, err := rate.NewSampler(rate.SamplerConfig{
		Interval:    tick.Seconds(),
		HistorySize: 3600,
	})
	if err != nil {
		return nil, fmt.Errorf("build event rate sampler: %w", err)
	}
	if err := catalog.AddRate("event_rate", eventRate); err != nil {
		return nil, err
	}
	rateMon, err := engine.MakeRateMonitor(a,
		[]param.Pipe{mean.Outputs[0]}, []int{0},
		[]*rate.Sampler{eventRate}, engine.OpRateMonitorFlowRate)
	if err != nil {
		return nil, fmt.Errorf("build event rate monitor: %w", err)
	}
	if err := sys.AddOperator(demoEventIndex, 2, rateMon); err != nil {
		return nil, err
	}

	demo := &demoAnalysis{}
	if cfg.Export {
		demo.exportFile = filepath.Join(cfg.OutputDir, "amplitudes.vmex")
		exportOp, err := engine.MakeExportSink(engine.OpExportSinkSparse,
			demo.exportFile, 6, []param.Pipe{amplitudes}, param.Pipe{}, -1)
		if err != nil {
			return nil, fmt.Errorf("build export sink: %w", err)
		}
		if err := sys.AddOperator(demoEventIndex, 2, exportOp); err != nil {
			return nil, err
		}
		demo.exportOp = exportOp
	}

	return demo, nil
}
