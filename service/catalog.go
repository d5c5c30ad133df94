package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/vmeflow/histo"
	"github.com/c360/vmeflow/rate"
)

// Catalog is the name registry the monitor serves from. Analysis code
// registers histograms and rate samplers under unique names while the
// graph is built, before the run starts.
//
// Registration is guarded, but reading histogram contents is not:
// snapshot methods must run between events, via the stream worker's
// Snapshot hook, never concurrently with processing.
type Catalog struct {
	mu    sync.RWMutex
	h1ds  map[string]*histo.H1D
	h2ds  map[string]*histo.H2D
	rates map[string]*rate.Sampler
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		h1ds:  make(map[string]*histo.H1D),
		h2ds:  make(map[string]*histo.H2D),
		rates: make(map[string]*rate.Sampler),
	}
}

// AddH1D registers a 1D histogram under a unique name
func (c *Catalog) AddH1D(name string, h *histo.H1D) error {
	if name == "" || h == nil {
		return fmt.Errorf("catalog: h1d registration needs a name and a histogram")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(name) {
		return fmt.Errorf("catalog: name %q already registered", name)
	}
	c.h1ds[name] = h
	return nil
}

// AddH2D registers a 2D histogram under a unique name
func (c *Catalog) AddH2D(name string, h *histo.H2D) error {
	if name == "" || h == nil {
		return fmt.Errorf("catalog: h2d registration needs a name and a histogram")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(name) {
		return fmt.Errorf("catalog: name %q already registered", name)
	}
	c.h2ds[name] = h
	return nil
}

// AddRate registers a rate sampler under a unique name
func (c *Catalog) AddRate(name string, s *rate.Sampler) error {
	if name == "" || s == nil {
		return fmt.Errorf("catalog: rate registration needs a name and a sampler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(name) {
		return fmt.Errorf("catalog: name %q already registered", name)
	}
	c.rates[name] = s
	return nil
}

// taken reports whether a name is in use by any entry kind.
// Caller holds the lock.
func (c *Catalog) taken(name string) bool {
	if _, ok := c.h1ds[name]; ok {
		return true
	}
	if _, ok := c.h2ds[name]; ok {
		return true
	}
	_, ok := c.rates[name]
	return ok
}

// HistoNames returns all registered histogram names, sorted
func (c *Catalog) HistoNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.h1ds)+len(c.h2ds))
	for name := range c.h1ds {
		names = append(names, name)
	}
	for name := range c.h2ds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RateNames returns all registered sampler names, sorted
func (c *Catalog) RateNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.rates))
	for name := range c.rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AxisSnapshot describes one histogram axis
type AxisSnapshot struct {
	Bins int     `json:"bins"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// HistoSnapshot is a point-in-time copy of one histogram. Kind is "h1d"
// or "h2d"; 2D data is row-major with the x axis first in Axes.
type HistoSnapshot struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Axes      []AxisSnapshot `json:"axes"`
	Entries   float64        `json:"entries"`
	Underflow float64        `json:"underflow"`
	Overflow  float64        `json:"overflow"`
	Data      []float64      `json:"data"`
}

// RateSnapshot is a point-in-time copy of one rate sampler
type RateSnapshot struct {
	Name         string    `json:"name"`
	LastValue    float64   `json:"last_value"`
	LastDelta    float64   `json:"last_delta"`
	LastRate     float64   `json:"last_rate"`
	TotalSamples int64     `json:"total_samples"`
	Interval     float64   `json:"interval_seconds"`
	History      []float64 `json:"history"`
}

// SnapshotHistos copies every registered histogram. Run between events.
func (c *Catalog) SnapshotHistos() []HistoSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snaps := make([]HistoSnapshot, 0, len(c.h1ds)+len(c.h2ds))
	for name, h := range c.h1ds {
		snaps = append(snaps, snapshotH1D(name, h))
	}
	for name, h := range c.h2ds {
		snaps = append(snaps, snapshotH2D(name, h))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// SnapshotHisto copies one histogram by name. Run between events.
func (c *Catalog) SnapshotHisto(name string) (HistoSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if h, ok := c.h1ds[name]; ok {
		return snapshotH1D(name, h), true
	}
	if h, ok := c.h2ds[name]; ok {
		return snapshotH2D(name, h), true
	}
	return HistoSnapshot{}, false
}

// SnapshotRates copies every registered rate sampler. Run between events.
func (c *Catalog) SnapshotRates() []RateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snaps := make([]RateSnapshot, 0, len(c.rates))
	for name, s := range c.rates {
		snaps = append(snaps, RateSnapshot{
			Name:         name,
			LastValue:    s.LastValue(),
			LastDelta:    s.LastDelta(),
			LastRate:     s.LastRate(),
			TotalSamples: s.TotalSamples(),
			Interval:     s.Interval(),
			History:      s.History(),
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

func snapshotH1D(name string, h *histo.H1D) HistoSnapshot {
	return HistoSnapshot{
		Name: name,
		Kind: "h1d",
		Axes: []AxisSnapshot{{
			Bins: h.BinCount(),
			Min:  h.Binning.Min,
			Max:  h.Binning.Max(),
		}},
		Entries:   h.EntryCount,
		Underflow: h.Underflow,
		Overflow:  h.Overflow,
		Data:      append([]float64(nil), h.Data...),
	}
}

func snapshotH2D(name string, h *histo.H2D) HistoSnapshot {
	return HistoSnapshot{
		Name: name,
		Kind: "h2d",
		Axes: []AxisSnapshot{
			{
				Bins: h.BinCounts[histo.XAxis],
				Min:  h.Binnings[histo.XAxis].Min,
				Max:  h.Binnings[histo.XAxis].Max(),
			},
			{
				Bins: h.BinCounts[histo.YAxis],
				Min:  h.Binnings[histo.YAxis].Min,
				Max:  h.Binnings[histo.YAxis].Max(),
			},
		},
		Entries:   h.EntryCount,
		Underflow: h.Underflow,
		Overflow:  h.Overflow,
		Data:      append([]float64(nil), h.Data...),
	}
}
