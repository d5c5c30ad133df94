// Package rate provides samplers that turn counter observations into
// rates and retain a bounded history of recent values.
//
// A Sampler supports two input styles. Sample takes an absolute counter
// reading and derives the rate from the difference to the previous
// reading, clamping negative deltas to zero so counter resets do not
// produce negative rates. Record takes a rate that was already computed
// elsewhere. Both paths apply the configured scale and offset before the
// value enters the history.
package rate

import (
	"sync"

	"github.com/c360/vmeflow/pkg/buffer"
)

// DefaultHistorySize is the rate history capacity used when a
// SamplerConfig does not specify one. At one sample per second this
// retains an hour of rates.
const DefaultHistorySize = 3600

// SamplerConfig configures a Sampler. Zero values select defaults.
type SamplerConfig struct {
	// Scale multiplies every recorded rate. Zero means 1.0.
	Scale float64

	// Offset is added to every recorded rate after scaling.
	Offset float64

	// Interval is the time in seconds between counter samples and is
	// the divisor when deriving a rate from a counter delta. Zero
	// means 1.0.
	Interval float64

	// HistorySize is the capacity of the retained rate history. Zero
	// means DefaultHistorySize.
	HistorySize int
}

// Sampler converts counter samples into rates and keeps a sliding
// window of recent rate values. Safe for concurrent use.
type Sampler struct {
	mu sync.Mutex

	scale    float64
	offset   float64
	interval float64

	lastValue float64
	lastDelta float64
	lastRate  float64
	total     int64

	history *buffer.CircularBuffer[float64]
}

// NewSampler creates a Sampler from the given config.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if cfg.Scale == 0 {
		cfg.Scale = 1.0
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1.0
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}

	history, err := buffer.NewCircularBuffer[float64](cfg.HistorySize)
	if err != nil {
		return nil, err
	}

	return &Sampler{
		scale:    cfg.Scale,
		offset:   cfg.Offset,
		interval: cfg.Interval,
		history:  history,
	}, nil
}

// Sample records an absolute counter reading. The rate is the delta to
// the previous reading divided by the sampling interval; a decreasing
// counter yields a zero delta.
func (s *Sampler) Sample(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := value - s.lastValue
	if delta < 0 {
		delta = 0
	}
	s.record(delta / s.interval)
	s.lastValue = value
	s.lastDelta = delta
}

// Record stores a rate that was computed externally.
func (s *Sampler) Record(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)
}

// record applies scale and offset and pushes into the history.
// Callers hold the lock.
func (s *Sampler) record(r float64) {
	s.lastRate = r*s.scale + s.offset
	s.history.Write(s.lastRate)
	s.total++
}

// LastRate returns the most recently recorded rate after scaling.
func (s *Sampler) LastRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRate
}

// LastValue returns the most recent absolute counter reading seen by
// Sample.
func (s *Sampler) LastValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastValue
}

// LastDelta returns the clamped delta of the most recent Sample call.
func (s *Sampler) LastDelta() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelta
}

// TotalSamples returns the number of rates recorded over the sampler's
// lifetime, including those already evicted from the history.
func (s *Sampler) TotalSamples() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Interval returns the configured sampling interval in seconds.
func (s *Sampler) Interval() float64 {
	return s.interval
}

// History returns a copy of the retained rates, oldest first.
func (s *Sampler) History() []float64 {
	return s.history.Snapshot()
}

// Close releases the history buffer.
func (s *Sampler) Close() error {
	return s.history.Close()
}
