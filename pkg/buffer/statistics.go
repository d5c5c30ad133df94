package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity. Everything is atomic so recording
// never blocks the data path, and readers see a live view.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	size      atomic.Int64
	highWater atomic.Int64
	started   atomic.Int64 // unix nanos
}

// NewStatistics creates a tracker with the clock started now.
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.started.Store(time.Now().UnixNano())
	return s
}

// Write records a write operation.
func (s *Statistics) Write() { s.writes.Add(1) }

// Read records a read operation.
func (s *Statistics) Read() { s.reads.Add(1) }

// Peek records a peek operation.
func (s *Statistics) Peek() { s.peeks.Add(1) }

// Overflow records the buffer hitting capacity.
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Drop records an item discarded by the overflow policy.
func (s *Statistics) Drop() { s.drops.Add(1) }

// UpdateSize records the current item count and advances the high-water
// mark when size exceeds it.
func (s *Statistics) UpdateSize(size int64) {
	s.size.Store(size)
	for {
		hw := s.highWater.Load()
		if size <= hw || s.highWater.CompareAndSwap(hw, size) {
			return
		}
	}
}

// Writes returns the total number of write operations.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the total number of read operations.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Peeks returns the total number of peek operations.
func (s *Statistics) Peeks() int64 { return s.peeks.Load() }

// Overflows returns how often the buffer hit capacity.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops returns the total number of discarded items.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the item count as of the last update.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the most items the buffer has held.
func (s *Statistics) MaxSize() int64 { return s.highWater.Load() }

// Throughput returns the average number of writes per second since the
// tracker started.
func (s *Statistics) Throughput() float64 {
	elapsed := time.Since(time.Unix(0, s.started.Load()))
	if elapsed <= 0 {
		return 0
	}
	return float64(s.writes.Load()) / elapsed.Seconds()
}

// DropRate returns the fraction of writes that were dropped, 0 to 1.
func (s *Statistics) DropRate() float64 {
	writes := s.writes.Load()
	if writes == 0 {
		return 0
	}
	return float64(s.drops.Load()) / float64(writes)
}

// Uptime returns how long the tracker has been running.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(time.Unix(0, s.started.Load()))
}

// Reset zeroes all counters and restarts the clock.
func (s *Statistics) Reset() {
	s.writes.Store(0)
	s.reads.Store(0)
	s.peeks.Store(0)
	s.overflows.Store(0)
	s.drops.Store(0)
	s.size.Store(0)
	s.highWater.Store(0)
	s.started.Store(time.Now().UnixNano())
}

// StatsSummary is a point-in-time snapshot of all statistics.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Peeks       int64         `json:"peeks"`
	Overflows   int64         `json:"overflows"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Throughput  float64       `json:"throughput"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Peeks:       s.Peeks(),
		Overflows:   s.Overflows(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Throughput:  s.Throughput(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
