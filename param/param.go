// Package param defines the parameter value encoding and the vector and
// pipe types that flow between data sources, operators and sinks.
//
// A parameter is a float64. "No data this event" is encoded as a quiet NaN
// carrying an optional integer payload. Ordinary arithmetic NaNs are treated
// as invalid too, so IsValid reduces to a NaN check and invalid values
// propagate through arithmetic for free.
package param

import (
	"math"

	"github.com/c360/vmeflow/arena"
)

// VecAlignment is the byte alignment of every parameter vector.
const VecAlignment = 64

const (
	quietNaNBits = 0x7FF8000000000000
	payloadMask  = 0x0007FFFFFFFFFFFF
)

// Invalid returns the invalid parameter value with a zero payload.
func Invalid() float64 {
	return math.Float64frombits(quietNaNBits)
}

// InvalidWith returns an invalid parameter value carrying the given payload.
// Payloads wider than 51 bits are truncated.
func InvalidWith(payload uint64) float64 {
	return math.Float64frombits(quietNaNBits | payload&payloadMask)
}

// IsValid reports whether p carries data. Any NaN is invalid, whether it is
// the reserved encoding or the result of ordinary arithmetic.
func IsValid(p float64) bool {
	return !math.IsNaN(p)
}

// Payload extracts the payload of an invalid value. ok is false when p is a
// regular number and carries no payload.
func Payload(p float64) (payload uint64, ok bool) {
	if !math.IsNaN(p) {
		return 0, false
	}
	return math.Float64bits(p) & payloadMask, true
}

// Vec is a parameter vector. Vectors are allocated from an Arena at graph
// construction time and reused for every event.
type Vec []float64

// Invalidate sets every element to the invalid value.
func (v Vec) Invalidate() {
	inv := Invalid()
	for i := range v {
		v[i] = inv
	}
}

// Fill sets every element to x.
func (v Vec) Fill(x float64) {
	for i := range v {
		v[i] = x
	}
}

// ValidCount returns the number of valid elements.
func (v Vec) ValidCount() int {
	n := 0
	for _, p := range v {
		if IsValid(p) {
			n++
		}
	}
	return n
}

// Pipe bundles a data vector with its limit vectors. The three vectors of a
// pipe always have the same length.
type Pipe struct {
	Data        Vec
	LowerLimits Vec
	UpperLimits Vec
}

// Size returns the element count of the pipe.
func (p Pipe) Size() int { return len(p.Data) }

// PushVec allocates an invalid-filled vector of the given size.
func PushVec(a *arena.Arena, size int) (Vec, error) {
	v, err := arena.Push[float64](a, size, VecAlignment)
	if err != nil {
		return nil, err
	}
	vec := Vec(v)
	vec.Invalidate()
	return vec, nil
}

// PushVecFill allocates a vector of the given size filled with value.
func PushVecFill(a *arena.Arena, size int, value float64) (Vec, error) {
	v, err := arena.Push[float64](a, size, VecAlignment)
	if err != nil {
		return nil, err
	}
	vec := Vec(v)
	vec.Fill(value)
	return vec, nil
}

// PushPipe allocates a pipe of the given size with all three vectors filled
// with the invalid value. Callers assign the limits afterwards.
func PushPipe(a *arena.Arena, size int) (Pipe, error) {
	data, err := PushVec(a, size)
	if err != nil {
		return Pipe{}, err
	}
	ll, err := PushVec(a, size)
	if err != nil {
		return Pipe{}, err
	}
	ul, err := PushVec(a, size)
	if err != nil {
		return Pipe{}, err
	}
	return Pipe{Data: data, LowerLimits: ll, UpperLimits: ul}, nil
}

// Interval is a closed range of parameter values used by filters, aggregate
// threshold windows and interval conditions.
type Interval struct {
	Min float64
	Max float64
}

// Contains reports whether x lies inside the interval, bounds included.
func (iv Interval) Contains(x float64) bool {
	return iv.Min <= x && x <= iv.Max
}

// ContainsValid reports whether x is a valid parameter inside the interval.
func (iv Interval) ContainsValid(x float64) bool {
	return IsValid(x) && iv.Min <= x && x <= iv.Max
}

// Resolve replaces NaN bounds with the data's own extremes: a NaN Min
// becomes the smallest lower limit, a NaN Max the largest upper limit.
// Called once at graph construction.
func (iv Interval) Resolve(lowerLimits, upperLimits Vec) Interval {
	out := iv
	if math.IsNaN(out.Min) && len(lowerLimits) > 0 {
		m := lowerLimits[0]
		for _, v := range lowerLimits[1:] {
			if v < m {
				m = v
			}
		}
		out.Min = m
	}
	if math.IsNaN(out.Max) && len(upperLimits) > 0 {
		m := upperLimits[0]
		for _, v := range upperLimits[1:] {
			if v > m {
				m = v
			}
		}
		out.Max = m
	}
	return out
}
