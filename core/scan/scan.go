// Package scan computes per-segment scan times and speeds of a layer.
package scan

import (
	"fmt"
	"math"

	"github.com/protonlab/scantime/schema"
	"gonum.org/v1/gonum/floats"
)

// WeightEpsilon is the weight below which a segment is a pure beam-off move.
const WeightEpsilon = 1e-7

// Limits are the machine constraints applied to every layer.
type Limits struct {
	MinDoseRate    float64 `json:"min_doserate"`    // MU/s
	MaxSpeed       float64 `json:"max_speed"`       // cm/s
	MinSpeed       float64 `json:"min_speed"`       // cm/s
	TimeResolution float64 `json:"time_resolution"` // s
}

// DefaultLimits returns the limits of the reference machine.
func DefaultLimits() Limits {
	return Limits{
		MinDoseRate:    1.4,
		MaxSpeed:       2000,
		MinSpeed:       10,
		TimeResolution: 0.0001,
	}
}

// Validate rejects limits the engine cannot work with.
func (l Limits) Validate() error {
	switch {
	case !(l.MinDoseRate > 0):
		return fmt.Errorf("min dose rate must be positive, got %v", l.MinDoseRate)
	case !(l.MaxSpeed > 0):
		return fmt.Errorf("max speed must be positive, got %v", l.MaxSpeed)
	case !(l.MinSpeed > 0):
		return fmt.Errorf("min speed must be positive, got %v", l.MinSpeed)
	case l.MinSpeed > l.MaxSpeed:
		return fmt.Errorf("min speed %v exceeds max speed %v", l.MinSpeed, l.MaxSpeed)
	case !(l.TimeResolution > 0):
		return fmt.Errorf("time resolution must be positive, got %v", l.TimeResolution)
	}
	return nil
}

// Quantize snaps t to the nearest multiple of resolution, ties to even.
func Quantize(t, resolution float64) float64 {
	if !(resolution > 0) {
		return t
	}
	return resolution * math.RoundToEven(t/resolution)
}

// ResolveDoseRate clamps the bottleneck rate m into [minRate, ceiling].
// The floor is checked first, so a ceiling below minRate never wins.
func ResolveDoseRate(m, ceiling, minRate float64) (float64, schema.DoseRateClamp) {
	switch {
	case m < minRate:
		return minRate, schema.ClampFloor
	case m > ceiling:
		return ceiling, schema.ClampCeiling
	default:
		return m, schema.ClampBottleneck
	}
}

// ComputeLayer fills the engine fields of every segment and the layer totals.
// Layers with fewer than two segments are left untouched apart from their tags.
func ComputeLayer(layer *schema.Layer, ceiling float64, lim Limits) {
	layer.Ceiling = ceiling

	n := len(layer.Segments)
	if n <= 1 {
		layer.TotalScanTime = 0
		layer.LayerDoseRate = 0
		layer.Clamp = schema.ClampDegenerate
		return
	}

	candidates := make([]float64, n-1)
	for i := 1; i < n; i++ {
		seg := &layer.Segments[i]
		seg.MUPerDist = 0
		if seg.Distance > 0 {
			seg.MUPerDist = seg.Weight / seg.Distance
		}
		candidates[i-1] = lim.MaxSpeed * seg.MUPerDist
	}

	rate, clamp := ResolveDoseRate(floats.Min(candidates), ceiling, lim.MinDoseRate)
	available := rate > 0
	if !available {
		rate = 0
		clamp = schema.ClampUnavailable
	}

	rounded := make([]float64, n)
	for i := 1; i < n; i++ {
		seg := &layer.Segments[i]
		seg.DoseRate = rate

		switch {
		case seg.Weight < WeightEpsilon:
			seg.RawScanTime = seg.Distance / lim.MaxSpeed
		case available:
			seg.RawScanTime = seg.Weight / rate
		default:
			seg.RawScanTime = 0
		}
		seg.RoundedScanTime = Quantize(seg.RawScanTime, lim.TimeResolution)
		rounded[i] = seg.RoundedScanTime

		if seg.MUPerDist > 0 {
			seg.Speed = rate / seg.MUPerDist
		} else {
			seg.Speed = lim.MaxSpeed
		}
	}

	layer.LayerDoseRate = rate
	layer.Clamp = clamp
	layer.TotalScanTime = floats.Sum(rounded)
}
