package scan

import (
	"github.com/protonlab/scantime/schema"
	"gonum.org/v1/gonum/floats"
)

// UserDoseRateRange is the nominal dynamic range of the dose monitor.
const UserDoseRateRange = 200

// dynamicRangeMargin widens the smallest weight when estimating the effective range.
const dynamicRangeMargin = 1.2

// Summarize computes layer diagnostics and stores them on the layer.
// It expects ComputeLayer to have run already.
func Summarize(layer *schema.Layer, lim Limits) *schema.LayerStats {
	stats := &schema.LayerStats{}
	segs := layer.Segments

	weights := make([]float64, len(segs))
	for i, seg := range segs {
		weights[i] = seg.Weight
	}
	stats.WeightSum = floats.Sum(weights)
	stats.MUDelta = layer.TotalMU - stats.WeightSum

	var candidates []float64
	for i := 1; i < len(segs); i++ {
		if segs[i].Distance > 0 {
			candidates = append(candidates, lim.MaxSpeed*segs[i].Weight/segs[i].Distance)
		}
		if segs[i].Speed < lim.MinSpeed {
			stats.SlowSegments++
		}
	}
	if len(candidates) > 0 {
		stats.MaxCandidate = floats.Max(candidates)
		stats.MinCandidate = floats.Min(candidates)
		stats.MaxOverUserRange = stats.MaxCandidate / UserDoseRateRange
	}

	if len(weights) > 1 {
		if denom := dynamicRangeMargin * floats.Min(weights[1:]); denom > 0 {
			stats.DReff = floats.Max(weights) / denom
		}
	}
	if stats.DReff > 0 {
		stats.MaxOverDReff = stats.MaxCandidate / stats.DReff
	}

	layer.Stats = stats
	return stats
}
