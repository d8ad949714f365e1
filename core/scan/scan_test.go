package scan_test

import (
	"math"
	"testing"

	"github.com/protonlab/scantime/core/scan"
	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-12

func segments(distances, weights []float64) []schema.LineSegment {
	segs := make([]schema.LineSegment, len(distances))
	for i := range distances {
		segs[i] = schema.LineSegment{Distance: distances[i], Weight: weights[i]}
	}
	return segs
}

func TestComputeLayerReferenceScenario(t *testing.T) {
	layer := &schema.Layer{
		Energy:   150,
		Segments: segments([]float64{0, 1, 1}, []float64{0, 2, 1}),
	}

	scan.ComputeLayer(layer, 100, scan.DefaultLimits())

	assert.Equal(t, 100.0, layer.LayerDoseRate)
	assert.Equal(t, schema.ClampCeiling, layer.Clamp)
	assert.Equal(t, 100.0, layer.Ceiling)

	s1 := layer.Segments[1]
	assert.Equal(t, 2.0, s1.MUPerDist)
	assert.Equal(t, 100.0, s1.DoseRate)
	assert.InDelta(t, 0.02, s1.RawScanTime, tol)
	assert.InDelta(t, 0.02, s1.RoundedScanTime, tol)
	assert.InDelta(t, 50.0, s1.Speed, tol)

	s2 := layer.Segments[2]
	assert.Equal(t, 1.0, s2.MUPerDist)
	assert.InDelta(t, 0.01, s2.RoundedScanTime, tol)
	assert.InDelta(t, 100.0, s2.Speed, tol)

	assert.Zero(t, layer.Segments[0].RoundedScanTime)
	assert.InDelta(t, 0.03, layer.TotalScanTime, tol)
}

func TestComputeLayerClamp(t *testing.T) {
	lim := scan.DefaultLimits()
	tests := []struct {
		name         string
		weights      []float64
		ceiling      float64
		expectedRate float64
		expectedTag  schema.DoseRateClamp
	}{
		// candidate = 2000 * w / 1
		{"Floor", []float64{0, 0.0001}, 100, lim.MinDoseRate, schema.ClampFloor},
		{"Ceiling", []float64{0, 1}, 100, 100, schema.ClampCeiling},
		{"Bottleneck", []float64{0, 0.01}, 100, 20, schema.ClampBottleneck},
		{"Exactly Ceiling", []float64{0, 0.05}, 100, 100, schema.ClampBottleneck},
		{"Floor Beats Low Ceiling", []float64{0, 0.0001}, 1, lim.MinDoseRate, schema.ClampFloor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := &schema.Layer{Segments: segments([]float64{0, 1}, tt.weights)}
			scan.ComputeLayer(layer, tt.ceiling, lim)
			assert.InDelta(t, tt.expectedRate, layer.LayerDoseRate, tol)
			assert.Equal(t, tt.expectedTag, layer.Clamp)
		})
	}
}

func TestComputeLayerRateWithinBounds(t *testing.T) {
	lim := scan.DefaultLimits()
	weights := []float64{0, 0.3, 0.002, 1.7, 0.04, 12}
	distances := []float64{0, 0.5, 0.7, 0.1, 2.5, 0.3}

	for _, ceiling := range []float64{5, 50, 500, 5000} {
		layer := &schema.Layer{Segments: segments(distances, weights)}
		scan.ComputeLayer(layer, ceiling, lim)
		assert.GreaterOrEqual(t, layer.LayerDoseRate, math.Min(lim.MinDoseRate, ceiling))
		assert.LessOrEqual(t, layer.LayerDoseRate, math.Max(lim.MinDoseRate, ceiling))
	}
}

func TestComputeLayerDegenerate(t *testing.T) {
	for _, n := range []int{0, 1} {
		layer := &schema.Layer{Segments: make([]schema.LineSegment, n), TotalScanTime: 9, LayerDoseRate: 9}
		scan.ComputeLayer(layer, 100, scan.DefaultLimits())
		assert.Zero(t, layer.TotalScanTime)
		assert.Zero(t, layer.LayerDoseRate)
		assert.Equal(t, schema.ClampDegenerate, layer.Clamp)
	}
}

func TestComputeLayerBeamOffMove(t *testing.T) {
	layer := &schema.Layer{Segments: segments([]float64{0, 4, 1}, []float64{0, 0, 1})}
	scan.ComputeLayer(layer, 100, scan.DefaultLimits())

	// Zero weight: pure move at max speed, and the bottleneck candidate is 0.
	assert.Equal(t, schema.ClampFloor, layer.Clamp)
	assert.InDelta(t, 0.002, layer.Segments[1].RoundedScanTime, tol)
	assert.Equal(t, 2000.0, layer.Segments[1].Speed)
}

func TestComputeLayerZeroDistance(t *testing.T) {
	layer := &schema.Layer{Segments: segments([]float64{0, 0}, []float64{0, 1.4})}
	scan.ComputeLayer(layer, 100, scan.DefaultLimits())

	assert.Zero(t, layer.Segments[1].MUPerDist)
	assert.Equal(t, 2000.0, layer.Segments[1].Speed)
	assert.InDelta(t, 1.0, layer.Segments[1].RoundedScanTime, tol)
}

func TestComputeLayerUnavailableCeiling(t *testing.T) {
	layer := &schema.Layer{Segments: segments([]float64{0, 1, 2}, []float64{0, 1, 3})}
	scan.ComputeLayer(layer, 0, scan.DefaultLimits())

	assert.Equal(t, schema.ClampUnavailable, layer.Clamp)
	assert.Zero(t, layer.LayerDoseRate)
	assert.Zero(t, layer.Segments[1].RoundedScanTime)
	assert.Zero(t, layer.Segments[2].RoundedScanTime)
	assert.Zero(t, layer.TotalScanTime)
	for _, seg := range layer.Segments {
		assert.False(t, math.IsNaN(seg.Speed) || math.IsInf(seg.Speed, 0))
		assert.False(t, math.IsNaN(seg.RawScanTime) || math.IsInf(seg.RawScanTime, 0))
	}
}

func TestComputeLayerTotalIsSumOfRounded(t *testing.T) {
	layer := &schema.Layer{Segments: segments(
		[]float64{0, 0.31, 0.27, 1.9, 0.05},
		[]float64{0.1, 0.123456, 0.000001, 0.5, 0.0333},
	)}
	scan.ComputeLayer(layer, 80, scan.DefaultLimits())

	sum := 0.0
	for _, seg := range layer.Segments {
		sum += seg.RoundedScanTime
	}
	assert.InDelta(t, sum, layer.TotalScanTime, tol)
}

func TestQuantize(t *testing.T) {
	res := 0.0001
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{"Already On Grid", 0.02, 0.02},
		{"Round Down", 0.00014, 0.0001},
		{"Round Up", 0.00016, 0.0002},
		{"Large Value", 0.5, 0.5},
		{"Zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scan.Quantize(tt.in, res), tol)
		})
	}

	// Exact binary ties go to even.
	assert.Equal(t, 2.0, scan.Quantize(2.5, 1))
	assert.Equal(t, 4.0, scan.Quantize(3.5, 1))

	// A non-positive grid leaves the value alone.
	assert.Equal(t, 0.123, scan.Quantize(0.123, 0))
}

func TestQuantizeIdempotent(t *testing.T) {
	res := 0.0001
	for _, v := range []float64{0, 0.00005, 0.0123456, 1.99999, 37.123456789, 1e-9} {
		once := scan.Quantize(v, res)
		assert.Equal(t, once, scan.Quantize(once, res), "value %v", v)
	}
}

func TestLimitsValidate(t *testing.T) {
	require.NoError(t, scan.DefaultLimits().Validate())

	bad := []scan.Limits{
		{MinDoseRate: 0, MaxSpeed: 2000, MinSpeed: 10, TimeResolution: 1e-4},
		{MinDoseRate: 1.4, MaxSpeed: -1, MinSpeed: 10, TimeResolution: 1e-4},
		{MinDoseRate: 1.4, MaxSpeed: 2000, MinSpeed: 3000, TimeResolution: 1e-4},
		{MinDoseRate: 1.4, MaxSpeed: 2000, MinSpeed: 10, TimeResolution: 0},
		{MinDoseRate: math.NaN(), MaxSpeed: 2000, MinSpeed: 10, TimeResolution: 1e-4},
	}
	for _, lim := range bad {
		assert.Error(t, lim.Validate())
	}
}

func TestSummarize(t *testing.T) {
	layer := &schema.Layer{
		TotalMU:  3.001,
		Segments: segments([]float64{0, 1, 1}, []float64{0.6, 2, 1}),
	}
	lim := scan.DefaultLimits()
	scan.ComputeLayer(layer, 100, lim)
	stats := scan.Summarize(layer, lim)

	require.Same(t, stats, layer.Stats)
	assert.InDelta(t, 3.6, stats.WeightSum, tol)
	assert.InDelta(t, 3.001-3.6, stats.MUDelta, tol)
	assert.InDelta(t, 4000, stats.MaxCandidate, tol)
	assert.InDelta(t, 2000, stats.MinCandidate, tol)
	assert.InDelta(t, 20, stats.MaxOverUserRange, tol)
	assert.InDelta(t, 2/1.2, stats.DReff, tol)
	assert.InDelta(t, 4000/(2/1.2), stats.MaxOverDReff, 1e-9)
	assert.Zero(t, stats.SlowSegments)
}

func TestSummarizeSlowAndDegenerate(t *testing.T) {
	lim := scan.DefaultLimits()

	// Rate clamps to the ceiling 1.5 and mu/cm is 1, so the spot is crossed at 1.5 cm/s.
	slow := &schema.Layer{Segments: segments([]float64{0, 1}, []float64{0, 1})}
	scan.ComputeLayer(slow, 1.5, lim)
	assert.Equal(t, 1, scan.Summarize(slow, lim).SlowSegments)

	single := &schema.Layer{TotalMU: 1, Segments: segments([]float64{0}, []float64{1})}
	scan.ComputeLayer(single, 100, lim)
	stats := scan.Summarize(single, lim)
	assert.Zero(t, stats.DReff)
	assert.Zero(t, stats.MaxCandidate)
	assert.InDelta(t, 0, stats.MUDelta, tol)
}
