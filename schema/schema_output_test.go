package schema_test

import (
	"testing"

	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *schema.Plan {
	return &schema.Plan{
		Ports: []*schema.Port{
			{
				BeamNumber:  1,
				BeamName:    "RAO",
				MachineName: "GTR1",
				Layers: []*schema.Layer{
					{
						Number:        1,
						ControlPoint:  0,
						Energy:        150,
						TotalMU:       3,
						LayerDoseRate: 100,
						Clamp:         schema.ClampCeiling,
						TotalScanTime: 0.03,
						Stats:         &schema.LayerStats{DReff: 1.5, SlowSegments: 1},
						Segments: []schema.LineSegment{
							{Position: schema.Point{X: 0, Y: 0}},
							{Position: schema.Point{X: 1, Y: 0}, Weight: 2, Distance: 1, RoundedScanTime: 0.02, Speed: 50},
						},
					},
					{Number: 2, ControlPoint: 2, Energy: 140, TotalMU: 1.5, Clamp: schema.ClampDegenerate},
				},
				SkippedLayers: []schema.SkippedLayer{{ControlPoint: 4, Reason: "incomplete"}},
				TotalScanTime: 0.03,
			},
			{BeamNumber: 2, BeamName: "LAO"},
		},
	}
}

func TestFlattenSegments(t *testing.T) {
	rows := schema.FlattenSegments(samplePlan())
	require.Len(t, rows, 2)

	assert.Equal(t, 0, rows[0].Segment)
	assert.Equal(t, 1, rows[1].Segment)
	assert.Equal(t, "RAO", rows[1].BeamName)
	assert.Equal(t, 150.0, rows[1].Energy)
	assert.Equal(t, 100.0, rows[1].LayerDoseRate)
	assert.Equal(t, 1.0, rows[1].X)
	assert.Equal(t, 0.02, rows[1].RoundedScanTime)
	assert.Equal(t, 50.0, rows[1].Speed)
}

func TestFlattenLayers(t *testing.T) {
	rows := schema.FlattenLayers(samplePlan())
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Segments)
	assert.Equal(t, schema.ClampCeiling, rows[0].Clamp)
	assert.Equal(t, 1.5, rows[0].DReff)
	assert.Equal(t, 1, rows[0].SlowSegments)

	// Layers without stats keep zero diagnostics.
	assert.Equal(t, 2, rows[1].Layer)
	assert.Zero(t, rows[1].DReff)
}

func TestSummarizePorts(t *testing.T) {
	rows := schema.SummarizePorts(samplePlan())
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Layers)
	assert.Equal(t, 1, rows[0].Skipped)
	assert.Equal(t, 2, rows[0].Segments)
	assert.InDelta(t, 4.5, rows[0].TotalMU, 1e-12)
	assert.Equal(t, 0.03, rows[0].TotalScanTime)

	assert.Equal(t, 0, rows[1].Layers)
	assert.Zero(t, rows[1].TotalMU)
}

func TestLayerCount(t *testing.T) {
	assert.Equal(t, 2, samplePlan().LayerCount())
	assert.Equal(t, 0, (&schema.Plan{}).LayerCount())
}
