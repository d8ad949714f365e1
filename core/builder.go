package core

import (
	"fmt"
	"math"

	"github.com/protonlab/scantime/core/codec"
	"github.com/protonlab/scantime/schema"
	"gonum.org/v1/gonum/floats"
)

// planUnitScale converts plan geometry (mm) to timeline geometry (cm).
const planUnitScale = 0.1

// LayerBuilder turns one layer record into a layer ready for the scan-time engine.
// Steps are chained; the first failure short-circuits the rest and is returned by Build.
type LayerBuilder struct {
	decoder    codec.SpotDecoder
	record     *schema.LayerRecord
	beamNumber int
	beamName   string

	// Internal data collected during the build process
	points  []schema.Point
	weights []float64
	layer   *schema.Layer
	err     error
}

// NewLayerBuilder is the starting point for building a layer.
func NewLayerBuilder(decoder codec.SpotDecoder, record *schema.LayerRecord) *LayerBuilder {
	return &LayerBuilder{
		decoder: decoder,
		record:  record,
		layer: &schema.Layer{
			Number:        record.Number,
			ControlPoint:  record.ControlPoint,
			Energy:        record.Energy,
			CumWeightNow:  record.CumWeightNow,
			CumWeightNext: record.CumWeightNext,
			NumPositions:  record.NumPositions,
			TuneID:        record.TuneID,
		},
	}
}

// ForBeam labels errors with the owning beam.
func (b *LayerBuilder) ForBeam(number int, name string) *LayerBuilder {
	b.beamNumber = number
	b.beamName = name
	return b
}

// DecodeSpots decodes the position and weight streams.
func (b *LayerBuilder) DecodeSpots() *LayerBuilder {
	if b.err != nil {
		return b
	}
	switch {
	case b.record.PositionMap == nil:
		b.err = fmt.Errorf("%w: missing position map", ErrIncompleteLayerRecord)
		return b
	case b.record.WeightMap == nil:
		b.err = fmt.Errorf("%w: missing weight map", ErrIncompleteLayerRecord)
		return b
	}

	points, err := b.decoder.DecodePositions(b.record.PositionMap)
	if err != nil {
		b.err = err
		return b
	}
	weights, err := b.decoder.DecodeWeights(b.record.WeightMap)
	if err != nil {
		b.err = err
		return b
	}
	if len(points) != len(weights) {
		b.err = fmt.Errorf("%w: %d positions but %d weights", ErrIncompleteLayerRecord, len(points), len(weights))
		return b
	}
	b.points = points
	b.weights = weights
	return b
}

// BuildSegments creates one segment per spot with the distance to the previous spot.
func (b *LayerBuilder) BuildSegments() *LayerBuilder {
	if b.err != nil {
		return b
	}
	segments := make([]schema.LineSegment, len(b.points))
	for i, p := range b.points {
		segments[i] = schema.LineSegment{
			Position: p,
			Weight:   b.weights[i],
			Energy:   b.layer.Energy,
		}
		if i > 0 {
			prev := b.points[i-1]
			segments[i].Distance = math.Hypot(p.X-prev.X, p.Y-prev.Y)
		}
	}
	b.layer.Segments = segments
	return b
}

// ComputeTotalMU sets the layer MU from the cumulative meterset weights, rounded to 3 decimals.
func (b *LayerBuilder) ComputeTotalMU() *LayerBuilder {
	if b.err != nil {
		return b
	}
	b.layer.TotalMU = math.RoundToEven((b.layer.CumWeightNext-b.layer.CumWeightNow)*1000) / 1000
	return b
}

// NormalizeWeights rescales spot weights so they sum to the layer meterset delta.
// A layer whose weights sum to zero gets all-zero weights.
func (b *LayerBuilder) NormalizeWeights(enabled bool) *LayerBuilder {
	if b.err != nil || !enabled {
		return b
	}
	segs := b.layer.Segments
	weights := make([]float64, len(segs))
	for i := range segs {
		weights[i] = segs[i].Weight
	}
	sum := floats.Sum(weights)
	delta := b.layer.CumWeightNext - b.layer.CumWeightNow
	for i := range segs {
		if sum > 0 {
			segs[i].Weight = weights[i] / sum * delta
		} else {
			segs[i].Weight = 0
		}
	}
	return b
}

// AttachMLC pairs the leaf positions of the layer as (bank A, bank B) in cm.
func (b *LayerBuilder) AttachMLC() *LayerBuilder {
	if b.err != nil || len(b.record.MLCLeafPositions) == 0 {
		return b
	}
	leaves := b.record.MLCLeafPositions
	half := len(leaves) / 2
	pairs := make([]schema.Point, half)
	for i := range half {
		pairs[i] = schema.Point{
			X: leaves[i] * planUnitScale,
			Y: leaves[i+half] * planUnitScale,
		}
	}
	b.layer.MLCPositions = pairs
	return b
}

// Build returns the layer or the first error, wrapped in a LayerError.
func (b *LayerBuilder) Build() (*schema.Layer, error) {
	if b.err != nil {
		return nil, &LayerError{
			BeamNumber: b.beamNumber,
			BeamName:   b.beamName,
			LayerIndex: b.record.ControlPoint,
			Err:        b.err,
		}
	}
	return b.layer, nil
}

// PortBuilder assembles a port from a beam record.
type PortBuilder struct {
	decoder   codec.SpotDecoder
	record    *schema.BeamRecord
	strict    bool
	normalize bool

	port *schema.Port
	err  error
}

// NewPortBuilder is the starting point for building a port.
func NewPortBuilder(decoder codec.SpotDecoder, record *schema.BeamRecord) *PortBuilder {
	return &PortBuilder{
		decoder: decoder,
		record:  record,
		port: &schema.Port{
			BeamNumber:  record.Number,
			BeamName:    record.Name,
			Description: record.Description,
			MachineName: record.MachineName,
		},
	}
}

// Strict makes the first failing layer abort the port instead of being skipped.
func (b *PortBuilder) Strict(strict bool) *PortBuilder {
	b.strict = strict
	return b
}

// NormalizeWeights enables per-layer weight normalization.
func (b *PortBuilder) NormalizeWeights(enabled bool) *PortBuilder {
	b.normalize = enabled
	return b
}

// AttachAperture converts the block outline to (x, y) points in cm.
func (b *PortBuilder) AttachAperture() *PortBuilder {
	if b.record.NumberOfBlocks <= 0 || len(b.record.BlockData) < 2 {
		return b
	}
	data := b.record.BlockData
	outline := make([]schema.Point, len(data)/2)
	for i := range outline {
		outline[i] = schema.Point{
			X: data[2*i] * planUnitScale,
			Y: data[2*i+1] * planUnitScale,
		}
	}
	b.port.Aperture = outline
	return b
}

// AttachMLCY copies the leaf boundaries of a mounted MLC.
func (b *PortBuilder) AttachMLCY() *PortBuilder {
	if b.record.HasMLC {
		b.port.MLCY = append([]float64(nil), b.record.LeafBoundaries...)
	}
	return b
}

// BuildLayers builds every layer of the beam.
func (b *PortBuilder) BuildLayers() *PortBuilder {
	if b.err != nil {
		return b
	}
	layers := make([]*schema.Layer, 0, len(b.record.Layers))
	for i := range b.record.Layers {
		rec := &b.record.Layers[i]
		layer, err := NewLayerBuilder(b.decoder, rec).
			ForBeam(b.record.Number, b.record.Name).
			DecodeSpots().
			BuildSegments().
			ComputeTotalMU().
			NormalizeWeights(b.normalize).
			AttachMLC().
			Build()
		if err != nil {
			if b.strict {
				b.err = err
				return b
			}
			b.port.SkippedLayers = append(b.port.SkippedLayers, schema.SkippedLayer{
				ControlPoint: rec.ControlPoint,
				Reason:       err.Error(),
			})
			continue
		}
		layers = append(layers, layer)
	}
	b.port.Layers = layers
	return b
}

// Build returns the port or the error that aborted it.
func (b *PortBuilder) Build() (*schema.Port, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.port, nil
}
