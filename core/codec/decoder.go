package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/protonlab/scantime/schema"
)

// DefaultPositionScale converts float32 positions from mm to cm.
const DefaultPositionScale = 0.1

// packedSpotWidth is the size of one spot in a packed position map.
// x lives in bytes [2:4] and y in bytes [6:8].
const packedSpotWidth = 8

// float32SpotWidth is the size of one (x, y) float32 pair.
const float32SpotWidth = 8

// SpotDecoder turns the raw private spot maps of a layer into positions and weights.
type SpotDecoder interface {
	Encoding() schema.SpotEncoding
	DecodePositions(b []byte) ([]schema.Point, error)
	DecodeWeights(b []byte) ([]float64, error)
}

// Options tunes decoder construction.
type Options struct {
	PositionScale float64 // applied to float32 positions only; zero means DefaultPositionScale
}

// NewDecoder returns the decoder for an explicit encoding tag.
func NewDecoder(tag schema.SpotEncoding, opts Options) (SpotDecoder, error) {
	switch tag {
	case schema.PackedEncoding:
		return PackedDecoder{}, nil
	case schema.Float32Encoding:
		scale := opts.PositionScale
		if scale == 0 {
			scale = DefaultPositionScale
		}
		return Float32Decoder{PositionScale: scale}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpotEncoding, tag)
	}
}

// PackedDecoder reads the proprietary packed float maps.
type PackedDecoder struct{}

var _ SpotDecoder = PackedDecoder{} // Compile-time check

// Encoding implements SpotDecoder.
func (PackedDecoder) Encoding() schema.SpotEncoding { return schema.PackedEncoding }

// DecodePositions implements SpotDecoder.
func (PackedDecoder) DecodePositions(b []byte) ([]schema.Point, error) {
	if err := checkStride(b, packedSpotWidth, "position map"); err != nil {
		return nil, err
	}
	points := make([]schema.Point, 0, len(b)/packedSpotWidth)
	for off := 0; off < len(b); off += packedSpotWidth {
		x, err := DecodePosition(b[off+2 : off+4])
		if err != nil {
			return nil, err
		}
		y, err := DecodePosition(b[off+6 : off+8])
		if err != nil {
			return nil, err
		}
		points = append(points, schema.Point{X: x, Y: y})
	}
	return points, nil
}

// DecodeWeights implements SpotDecoder.
func (PackedDecoder) DecodeWeights(b []byte) ([]float64, error) {
	if err := checkStride(b, WeightWidth, "weight map"); err != nil {
		return nil, err
	}
	weights := make([]float64, 0, len(b)/WeightWidth)
	for off := 0; off < len(b); off += WeightWidth {
		w, err := DecodeWeight(b[off : off+WeightWidth])
		if err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	return weights, nil
}

// Float32Decoder reads little-endian IEEE-754 single precision maps.
type Float32Decoder struct {
	PositionScale float64
}

var _ SpotDecoder = Float32Decoder{} // Compile-time check

// Encoding implements SpotDecoder.
func (Float32Decoder) Encoding() schema.SpotEncoding { return schema.Float32Encoding }

// DecodePositions implements SpotDecoder.
func (d Float32Decoder) DecodePositions(b []byte) ([]schema.Point, error) {
	if err := checkStride(b, float32SpotWidth, "position map"); err != nil {
		return nil, err
	}
	points := make([]schema.Point, 0, len(b)/float32SpotWidth)
	for off := 0; off < len(b); off += float32SpotWidth {
		x, y := readFloat32(b[off:]), readFloat32(b[off+4:])
		if !isFinite(x) || !isFinite(y) {
			return nil, fmt.Errorf("%w: spot %d has a non-finite position", ErrMalformedSpotRecord, off/float32SpotWidth)
		}
		points = append(points, schema.Point{X: x * d.PositionScale, Y: y * d.PositionScale})
	}
	return points, nil
}

// DecodeWeights implements SpotDecoder.
func (Float32Decoder) DecodeWeights(b []byte) ([]float64, error) {
	if err := checkStride(b, 4, "weight map"); err != nil {
		return nil, err
	}
	weights := make([]float64, 0, len(b)/4)
	for off := 0; off < len(b); off += 4 {
		w := readFloat32(b[off:])
		if !isFinite(w) || w < 0 {
			return nil, fmt.Errorf("%w: spot %d has weight %v", ErrMalformedSpotRecord, off/4, w)
		}
		weights = append(weights, w)
	}
	return weights, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func readFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func checkStride(b []byte, width int, what string) error {
	if len(b)%width != 0 {
		return fmt.Errorf("%w: %s length %d is not a multiple of %d", ErrMalformedSpotRecord, what, len(b), width)
	}
	return nil
}
