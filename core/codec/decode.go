// Package codec decodes the private spot maps stored in RT ion plans.
package codec

import (
	"errors"
	"fmt"
	"math"
)

// Byte widths of the packed scalar encodings.
const (
	WeightWidth   = 4
	PositionWidth = 2
)

var (
	// ErrMalformedSpotRecord is returned when a byte stream cannot hold whole records.
	ErrMalformedSpotRecord = errors.New("malformed spot record")

	// ErrUnknownSpotEncoding is returned for an encoding tag with no decoder.
	ErrUnknownSpotEncoding = errors.New("unknown spot encoding")
)

// DecodeWeight decodes a packed 4-byte spot weight, least-significant byte first.
//
// The value is 2^(b2/128) * 4^(b3-64) * (0.5 + (b2%128)/256 + b1/65536 + b0/16777216),
// which is a 24-bit mantissa with an implicit leading one scaled by a power of two.
func DecodeWeight(b []byte) (float64, error) {
	if len(b) < WeightWidth {
		return 0, fmt.Errorf("%w: weight needs %d bytes, got %d", ErrMalformedSpotRecord, WeightWidth, len(b))
	}
	mant := 1<<23 | int64(b[2]&0x7f)<<16 | int64(b[1])<<8 | int64(b[0])
	exp := int(b[2]>>7) + 2*(int(b[3])-64)
	return math.Ldexp(float64(mant), exp-24), nil
}

// DecodePosition decodes a packed 2-byte spot coordinate.
func DecodePosition(b []byte) (float64, error) {
	if len(b) < PositionWidth {
		return 0, fmt.Errorf("%w: position needs %d bytes, got %d", ErrMalformedSpotRecord, PositionWidth, len(b))
	}
	b0, b1 := int(b[0]), int(b[1])

	sign := 1.0
	if b1 >= 128 {
		sign = -1.0
	}
	e := b1 % 64
	if e > 32 {
		e = -1
	}
	d := 128 - b0
	hi := b0 / 128
	h := 8 - (2*(e+1) + 1) + abs(1-hi)

	return sign * (math.Ldexp(1, 2*(e+1)) - math.Ldexp(float64(d), -h)), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
