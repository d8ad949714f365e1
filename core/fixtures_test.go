package core

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/protonlab/scantime/core/doserate"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/mock"
)

// float32Map encodes values as a little-endian float32 stream.
func float32Map(values ...float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// twoSpotLayer is a layer of two spots 5 cm apart carrying 1 MU on the second spot.
func twoSpotLayer(controlPoint int, energy float64) schema.LayerRecord {
	return schema.LayerRecord{
		Number:        controlPoint/2 + 1,
		ControlPoint:  controlPoint,
		Energy:        energy,
		CumWeightNow:  0,
		CumWeightNext: 1,
		PositionMap:   float32Map(0, 0, 30, 40),
		WeightMap:     float32Map(0, 1),
	}
}

func samplePlanRecord() *schema.PlanRecord {
	return &schema.PlanRecord{
		SourcePath:  "/plans/RP.test.dcm",
		Digest:      "abc123",
		PatientID:   "P001",
		PlanLabel:   "PROSTATE",
		MachineName: "GTR1",
		Beams: []schema.BeamRecord{
			{
				Number: 1,
				Name:   "RAO",
				Layers: []schema.LayerRecord{twoSpotLayer(0, 100), twoSpotLayer(2, 100)},
			},
			{
				Number: 2,
				Name:   "LAO",
				Layers: []schema.LayerRecord{twoSpotLayer(0, 100)},
			},
		},
	}
}

func testConfig() *contract.Config {
	return &contract.Config{
		PlanPath:          "/plans/RP.test.dcm",
		MinDoseRate:       contract.DefaultMinDoseRate,
		MaxSpeed:          contract.DefaultMaxSpeed,
		MinSpeed:          contract.DefaultMinSpeed,
		TimeResolution:    contract.DefaultTimeResolution,
		SpotEncoding:      schema.Float32Encoding,
		PositionScale:     contract.DefaultPositionScale,
		DoseRateCacheSize: contract.DefaultDoseRateCache,
		Workers:           2,
	}
}

// tenMUPerSecond is a table whose 100 MeV bucket caps the rate at 10 MU/s.
func tenMUPerSecond() *doserate.Provider {
	return doserate.FromTable(doserate.Table{{EnergyLowerBound: 100, MaxDoseRate: 10}})
}

type mockPlanSource struct {
	mock.Mock
}

var _ contract.PlanSource = &mockPlanSource{}

func (m *mockPlanSource) ReadPlan(ctx context.Context, path string) (*schema.PlanRecord, error) {
	args := m.Called(ctx, path)
	record, _ := args.Get(0).(*schema.PlanRecord)
	return record, args.Error(1)
}
