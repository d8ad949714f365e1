package rtplan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func elem(t *testing.T, tg tag.Tag, data any) *dicom.Element {
	t.Helper()
	v, err := dicom.NewValue(data)
	require.NoError(t, err)
	return &dicom.Element{Tag: tg, Value: v}
}

func seq(t *testing.T, tg tag.Tag, items ...[]*dicom.Element) *dicom.Element {
	t.Helper()
	return elem(t, tg, items)
}

func controlPoint(t *testing.T, index int, energy, cum string, withMaps bool) []*dicom.Element {
	t.Helper()
	elems := []*dicom.Element{
		elem(t, tagControlPointIndex, []int{index}),
		elem(t, tagNominalBeamEnergy, []string{energy}),
		elem(t, tagCumulativeMeterset, []string{cum}),
	}
	if withMaps {
		elems = append(elems,
			elem(t, tagTuneID, []byte("T12 ")),
			elem(t, tagNumPositions, []byte("2 ")),
			elem(t, tagPositionMap, make([]byte, 16)),
			elem(t, tagWeightMap, make([]byte, 8)),
			seq(t, tagDevicePositionSeq, []*dicom.Element{
				elem(t, tagLeafJawPositions, []string{"-10", "-20", "10", "20"}),
			}),
		)
	}
	return elems
}

func beam(t *testing.T, number int, name, desc string, points ...[]*dicom.Element) []*dicom.Element {
	t.Helper()
	return []*dicom.Element{
		elem(t, tagBeamNumber, []int{number}),
		elem(t, tagBeamName, []string{name}),
		elem(t, tagBeamDescription, []string{desc}),
		elem(t, tagMachineName, []string{"GTR1"}),
		elem(t, tagNumberOfBlocks, []string{"1"}),
		seq(t, tagIonBlockSeq, []*dicom.Element{
			elem(t, tagBlockData, []string{"10", "20", "30", "40"}),
		}),
		seq(t, tagIonLimitingDeviceSeq, []*dicom.Element{
			elem(t, tagLeafBoundaries, []string{"-5", "0", "5"}),
		}),
		seq(t, tagIonControlPointSeq, points...),
	}
}

func sampleDataset(t *testing.T) dicom.Dataset {
	t.Helper()
	treatment := beam(t, 1, "RAO", "",
		controlPoint(t, 0, "150.2", "0", true),
		controlPoint(t, 1, "150.2", "1.5", false),
		controlPoint(t, 2, "140.1", "1.5", true),
		controlPoint(t, 3, "140.1", "3.25", false),
		controlPoint(t, 4, "130.0", "3.25", true), // unpaired
	)
	setup := beam(t, 2, "SETUP", "Site Setup")

	return dicom.Dataset{Elements: []*dicom.Element{
		elem(t, tagPatientID, []string{"P001"}),
		elem(t, tagPatientName, []string{"DOE^JANE"}),
		elem(t, tagPlanLabel, []string{"Prostate "}),
		seq(t, tagIonBeamSeq, treatment, setup),
	}}
}

func TestFromDataset(t *testing.T) {
	plan, err := NewReader(false).FromDataset(sampleDataset(t), "/plans/RP.dcm", "abc")
	require.NoError(t, err)

	assert.Equal(t, "P001", plan.PatientID)
	assert.Equal(t, "DOE^JANE", plan.PatientName)
	assert.Equal(t, "Prostate", plan.PlanLabel)
	assert.Equal(t, "GTR1", plan.MachineName)
	assert.Equal(t, "abc", plan.Digest)
	require.Len(t, plan.Beams, 1, "setup beam is skipped")

	b := plan.Beams[0]
	assert.Equal(t, 1, b.Number)
	assert.Equal(t, "RAO", b.Name)
	assert.Equal(t, 1, b.NumberOfBlocks)
	assert.Equal(t, []float64{10, 20, 30, 40}, b.BlockData)
	assert.True(t, b.HasMLC)
	assert.Equal(t, []float64{-5, 0, 5}, b.LeafBoundaries)

	require.Len(t, b.Layers, 2, "trailing unpaired control point is ignored")
	first := b.Layers[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 0, first.ControlPoint)
	assert.Equal(t, 150.2, first.Energy)
	assert.Equal(t, 0.0, first.CumWeightNow)
	assert.Equal(t, 1.5, first.CumWeightNext)
	assert.Len(t, first.PositionMap, 16)
	assert.Len(t, first.WeightMap, 8)
	assert.Equal(t, "T12", first.TuneID)
	assert.Equal(t, "2", first.NumPositions)
	assert.Equal(t, []float64{-10, -20, 10, 20}, first.MLCLeafPositions)

	second := b.Layers[1]
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, 2, second.ControlPoint)
	assert.Equal(t, 3.25, second.CumWeightNext)
}

func TestFromDatasetIncludeSetup(t *testing.T) {
	plan, err := NewReader(true).FromDataset(sampleDataset(t), "RP.dcm", "")
	require.NoError(t, err)
	require.Len(t, plan.Beams, 2)
	assert.Equal(t, "SETUP", plan.Beams[1].Name)
	assert.Empty(t, plan.Beams[1].Layers)
}

func TestFromDatasetMissingStreams(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		seq(t, tagIonBeamSeq, beam(t, 3, "LAO", "",
			controlPoint(t, 0, "100", "0", false),
			controlPoint(t, 1, "100", "1", false),
		)),
	}}
	plan, err := NewReader(false).FromDataset(ds, "RP.dcm", "")
	require.NoError(t, err)
	require.Len(t, plan.Beams[0].Layers, 1)
	assert.Nil(t, plan.Beams[0].Layers[0].PositionMap)
	assert.Nil(t, plan.Beams[0].Layers[0].WeightMap)
}

func TestFromDatasetErrors(t *testing.T) {
	_, err := NewReader(false).FromDataset(dicom.Dataset{}, "RP.dcm", "")
	assert.ErrorIs(t, err, ErrMalformedPlan)

	noEnergy := []*dicom.Element{elem(t, tagCumulativeMeterset, []string{"0"})}
	ds := dicom.Dataset{Elements: []*dicom.Element{
		seq(t, tagIonBeamSeq, beam(t, 1, "RAO", "", noEnergy, noEnergy)),
	}}
	_, err = NewReader(false).FromDataset(ds, "RP.dcm", "")
	assert.ErrorIs(t, err, ErrMalformedPlan)
	assert.Contains(t, err.Error(), "beam 1")
}

// The fixtures carry one treatment beam with a float32 spot map at control
// point 0, a trailing unpaired control point and a setup beam. The vendor
// attributes are written as OB/LO/IS in the explicit file and arrive untyped
// (UN) in the implicit one.
func TestReadPlanFixtures(t *testing.T) {
	for _, name := range []string{"ion_plan_explicit.dcm", "ion_plan_implicit.dcm"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join("testdata", name)
			plan, err := NewReader(false).ReadPlan(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, path, plan.SourcePath)
			assert.Len(t, plan.Digest, 64)
			assert.Equal(t, "FIX001", plan.PatientID)
			assert.Equal(t, "Fixture^Phantom", plan.PatientName)
			assert.Equal(t, "QA", plan.PlanLabel)
			assert.Equal(t, "GTR1", plan.MachineName)
			require.Len(t, plan.Beams, 1)

			b := plan.Beams[0]
			assert.Equal(t, 1, b.Number)
			assert.Equal(t, "RAO", b.Name)
			assert.False(t, b.HasMLC)
			require.Len(t, b.Layers, 1)

			layer := b.Layers[0]
			assert.Equal(t, 0, layer.ControlPoint)
			assert.Equal(t, 150.0, layer.Energy)
			assert.Equal(t, 1.0, layer.CumWeightNext)
			assert.Equal(t, "T1", layer.TuneID)
			assert.Equal(t, "2", layer.NumPositions)
			assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xF0, 0x41, 0, 0, 0x20, 0x42}, layer.PositionMap)
			assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x80, 0x3F}, layer.WeightMap)
		})
	}

	t.Run("setup beam kept on request", func(t *testing.T) {
		plan, err := NewReader(true).ReadPlan(context.Background(), filepath.Join("testdata", "ion_plan_implicit.dcm"))
		require.NoError(t, err)
		require.Len(t, plan.Beams, 2)
		assert.Equal(t, "Site Setup", plan.Beams[1].Description)
		require.Len(t, plan.Beams[1].Layers, 1)
		assert.Nil(t, plan.Beams[1].Layers[0].PositionMap)
	})
}

func TestReadPlanMissingFile(t *testing.T) {
	_, err := NewReader(false).ReadPlan(context.Background(), filepath.Join(t.TempDir(), "none.dcm"))
	assert.Error(t, err)
}

func TestReadPlanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReader(false).ReadPlan(ctx, "RP.dcm")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValueHelpers(t *testing.T) {
	assert.Nil(t, find(nil, tagBeamName))
	assert.Equal(t, "", stringOf(nil))
	assert.Nil(t, itemsOf(elem(t, tagBeamName, []string{"x"})))

	n, ok := intOf(elem(t, tagBeamNumber, []string{" 7 "}))
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = intOf(elem(t, tagBeamNumber, []string{"seven"}))
	assert.False(t, ok)

	vals, err := floatsOf(elem(t, tagBlockData, []float64{1.5, 2.5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, vals)

	_, err = floatsOf(elem(t, tagBlockData, []string{"1", "x"}))
	assert.ErrorIs(t, err, ErrMalformedPlan)
}
