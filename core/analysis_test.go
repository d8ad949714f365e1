package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/protonlab/scantime/core/codec"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/iocache"
	"github.com/protonlab/scantime/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// writeTable stores a doserate CSV table in a fresh temp dir.
func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doserate.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("times every layer", func(t *testing.T) {
		plan, err := AnalyzePlan(ctx, testConfig(), samplePlanRecord(), tenMUPerSecond())
		require.NoError(t, err)

		assert.Equal(t, "abc123", plan.Digest)
		assert.Equal(t, schema.Float32Encoding, plan.SpotEncoding)
		require.Len(t, plan.Ports, 2)
		assert.Equal(t, "GTR1", plan.Ports[0].MachineName)

		for _, port := range plan.Ports {
			for _, layer := range port.Layers {
				assert.Equal(t, 10.0, layer.LayerDoseRate)
				assert.Equal(t, 10.0, layer.Ceiling)
				assert.Equal(t, schema.ClampCeiling, layer.Clamp)
				assert.InDelta(t, 0.1, layer.TotalScanTime, 1e-9)
				assert.NotNil(t, layer.Stats)
			}
		}
		assert.InDelta(t, 0.2, plan.Ports[0].TotalScanTime, 1e-9)
		assert.InDelta(t, 0.1, plan.Ports[1].TotalScanTime, 1e-9)
		assert.InDelta(t, 0.3, plan.TotalScanTime, 1e-9)
	})

	t.Run("no provider means unavailable", func(t *testing.T) {
		plan, err := AnalyzePlan(ctx, testConfig(), samplePlanRecord(), nil)
		require.NoError(t, err)
		for _, port := range plan.Ports {
			for _, layer := range port.Layers {
				assert.Equal(t, schema.ClampUnavailable, layer.Clamp)
				assert.Equal(t, 0.0, layer.TotalScanTime)
			}
		}
		assert.Equal(t, 0.0, plan.TotalScanTime)
	})

	t.Run("beam filter by name and number", func(t *testing.T) {
		cfg := testConfig()
		cfg.BeamFilter = "lao"
		plan, err := AnalyzePlan(ctx, cfg, samplePlanRecord(), tenMUPerSecond())
		require.NoError(t, err)
		require.Len(t, plan.Ports, 1)
		assert.Equal(t, 2, plan.Ports[0].BeamNumber)

		cfg.BeamFilter = "1, 2"
		plan, err = AnalyzePlan(ctx, cfg, samplePlanRecord(), tenMUPerSecond())
		require.NoError(t, err)
		assert.Len(t, plan.Ports, 2)
	})

	t.Run("beam filter with no match", func(t *testing.T) {
		cfg := testConfig()
		cfg.BeamFilter = "9"
		_, err := AnalyzePlan(ctx, cfg, samplePlanRecord(), nil)
		assert.ErrorContains(t, err, `no beam matches "9"`)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		cfg := testConfig()
		cfg.SpotEncoding = "int16"
		_, err := AnalyzePlan(ctx, cfg, samplePlanRecord(), nil)
		assert.ErrorIs(t, err, codec.ErrUnknownSpotEncoding)
	})

	t.Run("invalid limits", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinSpeed = 5000
		_, err := AnalyzePlan(ctx, cfg, samplePlanRecord(), nil)
		assert.ErrorContains(t, err, "exceeds max speed")
	})

	t.Run("strict plan fails on a broken layer", func(t *testing.T) {
		record := samplePlanRecord()
		record.Beams[1].Layers[0].WeightMap = nil
		cfg := testConfig()
		cfg.Strict = true
		_, err := AnalyzePlan(ctx, cfg, record, nil)
		assert.ErrorIs(t, err, ErrIncompleteLayerRecord)

		cfg.Strict = false
		plan, err := AnalyzePlan(ctx, cfg, record, nil)
		require.NoError(t, err)
		assert.Empty(t, plan.Ports[1].Layers)
		assert.Len(t, plan.Ports[1].SkippedLayers, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := AnalyzePlan(cctx, testConfig(), samplePlanRecord(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMatchesBeamFilter(t *testing.T) {
	beam := &schema.BeamRecord{Number: 3, Name: "RPO"}
	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"3", true},
		{"rpo", true},
		{"1,RPO", true},
		{" , 3 ", true},
		{"4", false},
		{"RP", false},
		{",", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesBeamFilter(tt.filter, beam), "filter %q", tt.filter)
	}
}

func TestRunTimelineCore(t *testing.T) {
	ctx := WithSuppressHeader(context.Background())

	t.Run("requires a plan path", func(t *testing.T) {
		cfg := testConfig()
		cfg.PlanPath = ""
		_, _, err := runTimelineCore(ctx, cfg, &mockPlanSource{}, nil)
		assert.ErrorContains(t, err, "a plan file is required")
	})

	t.Run("read failure", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(nil, assert.AnError)

		_, _, err := runTimelineCore(ctx, testConfig(), src, nil)
		assert.ErrorIs(t, err, assert.AnError)
		src.AssertExpectations(t)
	})

	t.Run("machine profile applies", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(samplePlanRecord(), nil)

		cfg := testConfig()
		cfg.SpotEncoding = ""
		cfg.DoseRateTable = writeTable(t, "energy,max_doserate\n100,20\n")
		cfg.Machines = map[string]contract.MachineProfile{
			"gtr1": {SpotEncoding: string(schema.Float32Encoding)},
		}

		plan, resolved, err := runTimelineCore(ctx, cfg, src, nil)
		require.NoError(t, err)
		assert.Equal(t, "GTR1", resolved.MachineName)
		assert.Equal(t, schema.Float32Encoding, resolved.SpotEncoding)
		assert.Equal(t, 20.0, plan.Ports[0].Layers[0].LayerDoseRate)
		assert.Equal(t, schema.SpotEncoding(""), cfg.SpotEncoding, "base config is not mutated")
	})

	t.Run("missing encoding", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(samplePlanRecord(), nil)

		cfg := testConfig()
		cfg.SpotEncoding = ""
		_, _, err := runTimelineCore(ctx, cfg, src, nil)
		assert.ErrorContains(t, err, "spot-encoding is required")
	})

	t.Run("records history", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(samplePlanRecord(), nil)

		history := &iocache.MockHistoryStore{}
		history.On("BeginRun", mock.MatchedBy(func(start schema.RunStart) bool {
			return start.PlanDigest == "abc123" && start.SpotEncoding == schema.Float32Encoding
		})).Return(int64(7), nil)
		history.On("RecordLayers", int64(7), mock.MatchedBy(func(layers []schema.LayerSummaryRecord) bool {
			return len(layers) == 3 && layers[0].RunID == 7
		})).Return(nil)
		history.On("EndRun", int64(7), mock.AnythingOfType("time.Time"), 3, mock.AnythingOfType("float64")).Return(nil)

		mgr := &iocache.MockCacheManager{}
		mgr.On("GetHistoryStore").Return(history)
		mgr.On("GetTimelineStore").Return(nil)

		cfg := testConfig()
		cfg.DoseRateTable = writeTable(t, "100,10\n")
		plan, _, err := runTimelineCore(ctx, cfg, src, mgr)
		require.NoError(t, err)
		assert.InDelta(t, 0.3, plan.TotalScanTime, 1e-9)

		history.AssertExpectations(t)
		mgr.AssertExpectations(t)
	})

	t.Run("failed run is closed", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(samplePlanRecord(), nil)

		history := &iocache.MockHistoryStore{}
		history.On("BeginRun", mock.Anything).Return(int64(9), nil)
		history.On("EndRun", int64(9), mock.AnythingOfType("time.Time"), 0, 0.0).Return(nil)

		mgr := &iocache.MockCacheManager{}
		mgr.On("GetHistoryStore").Return(history)
		mgr.On("GetTimelineStore").Return(nil)

		cfg := testConfig()
		cfg.BeamFilter = "NOPE"
		_, _, err := runTimelineCore(ctx, cfg, src, mgr)
		require.ErrorContains(t, err, "no beam matches")

		history.AssertExpectations(t)
		history.AssertNotCalled(t, "RecordLayers", mock.Anything, mock.Anything)
	})

	t.Run("history failures do not fail the run", func(t *testing.T) {
		src := &mockPlanSource{}
		src.On("ReadPlan", ctx, "/plans/RP.test.dcm").Return(samplePlanRecord(), nil)

		history := &iocache.MockHistoryStore{}
		history.On("BeginRun", mock.Anything).Return(int64(0), assert.AnError)

		mgr := &iocache.MockCacheManager{}
		mgr.On("GetHistoryStore").Return(history)
		mgr.On("GetTimelineStore").Return(nil)

		plan, _, err := runTimelineCore(ctx, testConfig(), src, mgr)
		require.NoError(t, err)
		assert.NotNil(t, plan)
		history.AssertNotCalled(t, "RecordLayers", mock.Anything, mock.Anything)
		history.AssertNotCalled(t, "EndRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
