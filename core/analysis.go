package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/protonlab/scantime/core/codec"
	"github.com/protonlab/scantime/core/doserate"
	"github.com/protonlab/scantime/core/scan"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
	"golang.org/x/sync/errgroup"
)

// LimitsFromConfig extracts the engine limits of a resolved config.
func LimitsFromConfig(cfg *contract.Config) scan.Limits {
	return scan.Limits{
		MinDoseRate:    cfg.MinDoseRate,
		MaxSpeed:       cfg.MaxSpeed,
		MinSpeed:       cfg.MinSpeed,
		TimeResolution: cfg.TimeResolution,
	}
}

// AnalyzePlan builds every port of the record and times all of its layers.
// cfg must already have its machine profile applied. A nil provider means no ceiling.
func AnalyzePlan(ctx context.Context, cfg *contract.Config, record *schema.PlanRecord, provider *doserate.Provider) (*schema.Plan, error) {
	decoder, err := codec.NewDecoder(cfg.SpotEncoding, codec.Options{PositionScale: cfg.PositionScale})
	if err != nil {
		return nil, err
	}
	lim := LimitsFromConfig(cfg)
	if err := lim.Validate(); err != nil {
		return nil, err
	}

	plan := &schema.Plan{
		SourcePath:   record.SourcePath,
		Digest:       record.Digest,
		PatientID:    record.PatientID,
		PatientName:  record.PatientName,
		PlanLabel:    record.PlanLabel,
		MachineName:  record.MachineName,
		SpotEncoding: decoder.Encoding(),
	}

	// --- 1. Build ports ---
	ports, err := buildPorts(cfg, record, decoder)
	if err != nil {
		return nil, err
	}
	plan.Ports = ports

	// --- 2. Time layers ---
	if err := timeLayers(ctx, cfg.Workers, plan, provider, lim); err != nil {
		return nil, err
	}

	// --- 3. Totals, in delivery order ---
	for _, port := range plan.Ports {
		port.TotalScanTime = 0
		for _, layer := range port.Layers {
			port.TotalScanTime += layer.TotalScanTime
		}
		plan.TotalScanTime += port.TotalScanTime
	}
	return plan, nil
}

// buildPorts decodes the beams selected by the beam filter, in plan order.
func buildPorts(cfg *contract.Config, record *schema.PlanRecord, decoder codec.SpotDecoder) ([]*schema.Port, error) {
	var ports []*schema.Port
	for i := range record.Beams {
		beam := &record.Beams[i]
		if !matchesBeamFilter(cfg.BeamFilter, beam) {
			continue
		}
		port, err := NewPortBuilder(decoder, beam).
			Strict(cfg.Strict).
			NormalizeWeights(cfg.NormalizeWeights).
			AttachAperture().
			AttachMLCY().
			BuildLayers().
			Build()
		if err != nil {
			return nil, err
		}
		if port.MachineName == "" {
			port.MachineName = record.MachineName
		}
		ports = append(ports, port)
	}
	if cfg.BeamFilter != "" && len(ports) == 0 {
		return nil, fmt.Errorf("no beam matches %q", cfg.BeamFilter)
	}
	return ports, nil
}

// timeLayers runs the engine over every layer with a bounded pool.
// Layers are independent, so each goroutine owns exactly one layer.
func timeLayers(ctx context.Context, workers int, plan *schema.Plan, provider *doserate.Provider, lim scan.Limits) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, port := range plan.Ports {
		for _, layer := range port.Layers {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				ceiling := 0.0
				if provider != nil {
					ceiling = provider.MaxDoseRate(layer.Energy)
				}
				scan.ComputeLayer(layer, ceiling, lim)
				scan.Summarize(layer, lim)
				return nil
			})
		}
	}
	return g.Wait()
}

// matchesBeamFilter reports whether the beam is selected by a comma separated
// list of beam numbers or names. An empty filter selects every beam.
func matchesBeamFilter(filter string, beam *schema.BeamRecord) bool {
	if filter == "" {
		return true
	}
	for token := range strings.SplitSeq(filter, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if token == strconv.Itoa(beam.Number) || strings.EqualFold(token, beam.Name) {
			return true
		}
	}
	return false
}

// runTimelineCore reads, resolves, times and records one plan.
// It returns the timeline and the machine-resolved config used to compute it.
func runTimelineCore(ctx context.Context, cfg *contract.Config, src contract.PlanSource, mgr contract.CacheManager) (*schema.Plan, *contract.Config, error) {
	if cfg.PlanPath == "" {
		return nil, nil, errors.New("a plan file is required")
	}

	// --- 1. Read the plan ---
	record, err := src.ReadPlan(ctx, cfg.PlanPath)
	if err != nil {
		return nil, nil, err
	}

	// --- 2. Apply the machine profile ---
	resolved, err := cfg.ResolveMachine(record.MachineName)
	if err != nil {
		return nil, nil, err
	}
	if !shouldSuppressHeader(ctx) {
		contract.LogPlanHeader(resolved, record)
	}
	provider := providerFor(ctx, resolved.DoseRateTable, resolved.DoseRateCacheSize)

	// --- 3. Begin run tracking (if configured) ---
	start := time.Now()
	history := historyStore(mgr)
	if history != nil {
		runID, err := history.BeginRun(schema.RunStart{
			StartTime:    start,
			PlanDigest:   record.Digest,
			PlanPath:     record.SourcePath,
			MachineName:  record.MachineName,
			SpotEncoding: resolved.SpotEncoding,
			ConfigParams: map[string]any{
				"min_doserate":    resolved.MinDoseRate,
				"max_speed":       resolved.MaxSpeed,
				"min_speed":       resolved.MinSpeed,
				"time_resolution": resolved.TimeResolution,
				"doserate_table":  resolved.DoseRateTable,
				"workers":         resolved.Workers,
				"strict":          resolved.Strict,
			},
		})
		if err != nil {
			contract.LogWarn("Run tracking initialization failed", err)
		} else if runID > 0 {
			ctx = withRunID(ctx, runID)
		}
	}

	// --- 4. Compute (with caching) ---
	plan, err := CachedAnalyzePlan(ctx, resolved, record, provider, mgr)
	if err != nil {
		if runID, ok := getRunID(ctx); ok && history != nil {
			if endErr := history.EndRun(runID, time.Now(), 0, 0); endErr != nil {
				logTrackingError("EndRun", record.SourcePath, endErr)
			}
		}
		return nil, nil, err
	}

	// --- 5. End run tracking ---
	if runID, ok := getRunID(ctx); ok && history != nil {
		recordRun(history, runID, plan)
	}
	return plan, resolved, nil
}

// historyStore returns the history store of mgr, or nil when tracking is off.
func historyStore(mgr contract.CacheManager) contract.HistoryStore {
	if mgr == nil {
		return nil
	}
	return mgr.GetHistoryStore()
}

// recordRun stores per-layer summaries and closes the run.
// Tracking failures are reported but never fail the timeline.
func recordRun(history contract.HistoryStore, runID int64, plan *schema.Plan) {
	summaries := make([]schema.LayerSummaryRecord, 0, plan.LayerCount())
	for _, port := range plan.Ports {
		for _, layer := range port.Layers {
			summaries = append(summaries, schema.NewLayerSummaryRecord(runID, port, layer))
		}
	}
	if err := history.RecordLayers(runID, summaries); err != nil {
		logTrackingError("RecordLayers", plan.SourcePath, err)
	}
	if err := history.EndRun(runID, time.Now(), len(summaries), plan.TotalScanTime); err != nil {
		logTrackingError("EndRun", plan.SourcePath, err)
	}
}

// logTrackingError logs database tracking errors to stderr without disrupting the run.
func logTrackingError(operation, path string, err error) {
	contract.LogWarn(fmt.Sprintf("Run tracking failed for %s on %s", operation, path), err)
}
