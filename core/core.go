// Package core has core logic for building plan timelines and orchestrating runs.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/outwriter"
	"github.com/protonlab/scantime/internal/rtplan"
	"github.com/protonlab/scantime/schema"
)

// ExecutorFunc defines the function signature for executing the different views.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// ExecutePlanSummary computes the timeline and prints per-port totals.
// It serves as the main entry point for the 'plan' command.
func ExecutePlanSummary(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	return executeView(ctx, cfg, mgr, schema.PlanView)
}

// ExecuteLayers computes the timeline and prints per-layer totals and diagnostics.
func ExecuteLayers(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	return executeView(ctx, cfg, mgr, schema.LayersView)
}

// ExecuteSegments computes the timeline and prints one row per segment.
func ExecuteSegments(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	return executeView(ctx, cfg, mgr, schema.SegmentsView)
}

func executeView(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager, view schema.View) error {
	start := time.Now()
	plan, resolved, err := runTimelineCore(ctx, cfg, rtplan.NewReader(cfg.IncludeSetup), mgr)
	if err != nil {
		return err
	}
	resolved.View = view
	duration := time.Since(start)
	return outwriter.WritePlan(plan, resolved, duration)
}

// GetPlanResults computes the timeline without printing it.
// It serves as the entry point for MCP tools.
func GetPlanResults(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*schema.Plan, time.Duration, error) {
	start := time.Now()
	plan, _, err := runTimelineCore(ctx, cfg, rtplan.NewReader(cfg.IncludeSetup), mgr)
	if err != nil {
		return nil, 0, err
	}
	return plan, time.Since(start), nil
}

// LookupDoseRates answers ceiling lookups against the table of the named machine.
// An empty machine name uses the global table.
func LookupDoseRates(ctx context.Context, cfg *contract.Config, machine string, energies []float64) []schema.DoseRateLookup {
	path := cfg.DoseRateTableFor(machine)
	provider := providerFor(ctx, path, cfg.DoseRateCacheSize)
	stats := provider.Stats()
	available := provider.Err() == nil

	results := make([]schema.DoseRateLookup, 0, len(energies))
	for _, e := range energies {
		results = append(results, schema.DoseRateLookup{
			Energy:      e,
			MaxDoseRate: provider.MaxDoseRate(e),
			TablePath:   path,
			TableRows:   stats.Rows,
			Available:   available,
		})
	}
	return results
}

// ExecuteDoserateLookup prints the ceiling for each energy.
func ExecuteDoserateLookup(ctx context.Context, cfg *contract.Config, machine string, energies []float64) error {
	if len(energies) == 0 {
		return errors.New("at least one energy is required")
	}
	return outwriter.WriteDoseRateLookups(LookupDoseRates(ctx, cfg, machine, energies), cfg)
}
