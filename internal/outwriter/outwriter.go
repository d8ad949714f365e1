// Package outwriter renders timelines as tables, CSV, JSON or Parquet.
package outwriter

import (
	"fmt"
	"io"
	"time"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// WritePlan prints the timeline in the configured view and output format.
func WritePlan(plan *schema.Plan, cfg *contract.Config, duration time.Duration) error {
	switch cfg.View {
	case schema.LayersView:
		return writeLayers(plan, cfg, duration)
	case schema.SegmentsView:
		return writeSegments(plan, cfg, duration)
	case schema.PlanView, "":
		return writePlanSummary(plan, cfg, duration)
	default:
		return fmt.Errorf("unsupported view: %s", cfg.View)
	}
}

// writeFooter prints the run summary below a table.
func writeFooter(w io.Writer, plan *schema.Plan, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	if _, err := fmt.Fprintf(w, "Total scan time: %s s over %d ports and %d layers\n",
		fmtFloat(plan.TotalScanTime), len(plan.Ports), plan.LayerCount()); err != nil {
		return err
	}
	backend := cfg.CacheBackend
	if backend == "" {
		backend = schema.NoneBackend
	}
	_, err := fmt.Fprintf(w, "Timeline computed in %v with %d workers. Cache backend: %s\n", duration, cfg.Workers, backend)
	return err
}
