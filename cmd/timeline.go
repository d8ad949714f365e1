package cmd

import (
	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/spf13/cobra"
)

// planCmd prints the per-port timeline of a plan.
var planCmd = &cobra.Command{
	Use:   "plan <plan-file>",
	Short: "Show the total scan time of every port in a plan.",
	Long: `Decode the spot maps of an RT ion plan and report the scan time of every port.

Each layer is timed independently:
- Spots become line segments with the distance to the previous spot
- The layer dose rate is the bottleneck rate clamped to the machine range
- Segment times are snapped to the delivery time grid

Examples:
  # Time a plan with float32 spot maps
  scantime plan RP.1.2.3.dcm --spot-encoding float32 --doserate-table doserate.csv

  # Only the first two beams, as JSON
  scantime plan RP.1.2.3.dcm --beam 1,2 --output json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecutePlanSummary(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute plan timeline", err)
		}
	},
}

// layersCmd prints the per-layer timeline of a plan.
var layersCmd = &cobra.Command{
	Use:   "layers <plan-file>",
	Short: "Show the scan time, dose rate and clamp of every layer.",
	Long: `Report one row per layer with its energy, MU, layer dose rate and how it was clamped.

Clamp labels:
- bottleneck  the spot pattern itself limits the rate
- ceiling     the doserate table caps the rate
- floor       the rate was raised to the minimum dose rate
- unavailable no usable rate, scan time is zero
- degenerate  fewer than two spots

Examples:
  scantime layers RP.1.2.3.dcm --spot-encoding shi-packed
  scantime layers RP.1.2.3.dcm --output csv --output-file layers.csv`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteLayers(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute layer timeline", err)
		}
	},
}

// segmentsCmd prints the flat segment projection of a plan.
var segmentsCmd = &cobra.Command{
	Use:   "segments <plan-file>",
	Short: "Show every line segment of the plan.",
	Long: `Report one row per segment: position, weight, distance, scan time and speed.

Examples:
  # Export for analysis in pandas/DuckDB
  scantime segments RP.1.2.3.dcm --output parquet --output-file segments.parquet`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteSegments(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute segment timeline", err)
		}
	},
}
