package cmd

import (
	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/spf13/cobra"
)

// checkCmd compares a plan with the position logs recorded during delivery.
var checkCmd = &cobra.Command{
	Use:   "check <plan-file> <ptn-file>...",
	Short: "Compare planned spot positions with delivery logs.",
	Long: `Read one .ptn position log per layer and report how far the beam strayed from the plan.

Logs are paired with the layers of the plan in the order given, beam by beam.
Each logged sample is matched to the planned path at the same fraction of the
layer MU. Differences are planned minus delivered, in mm.

Raw log counts are calibrated with --xpos-gain, --xpos-offset, --ypos-gain,
--ypos-offset and --time-gain, or with the keys of an scv_init file.

Examples:
  scantime check RP.1.2.3.dcm logs/*.ptn --spot-encoding float32 --scv-init scv_init

  # Only the second beam, as CSV
  scantime check RP.1.2.3.dcm beam2/*.ptn --beam 2 --output csv`,
	Args:    cobra.MinimumNArgs(2),
	PreRunE: checkSetup,
	Run: func(_ *cobra.Command, args []string) {
		if err := core.ExecuteCheck(rootCtx, cfg, args[1:]); err != nil {
			contract.LogFatal("Cannot check delivery logs", err)
		}
	},
}

// checkSetup prepares the run with the first argument as the plan path.
func checkSetup(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args[:1])
}
