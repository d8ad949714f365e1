package cmd

import (
	"fmt"
	"strconv"

	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parseEnergies converts positional arguments to beam energies in MeV.
func parseEnergies(args []string) ([]float64, error) {
	energies := make([]float64, 0, len(args))
	for _, arg := range args {
		e, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid energy %q: %w", arg, err)
		}
		if !(e > 0) {
			return nil, fmt.Errorf("energy must be positive (received %v)", e)
		}
		energies = append(energies, e)
	}
	return energies, nil
}

// doserateCmd looks up dose rate ceilings without reading a plan.
var doserateCmd = &cobra.Command{
	Use:   "doserate <energy>...",
	Short: "Look up the maximum dose rate for beam energies.",
	Long: `Print the dose rate ceiling the doserate table assigns to each energy (MeV).

A table row applies to energies in [energy, energy + 0.3). Energies outside every
bucket, and every energy when the table cannot be loaded, get a ceiling of 0.

Examples:
  scantime doserate 100 150.2 --doserate-table doserate.csv

  # Use the table of a specific machine profile
  scantime doserate 70.5 --machine-profiles machines.yaml --machine GTR2`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadAndValidate(nil)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		energies, err := parseEnergies(args)
		if err != nil {
			return err
		}
		if err := core.ExecuteDoserateLookup(rootCtx, cfg, viper.GetString("machine"), energies); err != nil {
			contract.LogFatal("Cannot look up dose rates", err)
		}
		return nil
	},
}
