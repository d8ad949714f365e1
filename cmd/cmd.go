// Package cmd defines the command-line interface for scantime.
package cmd

import (
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(segmentsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(doserateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the history subcommands to the parent history command
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	flags := rootCmd.PersistentFlags()
	flags.Float64("min-doserate", contract.DefaultMinDoseRate, "Minimum deliverable dose rate in MU/s")
	flags.Float64("max-speed", contract.DefaultMaxSpeed, "Maximum scanning magnet speed in cm/s")
	flags.Float64("min-speed", contract.DefaultMinSpeed, "Minimum scanning speed in cm/s (slower segments are flagged)")
	flags.Float64("time-resolution", contract.DefaultTimeResolution, "Delivery time grid in seconds")
	flags.String("doserate-table", "", "Path to the energy to max dose rate CSV table")
	flags.Int("doserate-cache-size", contract.DefaultDoseRateCache, "Number of memoized dose rate lookups per table")
	flags.String("spot-encoding", "", "Spot map encoding: shi-packed or float32")
	flags.Float64("position-scale", contract.DefaultPositionScale, "Scale applied to float32 spot positions")
	flags.String("machine-profiles", "", "Path to a YAML catalog of per-machine overrides")
	flags.Bool("include-setup", false, "Include setup beams in the timeline")
	flags.Bool("strict", false, "Fail on the first broken layer instead of skipping it")
	flags.Bool("normalize-weights", false, "Rescale spot weights to the layer meterset")
	flags.String("beam", "", "Comma-separated beam numbers or names to time")
	flags.Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	flags.Float64("xpos-gain", 1, "Delivery log x counts to mm")
	flags.Float64("xpos-offset", 0, "Delivery log x count at the isocenter")
	flags.Float64("ypos-gain", 1, "Delivery log y counts to mm")
	flags.Float64("ypos-offset", 0, "Delivery log y count at the isocenter")
	flags.Float64("time-gain", 1, "Delivery log sampling period in ms")
	flags.Bool("keep-beam-off", false, "Keep delivery log records taken with the beam off")
	flags.String("scv-init", "", "Path to an scv_init file overriding the delivery log calibration")
	flags.String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	flags.String("output-file", "", "Optional path to write output to")
	flags.Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	flags.Int("width", 0, "Terminal width override (0 = auto-detect)")
	flags.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	flags.String("profile", "", "Enable profiling and write profiles to files with this prefix")
	flags.String("cache-backend", string(schema.SQLiteBackend), "Cache backend: sqlite or mysql or postgresql or none")
	flags.String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	flags.String("history-backend", "", "Run history backend: sqlite or mysql or postgresql or none")
	flags.String("history-db-connect", "", "Database connection string for run history (must differ from cache-db-connect)")
	flags.String("config", "", "Path to config file")
	if err := viper.BindPFlags(flags); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of doserateCmd to Viper
	doserateCmd.Flags().String("machine", "", "Treatment machine whose table is used")
	if err := viper.BindPFlags(doserateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding doserate flags", err)
	}

	// Bind all flags of historyMigrateCmd to Viper
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(historyMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history migrate flags", err)
	}
}
