package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/iocache"
	"github.com/protonlab/scantime/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set through -ldflags by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx shares doserate providers between the runs of one invocation.
var rootCtx = core.WithProviderPool(context.Background(), core.NewProviderPool())

// cfg is the resolved configuration shared by every command.
var cfg = &contract.Config{}

// input receives the merged flag, env and file values before validation.
var input = &contract.ConfigRawInput{}

var profile = &contract.ProfileConfig{}

var cacheManager contract.CacheManager

// startProfiling begins CPU profiling under profile.Prefix.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}

	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("start cpu profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling to %[1]s.cpu.prof and %[1]s.mem.prof\n", profile.Prefix)
	return err
}

// stopProfiling ends CPU profiling and dumps the heap.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}

	pprof.StopCPUProfile()

	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiles written, inspect with: go tool pprof %s.cpu.prof\n", profile.Prefix)
	return err
}

var rootCmd = &cobra.Command{
	Use:                "scantime",
	Short:              "Reconstruct the delivery timeline of line-scanning ion beam plans.",
	Long:               `Scantime decodes the spot maps of an RT ion plan and computes how long every layer takes to scan.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// configDefaults apply when neither a flag, an env var nor the config file sets a key.
var configDefaults = map[string]any{
	"min-doserate":        contract.DefaultMinDoseRate,
	"max-speed":           contract.DefaultMaxSpeed,
	"min-speed":           contract.DefaultMinSpeed,
	"time-resolution":     contract.DefaultTimeResolution,
	"position-scale":      contract.DefaultPositionScale,
	"doserate-cache-size": contract.DefaultDoseRateCache,
	"workers":             contract.DefaultWorkers,
	"xpos-gain":           1.0,
	"xpos-offset":         0.0,
	"ypos-gain":           1.0,
	"ypos-offset":         0.0,
	"time-gain":           1.0,
	"precision":           contract.DefaultPrecision,
	"output":              schema.TextOut,
	"view":                schema.PlanView,
	"cache-backend":       schema.SQLiteBackend,
	"cache-db-connect":    "",
	"history-backend":     "",
	"history-db-connect":  "",
	"color":               "yes",
}

// initConfig binds SCANTIME_* variables and registers defaults.
func initConfig() {
	setConfigSource()

	viper.SetEnvPrefix("SCANTIME")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for key, value := range configDefaults {
		viper.SetDefault(key, value)
	}
}

// setConfigSource points viper at --config or at .scantime.yaml in the usual places.
func setConfigSource() {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		return
	}
	viper.SetConfigName(".scantime")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")
}

// sharedSetup prepares a timeline command: profiling, configuration, persistence.
func sharedSetup(_ context.Context, _ *cobra.Command, args []string) error {
	profilePrefix := viper.GetString("profile")
	if err := contract.ProcessProfilingConfig(profile, profilePrefix); err != nil {
		return fmt.Errorf("profile settings: %w", err)
	}
	if profile.Enabled {
		if err := startProfiling(); err != nil {
			return fmt.Errorf("profiling: %w", err)
		}
	}

	if err := loadAndValidate(args); err != nil {
		return err
	}

	if err := iocache.InitCaching(cfg.CacheBackend, cfg.CacheDBConnect, cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}

	return nil
}

// loadAndValidate resolves the configuration without touching persistence.
// A single positional argument is taken as the plan path.
func loadAndValidate(args []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}

	input.PlanPathStr = ""
	if len(args) == 1 {
		input.PlanPathStr = args[0]
	}

	return contract.ProcessAndValidate(cfg, input)
}

func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// loadConfigFile reads the config file when one exists.
func loadConfigFile() error {
	setConfigSource()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

// Execute runs the scantime command tree.
func Execute() error {
	return rootCmd.Execute()
}

// SetCacheManager installs the persistence manager used by timeline commands.
func SetCacheManager(mgr contract.CacheManager) {
	cacheManager = mgr
}

// StopProfiling flushes profiles started by a timeline command.
func StopProfiling() error {
	return stopProfiling()
}
