package contract

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/protonlab/scantime/schema"
)

// Default values for configuration.
const (
	DefaultMinDoseRate    = 1.4    // MU/s
	DefaultMaxSpeed       = 2000.0 // cm/s
	DefaultMinSpeed       = 10.0   // cm/s
	DefaultTimeResolution = 0.0001 // s
	DefaultPositionScale  = 0.1    // mm to cm
	DefaultPrecision      = 4
	MaxPrecision          = 6
	DefaultDoseRateCache  = 256
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a timeline run.
// This struct is the "final, validated" config.
type Config struct {
	PlanPath string

	MinDoseRate    float64
	MaxSpeed       float64
	MinSpeed       float64
	TimeResolution float64

	DoseRateTable     string
	DoseRateCacheSize int
	SpotEncoding      schema.SpotEncoding
	PositionScale     float64

	// Machines is the machine profile catalog, keyed by treatment machine name.
	Machines    map[string]MachineProfile
	MachineName string // set once a profile has been applied

	// LogCalibration converts delivery log counts, see CalibrationFor.
	LogCalibration schema.LogCalibration

	IncludeSetup     bool
	Strict           bool
	NormalizeWeights bool
	BeamFilter       string
	Workers          int

	View       schema.View
	Output     schema.OutputMode
	OutputFile string
	Precision  int
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	HistoryBackend   schema.DatabaseBackend
	HistoryDBConnect string // Please use env var as this is plaintext
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	PlanPathStr string

	// --- Machine limits ---
	MinDoseRate    float64 `mapstructure:"min-doserate"`
	MaxSpeed       float64 `mapstructure:"max-speed"`
	MinSpeed       float64 `mapstructure:"min-speed"`
	TimeResolution float64 `mapstructure:"time-resolution"`

	// --- Plan decoding ---
	DoseRateTable     string  `mapstructure:"doserate-table"`
	DoseRateCacheSize int     `mapstructure:"doserate-cache-size"`
	SpotEncoding      string  `mapstructure:"spot-encoding"`
	PositionScale     float64 `mapstructure:"position-scale"`
	MachineProfiles   string  `mapstructure:"machine-profiles"`
	IncludeSetup      bool    `mapstructure:"include-setup"`
	Strict            bool    `mapstructure:"strict"`
	NormalizeWeights  bool    `mapstructure:"normalize-weights"`
	Beam              string  `mapstructure:"beam"`
	Workers           int     `mapstructure:"workers"`

	// --- Delivery logs ---
	XPosGain    float64 `mapstructure:"xpos-gain"`
	XPosOffset  float64 `mapstructure:"xpos-offset"`
	YPosGain    float64 `mapstructure:"ypos-gain"`
	YPosOffset  float64 `mapstructure:"ypos-offset"`
	TimeGain    float64 `mapstructure:"time-gain"`
	KeepBeamOff bool    `mapstructure:"keep-beam-off"`
	SCVInit     string  `mapstructure:"scv-init"`

	// --- Output ---
	View       string `mapstructure:"view"`
	Output     string `mapstructure:"output"`
	OutputFile string `mapstructure:"output-file"`
	Precision  int    `mapstructure:"precision"`
	Width      int    `mapstructure:"width"`
	Color      string `mapstructure:"color"`

	// --- Persistence ---
	CacheBackend     string `mapstructure:"cache-backend"`
	CacheDBConnect   string `mapstructure:"cache-db-connect"`
	HistoryBackend   string `mapstructure:"history-backend"`
	HistoryDBConnect string `mapstructure:"history-db-connect"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Machines != nil {
		clone.Machines = make(map[string]MachineProfile, len(c.Machines))
		maps.Copy(clone.Machines, c.Machines)
	}
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateLimits(cfg, input); err != nil {
		return err
	}
	if err := processDecoding(cfg, input); err != nil {
		return err
	}
	if err := processMachineProfiles(cfg, input); err != nil {
		return err
	}
	if err := processCalibration(cfg, input); err != nil {
		return err
	}
	if err := resolvePlanPath(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' before the host:port address")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates cache and history backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("cache-db-connect: %w", err)
	}

	// --- History Backend Validation ---
	cfg.HistoryBackend = schema.DatabaseBackend(strings.ToLower(input.HistoryBackend))
	if cfg.HistoryBackend == "" {
		return nil // history tracking disabled
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.HistoryBackend]; !ok {
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", input.HistoryBackend)
	}
	cfg.HistoryDBConnect = input.HistoryDBConnect
	if err := ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return fmt.Errorf("history-db-connect: %w", err)
	}

	// SQLite stores must live in different files.
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.HistoryBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		historyDBPath := cfg.HistoryDBConnect
		if historyDBPath == "" {
			historyDBPath = GetHistoryDBFilePath()
		}
		if cacheDBPath == historyDBPath {
			return fmt.Errorf("cache and history storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}

	return nil
}

// validateSimpleInputs processes and validates the output and execution fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.IncludeSetup = input.IncludeSetup
	cfg.Strict = input.Strict
	cfg.NormalizeWeights = input.NormalizeWeights
	cfg.BeamFilter = strings.TrimSpace(input.Beam)

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("parquet output requires --output-file")
	}

	cfg.View = schema.View(strings.ToLower(input.View))
	if cfg.View == "" {
		cfg.View = schema.PlanView
	}
	if _, ok := schema.ValidViews[cfg.View]; !ok {
		return fmt.Errorf("invalid view '%s'. must be plan, layers, segments", input.View)
	}

	return validateBackendConfigs(cfg, input)
}

// validateLimits transfers and checks the machine limits.
func validateLimits(cfg *Config, input *ConfigRawInput) error {
	cfg.MinDoseRate = input.MinDoseRate
	cfg.MaxSpeed = input.MaxSpeed
	cfg.MinSpeed = input.MinSpeed
	cfg.TimeResolution = input.TimeResolution
	return checkLimits(cfg.MinDoseRate, cfg.MaxSpeed, cfg.MinSpeed, cfg.TimeResolution)
}

func checkLimits(minRate, maxSpeed, minSpeed, resolution float64) error {
	switch {
	case !(minRate > 0):
		return fmt.Errorf("min-doserate must be positive (received %v)", minRate)
	case !(maxSpeed > 0):
		return fmt.Errorf("max-speed must be positive (received %v)", maxSpeed)
	case !(minSpeed > 0):
		return fmt.Errorf("min-speed must be positive (received %v)", minSpeed)
	case minSpeed > maxSpeed:
		return fmt.Errorf("min-speed (%v) cannot exceed max-speed (%v)", minSpeed, maxSpeed)
	case !(resolution > 0):
		return fmt.Errorf("time-resolution must be positive (received %v)", resolution)
	}
	return nil
}

// processDecoding handles the spot encoding and the doserate table settings.
func processDecoding(cfg *Config, input *ConfigRawInput) error {
	cfg.SpotEncoding = schema.SpotEncoding(strings.ToLower(strings.TrimSpace(input.SpotEncoding)))
	if cfg.SpotEncoding != "" {
		if _, ok := schema.ValidSpotEncodings[cfg.SpotEncoding]; !ok {
			return fmt.Errorf("invalid spot encoding '%s'. must be shi-packed, float32", input.SpotEncoding)
		}
	}

	cfg.PositionScale = input.PositionScale
	if !(cfg.PositionScale > 0) {
		return fmt.Errorf("position-scale must be positive (received %v)", input.PositionScale)
	}

	cfg.DoseRateCacheSize = input.DoseRateCacheSize
	if cfg.DoseRateCacheSize <= 0 {
		return fmt.Errorf("doserate-cache-size must be greater than 0 (received %d)", input.DoseRateCacheSize)
	}

	cfg.DoseRateTable = strings.TrimSpace(input.DoseRateTable)
	return nil
}

// processMachineProfiles loads the optional machine catalog.
func processMachineProfiles(cfg *Config, input *ConfigRawInput) error {
	path := strings.TrimSpace(input.MachineProfiles)
	if path == "" {
		cfg.Machines = nil
		return nil
	}
	machines, err := LoadMachineProfiles(path)
	if err != nil {
		return err
	}
	cfg.Machines = machines
	return nil
}

// resolvePlanPath makes the plan path absolute and checks that it is a readable file.
func resolvePlanPath(cfg *Config, input *ConfigRawInput) error {
	if input.PlanPathStr == "" {
		cfg.PlanPath = ""
		return nil
	}
	absPath, err := filepath.Abs(input.PlanPathStr)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("cannot access plan file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("plan path %s is a directory", absPath)
	}
	cfg.PlanPath = filepath.Clean(absPath)
	return nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
