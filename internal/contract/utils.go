package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/protonlab/scantime/schema"
)

// Color variables for console output.
var (
	FloorColor       = color.New(color.FgYellow)              // rate lifted to the machine minimum
	CeilingColor     = color.New(color.FgMagenta, color.Bold) // rate capped by the energy ceiling
	BottleneckColor  = color.New(color.FgCyan)                // rate set by the densest segment
	DegenerateColor  = color.New(color.Faint)                 // nothing to scan
	UnavailableColor = color.New(color.FgRed, color.Bold)     // no usable ceiling
)

// GetPlainLabel returns the display label of a clamp outcome.
// This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(clamp schema.DoseRateClamp) string {
	switch clamp {
	case schema.ClampFloor:
		return "Floor"
	case schema.ClampCeiling:
		return "Ceiling"
	case schema.ClampBottleneck:
		return "Bottleneck"
	case schema.ClampDegenerate:
		return "Degenerate"
	case schema.ClampUnavailable:
		return "Unavailable"
	default:
		return string(clamp)
	}
}

// GetColorLabel returns a colored clamp label for console output (table).
func GetColorLabel(clamp schema.DoseRateClamp) string {
	text := GetPlainLabel(clamp)

	switch clamp {
	case schema.ClampFloor:
		return FloorColor.Sprint(text)
	case schema.ClampCeiling:
		return CeilingColor.Sprint(text)
	case schema.ClampBottleneck:
		return BottleneckColor.Sprint(text)
	case schema.ClampDegenerate:
		return DegenerateColor.Sprint(text)
	case schema.ClampUnavailable:
		return UnavailableColor.Sprint(text)
	default:
		return text
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// LogPlanHeader prints a concise, 2-line header before a plan is timed.
func LogPlanHeader(cfg *Config, plan *schema.PlanRecord) {
	label := plan.PlanLabel
	if label == "" {
		label = filepath.Base(plan.SourcePath)
	}
	machine := cfg.MachineName
	if machine == "" {
		machine = plan.MachineName
	}
	if machine == "" {
		machine = "unknown"
	}

	// Line 1: what is being timed
	_, _ = fmt.Fprintf(os.Stderr, "Plan: %s (%d beams, machine: %s)\n", label, len(plan.Beams), machine)

	// Line 2: the limits in force
	_, _ = fmt.Fprintf(os.Stderr, "Limits: min %.4g MU/s, speed %.4g..%.4g cm/s, grid %.4g s, encoding %s\n",
		cfg.MinDoseRate, cfg.MinSpeed, cfg.MaxSpeed, cfg.TimeResolution, cfg.SpotEncoding)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for timeline cache storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".scantime_cache.db"
	}
	return filepath.Join(homeDir, ".scantime_cache.db")
}

// GetHistoryDBFilePath returns the path to the SQLite DB file for run history storage.
func GetHistoryDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".scantime_history.db"
	}
	return filepath.Join(homeDir, ".scantime_history.db")
}

// TruncatePath truncates a file path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to leave room for the "..." prefix.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
