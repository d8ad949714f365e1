package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/protonlab/scantime/schema"
)

// MachineProfile overrides global settings for plans delivered on one treatment machine.
// Unset fields keep the global value.
type MachineProfile struct {
	MinDoseRate    *float64 `yaml:"min-doserate"`
	MaxSpeed       *float64 `yaml:"max-speed"`
	MinSpeed       *float64 `yaml:"min-speed"`
	TimeResolution *float64 `yaml:"time-resolution"`
	DoseRateTable  string   `yaml:"doserate-table"`
	SpotEncoding   string   `yaml:"spot-encoding"`
	PositionScale  *float64 `yaml:"position-scale"`
	SCVInit        string   `yaml:"scv-init"`
}

// machineCatalog is the document layout of a machine profile file.
type machineCatalog struct {
	Machines map[string]MachineProfile `yaml:"machines"`
}

// LoadMachineProfiles reads a YAML machine catalog.
// Relative table and scv-init paths are resolved against the catalog directory.
func LoadMachineProfiles(path string) (map[string]MachineProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read machine profiles: %w", err)
	}
	return parseMachineProfiles(data, filepath.Dir(path))
}

func parseMachineProfiles(data []byte, baseDir string) (map[string]MachineProfile, error) {
	var catalog machineCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("invalid machine profiles: %w", err)
	}

	machines := make(map[string]MachineProfile, len(catalog.Machines))
	for name, prof := range catalog.Machines {
		if prof.SpotEncoding != "" {
			enc := schema.SpotEncoding(strings.ToLower(prof.SpotEncoding))
			if _, ok := schema.ValidSpotEncodings[enc]; !ok {
				return nil, fmt.Errorf("machine %q: invalid spot encoding '%s'", name, prof.SpotEncoding)
			}
			prof.SpotEncoding = string(enc)
		}
		if prof.DoseRateTable != "" && !filepath.IsAbs(prof.DoseRateTable) {
			prof.DoseRateTable = filepath.Join(baseDir, prof.DoseRateTable)
		}
		if prof.SCVInit != "" && !filepath.IsAbs(prof.SCVInit) {
			prof.SCVInit = filepath.Join(baseDir, prof.SCVInit)
		}
		machines[name] = prof
	}
	return machines, nil
}

// lookupMachine finds a profile by exact name, then case-insensitively.
func (c *Config) lookupMachine(name string) (MachineProfile, bool) {
	if prof, ok := c.Machines[name]; ok {
		return prof, true
	}
	for key, prof := range c.Machines {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(name)) {
			return prof, true
		}
	}
	return MachineProfile{}, false
}

// ResolveMachine returns a copy of the config with the profile of the named machine applied.
// It fails when the resulting config has no spot encoding or invalid limits.
func (c *Config) ResolveMachine(name string) (*Config, error) {
	resolved := c.Clone()
	if prof, ok := resolved.lookupMachine(name); ok && name != "" {
		resolved.MachineName = name
		if prof.MinDoseRate != nil {
			resolved.MinDoseRate = *prof.MinDoseRate
		}
		if prof.MaxSpeed != nil {
			resolved.MaxSpeed = *prof.MaxSpeed
		}
		if prof.MinSpeed != nil {
			resolved.MinSpeed = *prof.MinSpeed
		}
		if prof.TimeResolution != nil {
			resolved.TimeResolution = *prof.TimeResolution
		}
		if prof.PositionScale != nil {
			resolved.PositionScale = *prof.PositionScale
		}
		if prof.DoseRateTable != "" {
			resolved.DoseRateTable = prof.DoseRateTable
		}
		if prof.SpotEncoding != "" {
			resolved.SpotEncoding = schema.SpotEncoding(prof.SpotEncoding)
		}
	}

	if resolved.SpotEncoding == "" {
		return nil, fmt.Errorf("spot-encoding is required for machine %q (set it globally or in the machine profile)", name)
	}
	if err := checkLimits(resolved.MinDoseRate, resolved.MaxSpeed, resolved.MinSpeed, resolved.TimeResolution); err != nil {
		return nil, fmt.Errorf("machine %q: %w", name, err)
	}
	if !(resolved.PositionScale > 0) {
		return nil, fmt.Errorf("machine %q: position-scale must be positive", name)
	}
	return resolved, nil
}

// DoseRateTableFor returns the doserate table used for plans delivered on the named machine.
func (c *Config) DoseRateTableFor(name string) string {
	if prof, ok := c.lookupMachine(name); ok && name != "" && prof.DoseRateTable != "" {
		return prof.DoseRateTable
	}
	return c.DoseRateTable
}
