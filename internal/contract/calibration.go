package contract

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/protonlab/scantime/schema"
)

// SCVInit holds the calibration keys found in a scanning controller init file.
// Keys missing from the file are nil.
type SCVInit struct {
	XPosGain          *float64
	YPosGain          *float64
	XPosOffset        *float64
	YPosOffset        *float64
	TimeGain          *float64
	FilteredBeamOnOff string // lowercased, empty when unset
}

// LoadSCVInit reads the init file at path.
func LoadSCVInit(path string) (SCVInit, error) {
	f, err := os.Open(path)
	if err != nil {
		return SCVInit{}, fmt.Errorf("cannot read scv init: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseSCVInit(f)
}

// ParseSCVInit reads "KEY value" lines. Blank lines, # comments, unknown keys
// and values that are not numbers are skipped.
func ParseSCVInit(r io.Reader) (SCVInit, error) {
	var scv SCVInit
	numeric := map[string]**float64{
		"XPOSGAIN":   &scv.XPosGain,
		"YPOSGAIN":   &scv.YPosGain,
		"XPOSOFFSET": &scv.XPosOffset,
		"YPOSOFFSET": &scv.YPosOffset,
		"TIMEGAIN":   &scv.TimeGain,
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		key, value := fields[0], fields[1]
		if key == "FILTERED_BEAM_ON_OFF" {
			scv.FilteredBeamOnOff = strings.ToLower(value)
			continue
		}
		dst, ok := numeric[key]
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = &v
		}
	}
	if err := scanner.Err(); err != nil {
		return SCVInit{}, fmt.Errorf("cannot read scv init: %w", err)
	}
	return scv, nil
}

// Apply overrides cal with every key the file sets.
// FILTERED_BEAM_ON_OFF "off" keeps beam-off records and "on" filters them.
func (s SCVInit) Apply(cal schema.LogCalibration) (schema.LogCalibration, error) {
	for _, p := range []struct {
		src *float64
		dst *float64
	}{
		{s.XPosGain, &cal.XPosGain},
		{s.YPosGain, &cal.YPosGain},
		{s.XPosOffset, &cal.XPosOffset},
		{s.YPosOffset, &cal.YPosOffset},
		{s.TimeGain, &cal.TimeGain},
	} {
		if p.src != nil {
			*p.dst = *p.src
		}
	}
	switch s.FilteredBeamOnOff {
	case "":
	case "on":
		cal.KeepBeamOff = false
	case "off":
		cal.KeepBeamOff = true
	default:
		filter, err := ParseBoolString(s.FilteredBeamOnOff)
		if err != nil {
			return cal, fmt.Errorf("invalid FILTERED_BEAM_ON_OFF: %w", err)
		}
		cal.KeepBeamOff = !filter
	}
	return cal, checkCalibration(cal)
}

func checkCalibration(cal schema.LogCalibration) error {
	for name, v := range map[string]float64{
		"xpos-gain":   cal.XPosGain,
		"ypos-gain":   cal.YPosGain,
		"xpos-offset": cal.XPosOffset,
		"ypos-offset": cal.YPosOffset,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite (received %v)", name, v)
		}
	}
	if cal.XPosGain == 0 || cal.YPosGain == 0 {
		return fmt.Errorf("position gains cannot be zero")
	}
	if !(cal.TimeGain > 0) || math.IsInf(cal.TimeGain, 0) {
		return fmt.Errorf("time-gain must be positive (received %v)", cal.TimeGain)
	}
	return nil
}

// processCalibration reads the log calibration keys, then the optional init file.
func processCalibration(cfg *Config, input *ConfigRawInput) error {
	cal := schema.LogCalibration{
		XPosGain:    input.XPosGain,
		XPosOffset:  input.XPosOffset,
		YPosGain:    input.YPosGain,
		YPosOffset:  input.YPosOffset,
		TimeGain:    input.TimeGain,
		KeepBeamOff: input.KeepBeamOff,
	}
	if path := strings.TrimSpace(input.SCVInit); path != "" {
		scv, err := LoadSCVInit(path)
		if err != nil {
			return err
		}
		if cal, err = scv.Apply(cal); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := checkCalibration(cal); err != nil {
		return err
	}
	cfg.LogCalibration = cal
	return nil
}

// CalibrationFor returns the log calibration for plans delivered on the named machine.
// A machine profile with its own scv-init file overrides the global keys it sets.
func (c *Config) CalibrationFor(name string) (schema.LogCalibration, error) {
	prof, ok := c.lookupMachine(name)
	if !ok || name == "" || prof.SCVInit == "" {
		return c.LogCalibration, nil
	}
	scv, err := LoadSCVInit(prof.SCVInit)
	if err != nil {
		return schema.LogCalibration{}, fmt.Errorf("machine %q: %w", name, err)
	}
	cal, err := scv.Apply(c.LogCalibration)
	if err != nil {
		return schema.LogCalibration{}, fmt.Errorf("machine %q: %s: %w", name, filepath.Base(prof.SCVInit), err)
	}
	return cal, nil
}
