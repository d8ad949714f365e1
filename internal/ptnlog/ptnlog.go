// Package ptnlog reads the spot position logs (.ptn) written by the scanning controller.
//
// A log is a flat stream of big-endian uint16 values, eight per record:
// x, y, x size, y size, dose 1, dose 2, layer number and beam on/off.
// Records are written at a fixed sampling period.
package ptnlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/protonlab/scantime/schema"
	"gonum.org/v1/gonum/floats"
)

// RecordWidth is the size of one log record in bytes.
const RecordWidth = 16

// ErrMalformedLog is returned when a log does not hold whole records.
var ErrMalformedLog = errors.New("malformed ptn log")

// Record is one raw log record in controller counts.
type Record struct {
	X, Y         uint16
	XSize, YSize uint16
	Dose1, Dose2 uint16
	Layer        uint16
	BeamOn       uint16
}

// Sample is a calibrated record.
type Sample struct {
	TimeMS float64 `json:"time_ms"`
	X      float64 `json:"x"` // mm
	Y      float64 `json:"y"` // mm
	XSize  float64 `json:"x_size"`
	YSize  float64 `json:"y_size"`
	Dose1  float64 `json:"dose1"`
	Dose2  float64 `json:"dose2"`
	Layer  int     `json:"layer"`
	BeamOn bool    `json:"beam_on"`
}

// Log is a decoded layer log.
type Log struct {
	Path    string
	Samples []Sample
	// CumulativeMU is the running sum of the primary dose monitor over Samples.
	CumulativeMU []float64
	// Dropped counts beam-off records removed by calibration.
	Dropped int
}

// DecodeRecords splits b into raw records.
func DecodeRecords(b []byte) ([]Record, error) {
	if len(b)%RecordWidth != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedLog, len(b), RecordWidth)
	}
	records := make([]Record, len(b)/RecordWidth)
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	return records, nil
}

// Decode reads a whole log from r and calibrates it.
func Decode(r io.Reader, cal schema.LogCalibration) (*Log, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	records, err := DecodeRecords(b)
	if err != nil {
		return nil, err
	}
	return Calibrate(records, cal), nil
}

// ReadFile decodes the log stored at path.
func ReadFile(path string, cal schema.LogCalibration) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	log, err := Decode(f, cal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Path = path
	return log, nil
}

// Calibrate converts raw records to samples.
// Sample times keep the position of the record in the stream, so dropped
// beam-off records leave gaps.
func Calibrate(records []Record, cal schema.LogCalibration) *Log {
	log := &Log{Samples: make([]Sample, 0, len(records))}
	dose := make([]float64, 0, len(records))
	for i, rec := range records {
		on := rec.BeamOn != 0
		if !on && !cal.KeepBeamOff {
			log.Dropped++
			continue
		}
		log.Samples = append(log.Samples, Sample{
			TimeMS: float64(i) * cal.TimeGain,
			X:      (float64(rec.X) - cal.XPosOffset) * cal.XPosGain,
			Y:      (float64(rec.Y) - cal.YPosOffset) * cal.YPosGain,
			XSize:  float64(rec.XSize) * cal.XPosGain,
			YSize:  float64(rec.YSize) * cal.YPosGain,
			Dose1:  float64(rec.Dose1),
			Dose2:  float64(rec.Dose2),
			Layer:  int(rec.Layer),
			BeamOn: on,
		})
		dose = append(dose, float64(rec.Dose1))
	}
	log.CumulativeMU = floats.CumSum(make([]float64, len(dose)), dose)
	return log
}

// Positions returns the x and y columns of the samples.
func (l *Log) Positions() (x, y []float64) {
	x = make([]float64, len(l.Samples))
	y = make([]float64, len(l.Samples))
	for i, s := range l.Samples {
		x[i], y[i] = s.X, s.Y
	}
	return x, y
}

// TotalMU returns the delivered monitor counts, 0 for an empty log.
func (l *Log) TotalMU() float64 {
	if len(l.CumulativeMU) == 0 {
		return 0
	}
	return l.CumulativeMU[len(l.CumulativeMU)-1]
}
