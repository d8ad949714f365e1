// Package parquet provides data structures and functions for exporting scantime
// timelines and run history to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/protonlab/scantime/schema"
)

// Run represents one recorded timeline run.
// This struct maps to the scantime_runs database table.
type Run struct {
	RunID         int64      `parquet:"run_id,snappy"`
	RunUUID       string     `parquet:"run_uuid,snappy"`
	PlanDigest    string     `parquet:"plan_digest,snappy,dict"`
	PlanPath      string     `parquet:"plan_path,snappy"`
	MachineName   *string    `parquet:"machine_name,optional,snappy,dict"`
	SpotEncoding  string     `parquet:"spot_encoding,snappy,dict"`
	StartTime     time.Time  `parquet:"start_time,snappy"`
	EndTime       *time.Time `parquet:"end_time,optional,snappy"`
	RunDurationMs *int32     `parquet:"run_duration_ms,optional,snappy"`
	TotalLayers   int32      `parquet:"total_layers,snappy"`
	TotalScanTime *float64   `parquet:"total_scan_time,optional,snappy"`
	ConfigParams  *string    `parquet:"config_params,optional,snappy"`
}

// LayerSummary represents the recorded outcome of one layer in a run.
// This struct maps to the scantime_layer_summaries database table.
type LayerSummary struct {
	RunID         int64   `parquet:"run_id,snappy"`
	BeamNumber    int32   `parquet:"beam_number,snappy"`
	BeamName      string  `parquet:"beam_name,snappy,dict"`
	LayerIndex    int32   `parquet:"layer_index,snappy"`
	Energy        float64 `parquet:"energy,snappy"`
	SegmentCount  int32   `parquet:"segment_count,snappy"`
	TotalMU       float64 `parquet:"total_mu,snappy"`
	LayerDoseRate float64 `parquet:"layer_doserate,snappy"`
	Clamp         string  `parquet:"clamp,snappy,dict"`
	TotalScanTime float64 `parquet:"total_scan_time,snappy"`
}

// Segment is one spot of a computed timeline.
type Segment struct {
	BeamNumber      int32   `parquet:"beam_number,snappy"`
	BeamName        string  `parquet:"beam_name,snappy,dict"`
	Layer           int32   `parquet:"layer,snappy"`
	Energy          float64 `parquet:"energy,snappy"`
	LayerDoseRate   float64 `parquet:"layer_doserate,snappy"`
	Segment         int32   `parquet:"segment,snappy"`
	X               float64 `parquet:"x,snappy"`
	Y               float64 `parquet:"y,snappy"`
	Weight          float64 `parquet:"weight,snappy"`
	Distance        float64 `parquet:"distance,snappy"`
	RoundedScanTime float64 `parquet:"rounded_scan_time,snappy"`
	Speed           float64 `parquet:"speed,snappy"`
}

// Layer is the summary of one layer of a computed timeline.
type Layer struct {
	BeamNumber    int32   `parquet:"beam_number,snappy"`
	BeamName      string  `parquet:"beam_name,snappy,dict"`
	Layer         int32   `parquet:"layer,snappy"`
	Energy        float64 `parquet:"energy,snappy"`
	Segments      int32   `parquet:"segments,snappy"`
	TotalMU       float64 `parquet:"total_mu,snappy"`
	Ceiling       float64 `parquet:"doserate_ceiling,snappy"`
	LayerDoseRate float64 `parquet:"layer_doserate,snappy"`
	Clamp         string  `parquet:"clamp,snappy,dict"`
	TotalScanTime float64 `parquet:"total_scan_time,snappy"`
	DReff         float64 `parquet:"dr_eff,snappy"`
	MUDelta       float64 `parquet:"mu_delta,snappy"`
	SlowSegments  int32   `parquet:"slow_segments,snappy"`
}

// Port is the summary of one port of a computed timeline.
type Port struct {
	BeamNumber    int32   `parquet:"beam_number,snappy"`
	BeamName      string  `parquet:"beam_name,snappy"`
	MachineName   string  `parquet:"machine_name,snappy,dict"`
	Layers        int32   `parquet:"layers,snappy"`
	Skipped       int32   `parquet:"skipped_layers,snappy"`
	Segments      int32   `parquet:"segments,snappy"`
	TotalMU       float64 `parquet:"total_mu,snappy"`
	TotalScanTime float64 `parquet:"total_scan_time,snappy"`
}

// LayerDeviation compares one planned layer with its delivery log.
type LayerDeviation struct {
	BeamNumber   int32   `parquet:"beam_number,snappy"`
	BeamName     string  `parquet:"beam_name,snappy,dict"`
	Layer        int32   `parquet:"layer,snappy"`
	ControlPoint int32   `parquet:"control_point,snappy"`
	Energy       float64 `parquet:"energy,snappy"`
	LogFile      string  `parquet:"log_file,snappy"`
	PlanSpots    int32   `parquet:"plan_spots,snappy"`
	LogSamples   int32   `parquet:"log_samples,snappy"`
	DeliveredMU  float64 `parquet:"delivered_mu,snappy"`
	MeanDiffX    float64 `parquet:"mean_diff_x,snappy"`
	StdDiffX     float64 `parquet:"std_diff_x,snappy"`
	MaxAbsDiffX  float64 `parquet:"max_abs_diff_x,snappy"`
	MeanDiffY    float64 `parquet:"mean_diff_y,snappy"`
	StdDiffY     float64 `parquet:"std_diff_y,snappy"`
	MaxAbsDiffY  float64 `parquet:"max_abs_diff_y,snappy"`
	Error        *string `parquet:"error,optional,snappy"`
}

// WriteRows writes a slice of rows to a Parquet file.
// The schema is derived from the struct tags of T.
func WriteRows[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertRunRecords converts schema.RunRecord to Run for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, r := range records {
		result[i] = Run{
			RunID:         r.RunID,
			RunUUID:       r.RunUUID,
			PlanDigest:    r.PlanDigest,
			PlanPath:      r.PlanPath,
			MachineName:   r.MachineName,
			SpotEncoding:  r.SpotEncoding,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			RunDurationMs: r.RunDurationMs,
			TotalLayers:   r.TotalLayers,
			TotalScanTime: r.TotalScanTime,
			ConfigParams:  r.ConfigParams,
		}
	}
	return result
}

// ConvertLayerSummaryRecords converts schema.LayerSummaryRecord to LayerSummary for Parquet export.
func ConvertLayerSummaryRecords(records []schema.LayerSummaryRecord) []LayerSummary {
	result := make([]LayerSummary, len(records))
	for i, r := range records {
		result[i] = LayerSummary(r)
	}
	return result
}

// ConvertSegmentRows converts flattened segments for Parquet output.
func ConvertSegmentRows(rows []schema.SegmentRow) []Segment {
	result := make([]Segment, len(rows))
	for i, r := range rows {
		result[i] = Segment{
			BeamNumber:      int32(r.BeamNumber),
			BeamName:        r.BeamName,
			Layer:           int32(r.Layer),
			Energy:          r.Energy,
			LayerDoseRate:   r.LayerDoseRate,
			Segment:         int32(r.Segment),
			X:               r.X,
			Y:               r.Y,
			Weight:          r.Weight,
			Distance:        r.Distance,
			RoundedScanTime: r.RoundedScanTime,
			Speed:           r.Speed,
		}
	}
	return result
}

// ConvertLayerRows converts flattened layers for Parquet output.
func ConvertLayerRows(rows []schema.LayerRow) []Layer {
	result := make([]Layer, len(rows))
	for i, r := range rows {
		result[i] = Layer{
			BeamNumber:    int32(r.BeamNumber),
			BeamName:      r.BeamName,
			Layer:         int32(r.Layer),
			Energy:        r.Energy,
			Segments:      int32(r.Segments),
			TotalMU:       r.TotalMU,
			Ceiling:       r.Ceiling,
			LayerDoseRate: r.LayerDoseRate,
			Clamp:         string(r.Clamp),
			TotalScanTime: r.TotalScanTime,
			DReff:         r.DReff,
			MUDelta:       r.MUDelta,
			SlowSegments:  int32(r.SlowSegments),
		}
	}
	return result
}

// ConvertPortRows converts port summaries for Parquet output.
func ConvertPortRows(rows []schema.PortRow) []Port {
	result := make([]Port, len(rows))
	for i, r := range rows {
		result[i] = Port{
			BeamNumber:    int32(r.BeamNumber),
			BeamName:      r.BeamName,
			MachineName:   r.MachineName,
			Layers:        int32(r.Layers),
			Skipped:       int32(r.Skipped),
			Segments:      int32(r.Segments),
			TotalMU:       r.TotalMU,
			TotalScanTime: r.TotalScanTime,
		}
	}
	return result
}

// ConvertLayerDeviations converts check results for Parquet output.
func ConvertLayerDeviations(rows []schema.LayerDeviation) []LayerDeviation {
	result := make([]LayerDeviation, len(rows))
	for i, r := range rows {
		result[i] = LayerDeviation{
			BeamNumber:   int32(r.BeamNumber),
			BeamName:     r.BeamName,
			Layer:        int32(r.Layer),
			ControlPoint: int32(r.ControlPoint),
			Energy:       r.Energy,
			LogFile:      r.LogFile,
			PlanSpots:    int32(r.PlanSpots),
			LogSamples:   int32(r.LogSamples),
			DeliveredMU:  r.DeliveredMU,
			MeanDiffX:    r.MeanDiffX,
			StdDiffX:     r.StdDiffX,
			MaxAbsDiffX:  r.MaxAbsDiffX,
			MeanDiffY:    r.MeanDiffY,
			StdDiffY:     r.StdDiffY,
			MaxAbsDiffY:  r.MaxAbsDiffY,
		}
		if r.Error != "" {
			result[i].Error = &r.Error
		}
	}
	return result
}
