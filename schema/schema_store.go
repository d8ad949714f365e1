package schema

import "time"

// RunRecord represents a row from the scantime_runs table.
type RunRecord struct {
	RunID         int64
	RunUUID       string
	PlanDigest    string
	PlanPath      string
	MachineName   *string
	SpotEncoding  string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int32
	TotalLayers   int32
	TotalScanTime *float64
	ConfigParams  *string
}

// LayerSummaryRecord represents a row from the scantime_layer_summaries table.
type LayerSummaryRecord struct {
	RunID         int64
	BeamNumber    int32
	BeamName      string
	LayerIndex    int32
	Energy        float64
	SegmentCount  int32
	TotalMU       float64
	LayerDoseRate float64
	Clamp         string
	TotalScanTime float64
}

// NewLayerSummaryRecord builds the history row of a computed layer.
func NewLayerSummaryRecord(runID int64, port *Port, layer *Layer) LayerSummaryRecord {
	return LayerSummaryRecord{
		RunID:         runID,
		BeamNumber:    int32(port.BeamNumber),
		BeamName:      port.BeamName,
		LayerIndex:    int32(layer.Number),
		Energy:        layer.Energy,
		SegmentCount:  int32(len(layer.Segments)),
		TotalMU:       layer.TotalMU,
		LayerDoseRate: layer.LayerDoseRate,
		Clamp:         string(layer.Clamp),
		TotalScanTime: layer.TotalScanTime,
	}
}

// RunStart describes a run when it is opened in the history store.
type RunStart struct {
	StartTime    time.Time
	PlanDigest   string
	PlanPath     string
	MachineName  string
	SpotEncoding SpotEncoding
	ConfigParams map[string]any
}
