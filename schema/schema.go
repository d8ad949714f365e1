// Package schema has the models shared by every part of scantime.
package schema

// Point is a spot position in the isocenter plane (cm).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LineSegment is one spot delivery event inside a layer.
// Everything after Energy is written by the scan-time engine only.
type LineSegment struct {
	Position Point   `json:"position"`
	Weight   float64 `json:"weight"`   // MU
	Distance float64 `json:"distance"` // cm from the previous spot, 0 for the first
	Energy   float64 `json:"energy"`   // MeV, copied from the layer

	DoseRate        float64 `json:"dose_rate"`         // MU/s
	MUPerDist       float64 `json:"mu_per_dist"`       // MU/cm
	RawScanTime     float64 `json:"raw_scan_time"`     // s
	RoundedScanTime float64 `json:"rounded_scan_time"` // s, on the time grid
	Speed           float64 `json:"speed"`             // cm/s
}

// LayerStats holds per-layer diagnostics derived after the engine ran.
type LayerStats struct {
	WeightSum        float64 `json:"weight_sum"`
	MUDelta          float64 `json:"mu_delta"` // TotalMU minus WeightSum
	MaxCandidate     float64 `json:"max_candidate_doserate"`
	MinCandidate     float64 `json:"min_candidate_doserate"`
	DReff            float64 `json:"dr_eff"`
	MaxOverUserRange float64 `json:"max_over_user_range"`
	MaxOverDReff     float64 `json:"max_over_dr_eff"`
	SlowSegments     int     `json:"slow_segments"` // segments below the minimum speed
}

// Layer is one energy step of a beam.
type Layer struct {
	Number        int           `json:"number"` // 1-based position within the port
	ControlPoint  int           `json:"control_point"`
	Energy        float64       `json:"energy"`
	CumWeightNow  float64       `json:"cum_weight_now"`
	CumWeightNext float64       `json:"cum_weight_next"`
	Segments      []LineSegment `json:"segments"`
	MLCPositions  []Point       `json:"mlc_positions,omitempty"` // nil when no MLC is mounted
	NumPositions  string        `json:"num_positions,omitempty"`
	TuneID        string        `json:"tune_id,omitempty"`

	TotalMU       float64       `json:"total_mu"`
	TotalScanTime float64       `json:"total_scan_time"`
	LayerDoseRate float64       `json:"layer_doserate"`
	Ceiling       float64       `json:"doserate_ceiling"`
	Clamp         DoseRateClamp `json:"clamp"`
	Stats         *LayerStats   `json:"stats,omitempty"`
}

// SkippedLayer records a layer dropped while building a port.
type SkippedLayer struct {
	ControlPoint int    `json:"control_point"`
	Reason       string `json:"reason"`
}

// Port is one treatment beam.
type Port struct {
	BeamNumber    int            `json:"beam_number"`
	BeamName      string         `json:"beam_name"`
	Description   string         `json:"description,omitempty"`
	MachineName   string         `json:"machine_name,omitempty"`
	Layers        []*Layer       `json:"layers"`
	Aperture      []Point        `json:"aperture,omitempty"` // nil when no block is mounted
	MLCY          []float64      `json:"mlc_y,omitempty"`    // nil when no MLC is mounted
	TotalScanTime float64        `json:"total_scan_time"`
	SkippedLayers []SkippedLayer `json:"skipped_layers,omitempty"`
}

// Plan is the reconstructed delivery timeline of a whole plan file.
type Plan struct {
	SourcePath    string       `json:"source_path"`
	Digest        string       `json:"digest"`
	PatientID     string       `json:"patient_id,omitempty"`
	PatientName   string       `json:"patient_name,omitempty"`
	PlanLabel     string       `json:"plan_label,omitempty"`
	MachineName   string       `json:"machine_name,omitempty"`
	SpotEncoding  SpotEncoding `json:"spot_encoding"`
	Ports         []*Port      `json:"ports"`
	TotalScanTime float64      `json:"total_scan_time"`
}

// LayerCount returns the number of built layers across all ports.
func (p *Plan) LayerCount() int {
	n := 0
	for _, port := range p.Ports {
		n += len(port.Layers)
	}
	return n
}

// SegmentCount returns the number of segments in the port.
func (p *Port) SegmentCount() int {
	n := 0
	for _, layer := range p.Layers {
		n += len(layer.Segments)
	}
	return n
}

// TotalMU returns the summed layer MU of the port.
func (p *Port) TotalMU() float64 {
	total := 0.0
	for _, layer := range p.Layers {
		total += layer.TotalMU
	}
	return total
}
