package schema

// LogCalibration converts raw controller counts of a PTN log to millimetres and milliseconds.
type LogCalibration struct {
	XPosGain   float64 `json:"xpos_gain"`
	XPosOffset float64 `json:"xpos_offset"`
	YPosGain   float64 `json:"ypos_gain"`
	YPosOffset float64 `json:"ypos_offset"`
	TimeGain   float64 `json:"time_gain"` // ms per record
	// KeepBeamOff keeps the records logged while the beam was off.
	KeepBeamOff bool `json:"keep_beam_off"`
}

// DefaultLogCalibration leaves raw counts unchanged and drops beam-off records.
func DefaultLogCalibration() LogCalibration {
	return LogCalibration{XPosGain: 1, YPosGain: 1, TimeGain: 1}
}

// LayerDeviation compares the planned spot path of one layer with its delivery log.
// Differences are planned minus delivered, in mm.
type LayerDeviation struct {
	BeamNumber   int     `json:"beam_number"`
	BeamName     string  `json:"beam_name"`
	Layer        int     `json:"layer"`
	ControlPoint int     `json:"control_point"`
	Energy       float64 `json:"energy"`
	LogFile      string  `json:"log_file"`
	PlanSpots    int     `json:"plan_spots"`
	LogSamples   int     `json:"log_samples"`
	DeliveredMU  float64 `json:"delivered_mu"` // raw monitor counts

	MeanDiffX   float64 `json:"mean_diff_x"`
	StdDiffX    float64 `json:"std_diff_x"`
	MaxAbsDiffX float64 `json:"max_abs_diff_x"`
	MeanDiffY   float64 `json:"mean_diff_y"`
	StdDiffY    float64 `json:"std_diff_y"`
	MaxAbsDiffY float64 `json:"max_abs_diff_y"`

	Error string `json:"error,omitempty"`
}

// CheckReport is the outcome of comparing a plan with its delivery logs.
type CheckReport struct {
	PlanPath        string           `json:"plan_path"`
	PatientID       string           `json:"patient_id,omitempty"`
	PatientName     string           `json:"patient_name,omitempty"`
	MachineName     string           `json:"machine_name,omitempty"`
	Calibration     LogCalibration   `json:"calibration"`
	Layers          []LayerDeviation `json:"layers"`
	UnusedLogs      []string         `json:"unused_logs,omitempty"`
	UncheckedLayers int              `json:"unchecked_layers"`
}

// Failed returns the number of layers whose log could not be compared.
func (r *CheckReport) Failed() int {
	n := 0
	for _, d := range r.Layers {
		if d.Error != "" {
			n++
		}
	}
	return n
}
