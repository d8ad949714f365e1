package schema

// SegmentRow is the flat projection of one segment, one row per spot.
type SegmentRow struct {
	BeamNumber      int     `json:"beam_number"`
	BeamName        string  `json:"beam_name"`
	Layer           int     `json:"layer"`
	Energy          float64 `json:"energy"`
	LayerDoseRate   float64 `json:"layer_doserate"`
	Segment         int     `json:"segment"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Weight          float64 `json:"weight"`
	Distance        float64 `json:"distance"`
	RoundedScanTime float64 `json:"rounded_scan_time"`
	Speed           float64 `json:"speed"`
}

// LayerRow summarizes one layer of a port.
type LayerRow struct {
	BeamNumber    int           `json:"beam_number"`
	BeamName      string        `json:"beam_name"`
	Layer         int           `json:"layer"`
	Energy        float64       `json:"energy"`
	Segments      int           `json:"segments"`
	TotalMU       float64       `json:"total_mu"`
	Ceiling       float64       `json:"doserate_ceiling"`
	LayerDoseRate float64       `json:"layer_doserate"`
	Clamp         DoseRateClamp `json:"clamp"`
	TotalScanTime float64       `json:"total_scan_time"`
	DReff         float64       `json:"dr_eff"`
	MUDelta       float64       `json:"mu_delta"`
	SlowSegments  int           `json:"slow_segments"`
}

// PortRow summarizes one port of a plan.
type PortRow struct {
	BeamNumber    int     `json:"beam_number"`
	BeamName      string  `json:"beam_name"`
	MachineName   string  `json:"machine_name"`
	Layers        int     `json:"layers"`
	Skipped       int     `json:"skipped_layers"`
	Segments      int     `json:"segments"`
	TotalMU       float64 `json:"total_mu"`
	TotalScanTime float64 `json:"total_scan_time"`
}

// FlattenSegments projects every segment of the plan into rows, in delivery order.
func FlattenSegments(plan *Plan) []SegmentRow {
	var rows []SegmentRow
	for _, port := range plan.Ports {
		for _, layer := range port.Layers {
			for i, seg := range layer.Segments {
				rows = append(rows, SegmentRow{
					BeamNumber:      port.BeamNumber,
					BeamName:        port.BeamName,
					Layer:           layer.Number,
					Energy:          layer.Energy,
					LayerDoseRate:   layer.LayerDoseRate,
					Segment:         i,
					X:               seg.Position.X,
					Y:               seg.Position.Y,
					Weight:          seg.Weight,
					Distance:        seg.Distance,
					RoundedScanTime: seg.RoundedScanTime,
					Speed:           seg.Speed,
				})
			}
		}
	}
	return rows
}

// FlattenLayers projects every layer of the plan into rows.
func FlattenLayers(plan *Plan) []LayerRow {
	var rows []LayerRow
	for _, port := range plan.Ports {
		for _, layer := range port.Layers {
			row := LayerRow{
				BeamNumber:    port.BeamNumber,
				BeamName:      port.BeamName,
				Layer:         layer.Number,
				Energy:        layer.Energy,
				Segments:      len(layer.Segments),
				TotalMU:       layer.TotalMU,
				Ceiling:       layer.Ceiling,
				LayerDoseRate: layer.LayerDoseRate,
				Clamp:         layer.Clamp,
				TotalScanTime: layer.TotalScanTime,
			}
			if layer.Stats != nil {
				row.DReff = layer.Stats.DReff
				row.MUDelta = layer.Stats.MUDelta
				row.SlowSegments = layer.Stats.SlowSegments
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// SummarizePorts returns one row per port.
func SummarizePorts(plan *Plan) []PortRow {
	rows := make([]PortRow, 0, len(plan.Ports))
	for _, port := range plan.Ports {
		rows = append(rows, PortRow{
			BeamNumber:    port.BeamNumber,
			BeamName:      port.BeamName,
			MachineName:   port.MachineName,
			Layers:        len(port.Layers),
			Skipped:       len(port.SkippedLayers),
			Segments:      port.SegmentCount(),
			TotalMU:       port.TotalMU(),
			TotalScanTime: port.TotalScanTime,
		})
	}
	return rows
}
