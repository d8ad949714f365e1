package schema

// PlanRecord is the container-independent content of an RT ion plan file.
type PlanRecord struct {
	SourcePath  string
	Digest      string // hex SHA-256 of the file bytes
	PatientID   string
	PatientName string
	PlanLabel   string
	MachineName string
	Beams       []BeamRecord
}

// BeamRecord carries one ion beam as read from the plan.
type BeamRecord struct {
	Number         int
	Name           string
	Description    string
	MachineName    string
	NumberOfBlocks int
	BlockData      []float64 // mm, interleaved x/y
	HasMLC         bool
	LeafBoundaries []float64 // leaf boundary positions, copied as-is
	Layers         []LayerRecord
}

// LayerRecord is one start/end control point pair.
type LayerRecord struct {
	Number           int // 1-based pair ordinal
	ControlPoint     int
	Energy           float64
	CumWeightNow     float64
	CumWeightNext    float64
	PositionMap      []byte    // nil when the private position map is missing
	WeightMap        []byte    // nil when the private weight map is missing
	MLCLeafPositions []float64 // mm, bank A then bank B
	NumPositions     string
	TuneID           string
}
