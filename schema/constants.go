package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for caching and history.
	DatabaseBackend string

	// SpotEncoding names the byte layout of the private spot maps in a plan.
	SpotEncoding string

	// DoseRateClamp records which rule fixed a layer dose rate.
	DoseRateClamp string

	// View selects which projection of a timeline is reported.
	View string
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All spot encodings supported.
const (
	PackedEncoding  SpotEncoding = "shi-packed" // proprietary packed float
	Float32Encoding SpotEncoding = "float32"    // little-endian IEEE-754 single precision
)

// Outcomes of the layer dose rate resolution.
const (
	ClampFloor       DoseRateClamp = "floor"       // bottleneck below the machine minimum
	ClampCeiling     DoseRateClamp = "ceiling"     // bottleneck above the energy ceiling
	ClampBottleneck  DoseRateClamp = "bottleneck"  // bottleneck used as-is
	ClampDegenerate  DoseRateClamp = "degenerate"  // fewer than two segments
	ClampUnavailable DoseRateClamp = "unavailable" // no usable ceiling for the energy
)

// All report views supported.
const (
	PlanView     View = "plan" // default
	LayersView   View = "layers"
	SegmentsView View = "segments"
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidSpotEncodings lists all valid spot encodings.
var ValidSpotEncodings = map[SpotEncoding]struct{}{
	PackedEncoding:  {},
	Float32Encoding: {},
}

// ValidViews lists all valid report views.
var ValidViews = map[View]struct{}{
	PlanView:     {},
	LayersView:   {},
	SegmentsView: {},
}
