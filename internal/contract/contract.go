// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/protonlab/scantime/schema"
)

// PlanSource reads treatment plans from some container format.
// This allows the core analysis logic to be tested without real DICOM files.
type PlanSource interface {
	// ReadPlan loads the plan at path into its container-independent record.
	ReadPlan(ctx context.Context, path string) (*schema.PlanRecord, error)
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetTimelineStore() CacheStore
	GetHistoryStore() HistoryStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// HistoryStore defines the interface for tracking timeline runs.
type HistoryStore interface {
	// BeginRun creates a new run and returns its unique ID
	BeginRun(start schema.RunStart) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, totalLayers int, totalScanTime float64) error

	// RecordLayers stores the summaries of computed layers
	RecordLayers(runID int64, layers []schema.LayerSummaryRecord) error

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// GetAllRuns returns every recorded run, oldest first
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllLayerSummaries returns every recorded layer summary
	GetAllLayerSummaries() ([]schema.LayerSummaryRecord, error)

	// Close closes the underlying connection
	Close() error
}
